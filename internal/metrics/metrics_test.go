package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestCountersAndSnapshot(t *testing.T) {
	m := New(Config{Enabled: true})

	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Add(MetricSessionRevoked, 5)

	if got := m.Value(MetricLoginSuccess); got != 2 {
		t.Fatalf("login success: got %d want 2", got)
	}

	snap := m.Snapshot()
	if snap.Counters[MetricLoginSuccess] != 2 || snap.Counters[MetricSessionRevoked] != 5 {
		t.Fatalf("snapshot counters: %+v", snap.Counters)
	}
	if snap.Counters[MetricLogout] != 0 {
		t.Fatal("untouched counter must be zero")
	}

	// Snapshot is a copy, not a view.
	m.Inc(MetricLoginSuccess)
	if snap.Counters[MetricLoginSuccess] != 2 {
		t.Fatal("snapshot mutated after the fact")
	}
}

func TestDisabledIsNoOp(t *testing.T) {
	m := New(Config{})
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricValidateLatency, time.Millisecond)

	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("disabled metrics must not count")
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("disabled snapshot must be empty: %+v", snap)
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLoginSuccess)
	if nilMetrics.Enabled() {
		t.Fatal("nil metrics must report disabled")
	}
}

func TestLatencyBuckets(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatency: true})

	m.Observe(MetricValidateLatency, 3*time.Millisecond)
	m.Observe(MetricValidateLatency, 80*time.Millisecond)
	m.Observe(MetricValidateLatency, 2*time.Second)
	// Non-histogram IDs are ignored.
	m.Observe(MetricLoginSuccess, time.Millisecond)

	buckets := m.Snapshot().Histograms[MetricValidateLatency]
	if len(buckets) != 8 {
		t.Fatalf("bucket count: got %d want 8", len(buckets))
	}
	if buckets[0] != 1 || buckets[4] != 1 || buckets[7] != 1 {
		t.Fatalf("bucket placement: %v", buckets)
	}
}

func TestConcurrentInc(t *testing.T) {
	m := New(Config{Enabled: true})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricRefreshSuccess); got != 8000 {
		t.Fatalf("concurrent increments: got %d want 8000", got)
	}
}

func TestMetricNames(t *testing.T) {
	seen := make(map[string]MetricID, MetricIDCount)
	for id := MetricID(0); id < MetricIDCount; id++ {
		name := id.Name()
		if name == "" || name == "unknown" {
			t.Fatalf("metric %d has no name", id)
		}
		if prev, dup := seen[name]; dup {
			t.Fatalf("name %q shared by %d and %d", name, prev, id)
		}
		seen[name] = id
	}
	if MetricIDCount.Name() != "unknown" {
		t.Fatal("out-of-range id must report unknown")
	}
}
