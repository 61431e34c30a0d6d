package prometheus

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skillbridge/authcore"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func testSnapshot() authcore.MetricsSnapshot {
	return authcore.MetricsSnapshot{
		Counters: map[authcore.MetricID]uint64{
			authcore.MetricLoginSuccess:   3,
			authcore.MetricRefreshFailure: 1,
		},
		Histograms: map[authcore.MetricID][]uint64{
			// 2 observations <=5ms, 1 in the unbounded bucket.
			authcore.MetricValidateLatency: {2, 0, 0, 0, 0, 0, 0, 1},
		},
		HistogramSums: map[authcore.MetricID]uint64{
			authcore.MetricValidateLatency: 3_000_000, // 3ms total
		},
	}
}

func render(t *testing.T, source Source) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(source).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollectorRendersCounters(t *testing.T) {
	body := render(t, fakeSource{snapshot: testSnapshot(), dropped: 7})

	require.Contains(t, body, "authcore_login_success_total 3")
	require.Contains(t, body, "authcore_refresh_failure_total 1")
	require.Contains(t, body, "authcore_logout_total 0")
	require.Contains(t, body, "authcore_audit_dropped_total 7")
}

func TestCollectorRendersLatencyHistogram(t *testing.T) {
	body := render(t, fakeSource{snapshot: testSnapshot()})

	require.Contains(t, body, `authcore_validate_latency_seconds_bucket{le="0.005"} 2`)
	require.Contains(t, body, `authcore_validate_latency_seconds_bucket{le="0.5"} 2`)
	require.Contains(t, body, `authcore_validate_latency_seconds_bucket{le="+Inf"} 3`)
	require.Contains(t, body, "authcore_validate_latency_seconds_count 3")
	require.Contains(t, body, "authcore_validate_latency_seconds_sum 0.003")
}

func TestCollectorSkipsMissingHistogram(t *testing.T) {
	snap := testSnapshot()
	snap.Histograms = map[authcore.MetricID][]uint64{}

	body := render(t, fakeSource{snapshot: snap})
	require.NotContains(t, body, "authcore_validate_latency_seconds_bucket")
}
