package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter (or the validate-latency histogram).
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricLoginLockout
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshRateLimited
	MetricTokenStale
	MetricTokenRevoked
	MetricDeviceMismatch
	MetricValidateSuccess
	MetricValidateFailure
	MetricLogout
	MetricLogoutAll
	MetricRegisterSuccess
	MetricRegisterDuplicate
	MetricVerificationRequest
	MetricVerificationSuccess
	MetricVerificationFailure
	MetricPasswordResetRequest
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricPasswordChangeSuccess
	MetricPasswordChangeFailure
	MetricSessionCreated
	MetricSessionRevoked
	MetricSessionsSwept
	MetricSessionsPurged
	MetricSuspiciousFlagged
	MetricEpochBump
	MetricCacheFailure
	MetricValidateLatency

	MetricIDCount
)

var metricNames = [MetricIDCount]string{
	MetricLoginSuccess:          "login_success",
	MetricLoginFailure:          "login_failure",
	MetricLoginRateLimited:      "login_rate_limited",
	MetricLoginLockout:          "login_lockout",
	MetricRefreshSuccess:        "refresh_success",
	MetricRefreshFailure:        "refresh_failure",
	MetricRefreshRateLimited:    "refresh_rate_limited",
	MetricTokenStale:            "token_stale",
	MetricTokenRevoked:          "token_revoked",
	MetricDeviceMismatch:        "device_mismatch",
	MetricValidateSuccess:       "validate_success",
	MetricValidateFailure:       "validate_failure",
	MetricLogout:                "logout",
	MetricLogoutAll:             "logout_all",
	MetricRegisterSuccess:       "register_success",
	MetricRegisterDuplicate:     "register_duplicate",
	MetricVerificationRequest:   "verification_request",
	MetricVerificationSuccess:   "verification_success",
	MetricVerificationFailure:   "verification_failure",
	MetricPasswordResetRequest:  "password_reset_request",
	MetricPasswordResetSuccess:  "password_reset_success",
	MetricPasswordResetFailure:  "password_reset_failure",
	MetricPasswordChangeSuccess: "password_change_success",
	MetricPasswordChangeFailure: "password_change_failure",
	MetricSessionCreated:        "session_created",
	MetricSessionRevoked:        "session_revoked",
	MetricSessionsSwept:         "sessions_swept",
	MetricSessionsPurged:        "sessions_purged",
	MetricSuspiciousFlagged:     "suspicious_flagged",
	MetricEpochBump:             "epoch_bump",
	MetricCacheFailure:          "cache_failure",
	MetricValidateLatency:       "validate_latency",
}

// Name returns the stable snake_case name used by exporters.
func (id MetricID) Name() string {
	if id >= MetricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

// Config controls which parts of the metrics system are live.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// HistogramBucketBounds are the upper bounds, in milliseconds, of the
// validate-latency buckets. The last bucket is unbounded.
var HistogramBucketBounds = [histBucketCount - 1]int64{5, 10, 25, 50, 100, 250, 500}

type histogram struct {
	buckets  [histBucketCount]uint64
	sumNanos uint64
}

// Counters are padded to a cache line each so hot-path increments on
// different IDs do not false-share.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds atomic counters and the optional validate-latency
// histogram. The zero value is disabled; use New.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [MetricIDCount]paddedCounter
	histograms    [MetricIDCount]histogram
}

// Snapshot is a point-in-time deep copy of all metrics.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64

	// HistogramSums holds the summed observed durations, in nanoseconds,
	// for each histogram present in Histograms.
	HistogramSums map[MetricID]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatency,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records a validate latency. Only MetricValidateLatency carries
// a histogram; other IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricValidateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
	atomic.AddUint64(&m.histograms[id].sumNanos, uint64(d.Nanoseconds()))
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{
			Counters:      map[MetricID]uint64{},
			Histograms:    map[MetricID][]uint64{},
			HistogramSums: map[MetricID]uint64{},
		}
	}

	s := Snapshot{
		Counters:      make(map[MetricID]uint64, int(MetricIDCount)),
		Histograms:    make(map[MetricID][]uint64, 1),
		HistogramSums: make(map[MetricID]uint64, 1),
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
		s.HistogramSums[MetricValidateLatency] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].sumNanos)
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range HistogramBucketBounds {
		if ms <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
