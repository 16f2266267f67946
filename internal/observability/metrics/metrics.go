// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	obserrors "github.com/target/mmk-bff/internal/observability/errors"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

const namespace = "bff"

// CleanupMetric captures one session cleanup pass.
type CleanupMetric struct {
	Removed  int64
	Duration time.Duration
	Err      error
}

// Result maps the pass outcome to a result label.
func (m CleanupMetric) Result() string {
	switch {
	case m.Err != nil:
		return ResultError
	case m.Removed == 0:
		return ResultNoop
	default:
		return ResultSuccess
	}
}

// CleanupRecorder receives the outcome of every cleanup pass.
type CleanupRecorder interface {
	ObserveCleanup(in CleanupMetric)
}

// CleanupMetrics records cleanup passes as Prometheus series.
type CleanupMetrics struct {
	runs        *prometheus.CounterVec
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
	now         func() time.Time
}

var _ CleanupRecorder = (*CleanupMetrics)(nil)

// NewCleanupMetrics creates the cleanup collectors and registers them when reg is non-nil.
func NewCleanupMetrics(reg prometheus.Registerer) (*CleanupMetrics, error) {
	m := &CleanupMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session_cleanup",
			Name:      "runs_total",
			Help:      "Expired session cleanup passes by result.",
		}, []string{"result", "error_class"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session_cleanup",
			Name:      "duration_seconds",
			Help:      "Duration of expired session cleanup passes.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session_cleanup",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cleanup pass that completed without error.",
		}),
		now: time.Now,
	}
	if err := register(reg, m.runs, m.duration, m.lastSuccess); err != nil {
		return nil, err
	}
	return m, nil
}

// ObserveCleanup records one pass. A nil receiver is a no-op.
func (m *CleanupMetrics) ObserveCleanup(in CleanupMetric) {
	if m == nil {
		return
	}
	class := obserrors.Classify(in.Err)
	if class == "" {
		class = "none"
	}
	m.runs.WithLabelValues(in.Result(), class).Inc()
	if in.Duration > 0 {
		m.duration.Observe(in.Duration.Seconds())
	}
	if in.Err == nil {
		m.lastSuccess.Set(float64(m.now().Unix()))
	}
}

func register(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	if reg == nil {
		return nil
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
