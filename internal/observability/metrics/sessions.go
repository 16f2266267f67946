package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/target/mmk-bff/internal/ports"
)

var _ ports.SessionMetrics = (*SessionMetrics)(nil)

// SessionMetrics counts session lifecycle events. The in-process totals are atomic and mirrored
// to Prometheus counters.
type SessionMetrics struct {
	started atomic.Int64
	ended   atomic.Int64

	startedCounter prometheus.Counter
	endedCounter   prometheus.Counter
}

// NewSessionMetrics creates the session counters and registers them when reg is non-nil.
func NewSessionMetrics(reg prometheus.Registerer) (*SessionMetrics, error) {
	m := &SessionMetrics{
		startedCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "started_total",
			Help:      "Number of sessions started by interactive login.",
		}),
		endedCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "ended_total",
			Help:      "Number of sessions ended by logout, revocation or expiry cleanup.",
		}),
	}
	if err := register(reg, m.startedCounter, m.endedCounter); err != nil {
		return nil, err
	}
	return m, nil
}

// SessionStarted records one new session.
func (m *SessionMetrics) SessionStarted() {
	m.started.Add(1)
	m.startedCounter.Inc()
}

// SessionsEnded records count ended sessions. Non-positive counts are ignored.
func (m *SessionMetrics) SessionsEnded(count int64) {
	if count <= 0 {
		return
	}
	m.ended.Add(count)
	m.endedCounter.Add(float64(count))
}

// Started returns the number of sessions started since process start.
func (m *SessionMetrics) Started() int64 { return m.started.Load() }

// Ended returns the number of sessions ended since process start.
func (m *SessionMetrics) Ended() int64 { return m.ended.Load() }
