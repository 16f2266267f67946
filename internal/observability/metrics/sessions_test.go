package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewSessionMetrics(reg)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.SessionStarted()
			m.SessionsEnded(2)
		}()
	}
	wg.Wait()
	m.SessionsEnded(0)
	m.SessionsEnded(-3)

	assert.Equal(t, int64(20), m.Started())
	assert.Equal(t, int64(40), m.Ended())
	assert.InDelta(t, 20, testutil.ToFloat64(m.startedCounter), 0)
	assert.InDelta(t, 40, testutil.ToFloat64(m.endedCounter), 0)
}

func TestNewSessionMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewSessionMetrics(reg)
	require.NoError(t, err)
	_, err = NewSessionMetrics(reg)
	require.Error(t, err)
}

func TestNewSessionMetrics_Unregistered(t *testing.T) {
	m, err := NewSessionMetrics(nil)
	require.NoError(t, err)
	m.SessionStarted()
	assert.Equal(t, int64(1), m.Started())
}

func TestCleanupMetric_Result(t *testing.T) {
	assert.Equal(t, ResultSuccess, CleanupMetric{Removed: 1}.Result())
	assert.Equal(t, ResultNoop, CleanupMetric{}.Result())
	assert.Equal(t, ResultError, CleanupMetric{Removed: 4, Err: errors.New("x")}.Result())
}

func TestCleanupMetrics_ObserveCleanup(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewCleanupMetrics(reg)
	require.NoError(t, err)
	fixed := time.Unix(1_750_000_000, 0)
	m.now = func() time.Time { return fixed }

	m.ObserveCleanup(CleanupMetric{Removed: 3, Duration: time.Millisecond})
	m.ObserveCleanup(CleanupMetric{})
	m.ObserveCleanup(CleanupMetric{Err: context.DeadlineExceeded, Duration: time.Second})

	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues(ResultSuccess, "none")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues(ResultNoop, "none")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues(ResultError, "timeout")), 0)
	assert.InDelta(t, float64(fixed.Unix()), testutil.ToFloat64(m.lastSuccess), 0)

	expected := `
# HELP bff_session_cleanup_runs_total Expired session cleanup passes by result.
# TYPE bff_session_cleanup_runs_total counter
bff_session_cleanup_runs_total{error_class="none",result="noop"} 1
bff_session_cleanup_runs_total{error_class="none",result="success"} 1
bff_session_cleanup_runs_total{error_class="timeout",result="error"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "bff_session_cleanup_runs_total"))

	families, err := reg.Gather()
	require.NoError(t, err)
	var samples uint64
	for _, f := range families {
		if f.GetName() == "bff_session_cleanup_duration_seconds" {
			samples = f.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, uint64(2), samples, "zero durations are not observed")

	var nilMetrics *CleanupMetrics
	nilMetrics.ObserveCleanup(CleanupMetric{Removed: 1})
}
