package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveTransition("reserve", ResultOK)
	m.ObserveTransition("reserve", ResultOK)
	m.ObserveTransition("occupy", ResultRejected)
	m.ObserveSweep(3, 1, 0, 20*time.Millisecond)
	m.ObserveNotification(ResultError)
	m.SetSpaces(map[string]int{"free": 7, "reserved": 2})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("reserve", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("occupy", ResultRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepRuns))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SweepOutcomes.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues(ResultError)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.Spaces.WithLabelValues("free")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTransition("reserve", ResultOK)
		m.ObserveSweep(1, 0, 0, time.Second)
		m.ObserveNotification(ResultOK)
		m.SetSpaces(map[string]int{"free": 1})
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveTransition("free", ResultOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `parking_transitions_total{kind="free",result="ok"} 1`))
}
