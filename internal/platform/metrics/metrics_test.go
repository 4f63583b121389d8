package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRequest(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.ObserveRequest("GET", "/enrollments", 200, 20*time.Millisecond)
	m.ObserveRequest("GET", "", 404, time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(m.RequestDuration))
}

func TestTrackInFlight(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	done := m.TrackInFlight()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsInFlight))
	done()
	assert.Equal(t, float64(0), testutil.ToFloat64(m.RequestsInFlight))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", "/", 200, time.Millisecond)
	m.TrackInFlight()()
}
