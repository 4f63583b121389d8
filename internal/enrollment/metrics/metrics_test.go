package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.IncrementCreated()
	m.IncrementRejected("DUPLICATE_TWITTER")
	m.IncrementRejected("DUPLICATE_TWITTER")
	m.IncrementRejected("")
	m.IncrementCacheHit()
	m.IncrementCacheMiss()
	m.IncrementCacheMiss()
	m.AddRelayed(3)
	m.ObserveList(time.Now(), 10)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Created))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Rejected.WithLabelValues("DUPLICATE_TWITTER")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheResults.WithLabelValues("hit")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheResults.WithLabelValues("miss")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.OutboxRelayed))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PageSize))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.IncrementCreated()
	m.IncrementRejected("INVALID_NAME")
	m.ObserveCreate(time.Now())
	m.ObserveList(time.Now(), 1)
	m.IncrementCacheHit()
	m.AddRelayed(1)
	m.IncrementRelayFailure()
	m.SetBatchSize(0)
	m.IncrementPublished()
}
