package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the enrollment module.
type Metrics struct {
	Created        prometheus.Counter
	Rejected       *prometheus.CounterVec
	Published      prometheus.Counter
	CreateDuration prometheus.Histogram
	ListDuration   prometheus.Histogram
	PageSize       prometheus.Histogram
	CacheResults   *prometheus.CounterVec
	OutboxRelayed  prometheus.Counter
	OutboxFailures prometheus.Counter
	OutboxBacklog  prometheus.Gauge
}

// New creates the enrollment metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Created: f.NewCounter(prometheus.CounterOpts{
			Name: "crowdfund_enrollments_created_total",
			Help: "Total number of enrollments created",
		}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crowdfund_enrollments_rejected_total",
			Help: "Enrollment submissions rejected, by error type",
		}, []string{"type"}), // INVALID_NAME, INVALID_TWITTER, INVALID_PROFILE, DUPLICATE_TWITTER, DATABASE_ERROR
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "crowdfund_enrollments_published_total",
			Help: "Enrollments newly marked as published on chain",
		}),
		CreateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "crowdfund_enrollment_create_duration_seconds",
			Help:    "Duration of Create including the uniqueness check and insert",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ListDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "crowdfund_enrollment_list_duration_seconds",
			Help:    "Duration of paginated listing reads",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		PageSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "crowdfund_enrollment_page_size",
			Help:    "Number of records returned per listing page",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		CacheResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crowdfund_enrollment_cache_lookups_total",
			Help: "Detail cache lookups by result",
		}, []string{"result"}), // hit, miss
		OutboxRelayed: f.NewCounter(prometheus.CounterOpts{
			Name: "crowdfund_outbox_relayed_total",
			Help: "Outbox events published to Kafka",
		}),
		OutboxFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "crowdfund_outbox_relay_failures_total",
			Help: "Relay ticks that failed to publish or mark events",
		}),
		OutboxBacklog: f.NewGauge(prometheus.GaugeOpts{
			Name: "crowdfund_outbox_batch_size",
			Help: "Size of the last outbox batch picked up by the relay",
		}),
	}
}

// IncrementCreated records a successful enrollment.
func (m *Metrics) IncrementCreated() {
	if m != nil {
		m.Created.Inc()
	}
}

// IncrementRejected records a failed submission by its public error type.
func (m *Metrics) IncrementRejected(errType string) {
	if m != nil && errType != "" {
		m.Rejected.WithLabelValues(errType).Inc()
	}
}

// IncrementPublished records a record newly marked published.
func (m *Metrics) IncrementPublished() {
	if m != nil {
		m.Published.Inc()
	}
}

// ObserveCreate records the duration of a Create call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCreate(start time.Time) {
	if m != nil {
		m.CreateDuration.Observe(time.Since(start).Seconds())
	}
}

// ObserveList records the duration and size of a listing page.
func (m *Metrics) ObserveList(start time.Time, size int) {
	if m != nil {
		m.ListDuration.Observe(time.Since(start).Seconds())
		m.PageSize.Observe(float64(size))
	}
}

// IncrementCacheHit records a detail cache hit.
func (m *Metrics) IncrementCacheHit() {
	if m != nil {
		m.CacheResults.WithLabelValues("hit").Inc()
	}
}

// IncrementCacheMiss records a detail cache miss.
func (m *Metrics) IncrementCacheMiss() {
	if m != nil {
		m.CacheResults.WithLabelValues("miss").Inc()
	}
}

// AddRelayed records events handed to Kafka.
func (m *Metrics) AddRelayed(n int) {
	if m != nil {
		m.OutboxRelayed.Add(float64(n))
	}
}

// IncrementRelayFailure records a failed relay tick.
func (m *Metrics) IncrementRelayFailure() {
	if m != nil {
		m.OutboxFailures.Inc()
	}
}

// SetBatchSize records how many events the relay picked up.
func (m *Metrics) SetBatchSize(n int) {
	if m != nil {
		m.OutboxBacklog.Set(float64(n))
	}
}
