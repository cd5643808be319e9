package observability

import (
	"time"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the pipeline engine.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration  *prometheus.HistogramVec
	storeErrors      *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	leadTransitions  *prometheus.CounterVec
	quoteTransitions *prometheus.CounterVec
	partialSyncs     *prometheus.CounterVec
	collisions       prometheus.Counter
	quoteValue       prometheus.Histogram
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_operation_duration_seconds",
				Help:    "Duration of pipeline operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_store_errors_total",
				Help: "Total errors returned by the store.",
			},
			[]string{"operation"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		leadTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_lead_transitions_total",
				Help: "Lead stage transitions by target stage and trigger.",
			},
			[]string{"to", "trigger"},
		),
		quoteTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_quote_transitions_total",
				Help: "Quote lifecycle transitions by target status.",
			},
			[]string{"to"},
		),
		partialSyncs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_partial_sync_total",
				Help: "Multi-step operations that stopped after a committed step.",
			},
			[]string{"operation", "failed_step"},
		),
		collisions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_quote_number_collisions_total",
				Help: "Quote numbers rejected by the store as duplicates.",
			},
		),
		quoteValue: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_quote_total_value",
				Help:    "Total value of quotes at send time.",
				Buckets: prometheus.ExponentialBuckets(500, 2, 10),
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrStoreError increments the store error counter.
func (m *Metrics) IncrStoreError(operation string) {
	m.storeErrors.WithLabelValues(operation).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrLeadTransition counts a lead stage change. trigger is "manual" or "sync".
func (m *Metrics) IncrLeadTransition(to domain.LeadStatus, trigger string) {
	m.leadTransitions.WithLabelValues(string(to), trigger).Inc()
}

// IncrQuoteTransition counts a quote status change.
func (m *Metrics) IncrQuoteTransition(to domain.QuoteStatus) {
	m.quoteTransitions.WithLabelValues(string(to)).Inc()
}

// IncrPartialSync counts an operation left partially applied.
func (m *Metrics) IncrPartialSync(operation, failedStep string) {
	m.partialSyncs.WithLabelValues(operation, failedStep).Inc()
}

// IncrCollision counts a duplicate quote number.
func (m *Metrics) IncrCollision() {
	m.collisions.Inc()
}

// ObserveQuoteValue records the total of a quote when it is sent.
func (m *Metrics) ObserveQuoteValue(total float64) {
	m.quoteValue.Observe(total)
}

// GetPipelineSnapshot returns cumulative pipeline counters for the
// GET /v1/metrics/pipeline endpoint.
func (m *Metrics) GetPipelineSnapshot() *domain.PipelineMetrics {
	var leadTotal, quoteTotal float64
	for _, s := range domain.AllLeadStatuses() {
		leadTotal += getCounterValue(m.leadTransitions, string(s), "manual")
		leadTotal += getCounterValue(m.leadTransitions, string(s), "sync")
	}
	for _, s := range []domain.QuoteStatus{domain.QuoteStatusSent, domain.QuoteStatusViewed, domain.QuoteStatusAccepted, domain.QuoteStatusRejected} {
		quoteTotal += getCounterValue(m.quoteTransitions, string(s))
	}

	accepted := getCounterValue(m.quoteTransitions, string(domain.QuoteStatusAccepted))
	rejected := getCounterValue(m.quoteTransitions, string(domain.QuoteStatusRejected))
	acceptanceRate := float64(0)
	if accepted+rejected > 0 {
		acceptanceRate = accepted / (accepted + rejected)
	}

	hits := getCounterValue(m.cacheHits, "lead")
	misses := getCounterValue(m.cacheMisses, "lead")
	cacheHitRate := float64(0)
	if hits+misses > 0 {
		cacheHitRate = hits / (hits + misses)
	}

	var partial float64
	if mfs, err := m.Registry.Gather(); err == nil {
		for _, mf := range mfs {
			if mf.GetName() != "pipeline_partial_sync_total" {
				continue
			}
			for _, metric := range mf.GetMetric() {
				partial += metric.GetCounter().GetValue()
			}
		}
	}

	return &domain.PipelineMetrics{
		LeadTransitions:  leadTotal,
		QuoteTransitions: quoteTotal,
		QuotesAccepted:   accepted,
		QuotesRejected:   rejected,
		AcceptanceRate:   acceptanceRate,
		PartialSyncs:     partial,
		Collisions:       readCounter(m.collisions),
		CacheHitRate:     cacheHitRate,
		Period:           "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	return readCounter(cv.WithLabelValues(labels...))
}

func readCounter(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
