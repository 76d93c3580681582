// Package metrics provides Prometheus instrumentation for the mapping and review engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	classifications    *prometheus.CounterVec
	classifyDuration   *prometheus.HistogramVec
	externalCalls      *prometheus.CounterVec
	externalFailures   *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	goldenPromotions   *prometheus.CounterVec
	anomalies          *prometheus.CounterVec
	openItems          *prometheus.CounterVec
	accountsAggregated prometheus.Counter
	requestDuration    *prometheus.HistogramVec

	collectors []prometheus.Collector
}

// New creates the engine metrics and registers them on registry.
func New(namespace string, registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Account classifications by resulting tier and outcome",
		}, []string{"tier", "outcome"}),
		classifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_duration_seconds",
			Help:      "Time to classify one client account, including external calls",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"tier"}),
		externalCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_calls_total",
			Help:      "Calls to external embedding and reasoning providers",
		}, []string{"provider"}),
		externalFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_failures_total",
			Help:      "External provider calls that failed after retries and degraded the result",
		}, []string{"provider"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "State machine transitions by entity and target status",
		}, []string{"entity", "to"}),
		goldenPromotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "golden_promotions_total",
			Help:      "Golden mapping promotion attempts by outcome",
		}, []string{"outcome"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_detected_total",
			Help:      "Newly recorded anomalies by severity",
		}, []string{"severity"}),
		openItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "open_items_flagged_total",
			Help:      "Newly raised open items by flag reason",
		}, []string{"reason"}),
		accountsAggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_accounts_created_total",
			Help:      "Client accounts inserted by aggregation",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route pattern, method, and status code",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
	}

	m.collectors = []prometheus.Collector{
		m.classifications,
		m.classifyDuration,
		m.externalCalls,
		m.externalFailures,
		m.transitions,
		m.goldenPromotions,
		m.anomalies,
		m.openItems,
		m.accountsAggregated,
		m.requestDuration,
	}

	for _, c := range m.collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Classified records a classification result and its latency.
func (m *Metrics) Classified(tier, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(tier, outcome).Inc()
	m.classifyDuration.WithLabelValues(tier).Observe(elapsed.Seconds())
}

// ExternalCall records a call to provider and whether it ultimately failed.
func (m *Metrics) ExternalCall(provider string, err error) {
	if m == nil {
		return
	}
	m.externalCalls.WithLabelValues(provider).Inc()
	if err != nil {
		m.externalFailures.WithLabelValues(provider).Inc()
	}
}

// Transition records a state change of entity to status.
func (m *Metrics) Transition(entity, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, to).Inc()
}

// Promotion records a golden promotion outcome: inserted, duplicate, or failed.
func (m *Metrics) Promotion(outcome string) {
	if m == nil {
		return
	}
	m.goldenPromotions.WithLabelValues(outcome).Inc()
}

// Anomaly records a newly inserted anomaly.
func (m *Metrics) Anomaly(severity string) {
	if m == nil {
		return
	}
	m.anomalies.WithLabelValues(severity).Inc()
}

// OpenItem records a newly raised open item.
func (m *Metrics) OpenItem(reason string) {
	if m == nil {
		return
	}
	m.openItems.WithLabelValues(reason).Inc()
}

// AccountsCreated records client accounts inserted by aggregation.
func (m *Metrics) AccountsCreated(n int) {
	if m == nil {
		return
	}
	m.accountsAggregated.Add(float64(n))
}

// Route instruments h with request latency labelled by the route pattern.
// It matches routes.Wrap.
func (m *Metrics) Route(path string, h http.Handler) http.Handler {
	if m == nil {
		return h
	}
	obs := m.requestDuration.MustCurryWith(prometheus.Labels{"route": path})
	return promhttp.InstrumentHandlerDuration(obs, h)
}
