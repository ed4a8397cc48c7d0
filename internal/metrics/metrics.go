// Package metrics holds the Prometheus instruments for analysis runs.
//
// All helper methods are safe to call on a nil *Metrics, so components can be
// built without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the analysis engine.
type Metrics struct {
	Registry *prometheus.Registry

	StepsTotal   *prometheus.CounterVec   // labels: tool, status
	StepDuration *prometheus.HistogramVec // labels: tool
	PlansTotal   *prometheus.CounterVec   // labels: outcome

	// Market data
	FetchEscalations *prometheus.CounterVec // labels: from, to
	ProviderErrors   *prometheus.CounterVec // labels: provider
	ProviderDuration *prometheus.HistogramVec
	CacheLookups     *prometheus.CounterVec // labels: result=hit|miss
	BreakerState     *prometheus.GaugeVec   // labels: provider; 0=closed, 1=open, 2=half-open
}

// NewMetrics creates and registers all metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		StepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyst_steps_total",
			Help: "Plan steps executed, by tool and final status",
		}, []string{"tool", "status"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "analyst_step_duration_seconds",
			Help:    "Wall time of a single plan step",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"tool"}),
		PlansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyst_plans_total",
			Help: "Plans submitted, by outcome (ok, partial, invalid)",
		}, []string{"outcome"}),

		FetchEscalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyst_fetch_escalations_total",
			Help: "Period escalations performed by the fallback fetcher",
		}, []string{"from", "to"}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyst_provider_errors_total",
			Help: "Errors returned by market-data providers",
		}, []string{"provider"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "analyst_provider_request_duration_seconds",
			Help:    "Market-data provider request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyst_bar_cache_lookups_total",
			Help: "Bar cache lookups by result",
		}, []string{"result"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "analyst_provider_breaker_state",
			Help: "Provider circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"provider"}),
	}

	m.Registry.MustRegister(
		m.StepsTotal,
		m.StepDuration,
		m.PlansTotal,
		m.FetchEscalations,
		m.ProviderErrors,
		m.ProviderDuration,
		m.CacheLookups,
		m.BreakerState,
	)

	return m
}

// ObserveStep records one finished step.
func (m *Metrics) ObserveStep(tool, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.StepsTotal.WithLabelValues(tool, status).Inc()
	if status != "skipped" {
		m.StepDuration.WithLabelValues(tool).Observe(d.Seconds())
	}
}

// ObservePlan records the outcome of one plan.
func (m *Metrics) ObservePlan(outcome string) {
	if m == nil {
		return
	}
	m.PlansTotal.WithLabelValues(outcome).Inc()
}

// ObserveEscalation records a period escalation.
func (m *Metrics) ObserveEscalation(from, to string) {
	if m == nil {
		return
	}
	m.FetchEscalations.WithLabelValues(from, to).Inc()
}

// ObserveProvider records a provider request and whether it failed.
func (m *Metrics) ObserveProvider(provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ProviderDuration.WithLabelValues(provider).Observe(d.Seconds())
	if err != nil {
		m.ProviderErrors.WithLabelValues(provider).Inc()
	}
}

// ObserveCache records a bar cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// SetBreakerState publishes a breaker state as 0, 1 or 2.
func (m *Metrics) SetBreakerState(provider string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(provider).Set(float64(state))
}

// WriteToTextfile writes the current metric values in the Prometheus text
// format, for the node exporter textfile collector.
func (m *Metrics) WriteToTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
