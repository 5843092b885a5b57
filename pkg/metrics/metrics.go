// Package metrics exposes the replenisher's Prometheus instrumentation:
// cycle throughput and latency, forecast/decision/finance counters, the
// event bus and job queue depth, and store call latency.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector behind a private registry, so importing
// this package never contends with the default global registry.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal        *prometheus.CounterVec
	CycleDuration       prometheus.Histogram
	StageDuration       *prometheus.HistogramVec
	SKUsProcessed       prometheus.Counter
	DecisionsTotal      *prometheus.CounterVec
	OrdersPlacedTotal   *prometheus.CounterVec
	FinanceRejections   prometheus.Counter
	NegotiationRounds   prometheus.Counter
	ExternalCallsTotal  *prometheus.CounterVec
	DialogueCallsTotal  *prometheus.CounterVec
	EventBusDepth       prometheus.Gauge
	JobQueueDepth       prometheus.Gauge
	StoreCallDuration   *prometheus.HistogramVec
}

// New builds and registers every collector against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replenisher", Name: "cycles_total", Help: "Replenishment cycles run, by terminal status.",
		}, []string{"status"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "replenisher", Name: "cycle_duration_seconds", Help: "Wall-clock duration of a full cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "replenisher", Name: "stage_duration_seconds", Help: "Wall-clock duration of one pipeline stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		SKUsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replenisher", Name: "skus_processed_total", Help: "SKUs carried through a completed cycle.",
		}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replenisher", Name: "decisions_total", Help: "Reorder decisions, by urgency band.",
		}, []string{"urgency"}),
		OrdersPlacedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replenisher", Name: "orders_placed_total", Help: "Orders placed by the Action stage, by status.",
		}, []string{"status"}),
		FinanceRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replenisher", Name: "finance_rejections_total", Help: "Decisions rejected by the budget solver.",
		}),
		NegotiationRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replenisher", Name: "negotiation_rounds_total", Help: "Negotiation rounds run across all cycles.",
		}),
		ExternalCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replenisher", Name: "external_forecast_calls_total", Help: "Calls to the external forecast estimator, by outcome.",
		}, []string{"outcome"}),
		DialogueCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replenisher", Name: "dialogue_calls_total", Help: "Calls to the pluggable dialogue service, by outcome.",
		}, []string{"outcome"}),
		EventBusDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "replenisher", Name: "event_bus_buffered_events", Help: "Events currently buffered across all cycle streams.",
		}),
		JobQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "replenisher", Name: "job_queue_depth", Help: "Jobs currently queued or running.",
		}),
		StoreCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "replenisher", Name: "store_call_duration_seconds", Help: "Store port call latency, by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(
		m.CyclesTotal, m.CycleDuration, m.StageDuration, m.SKUsProcessed,
		m.DecisionsTotal, m.OrdersPlacedTotal, m.FinanceRejections, m.NegotiationRounds,
		m.ExternalCallsTotal, m.DialogueCallsTotal, m.EventBusDepth, m.JobQueueDepth, m.StoreCallDuration,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage records one stage's wall-clock duration.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
