package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics carries the engine's Prometheus collectors. Pass a Registerer to
// NewMetrics to expose them; a nil Registerer yields working but
// unregistered counters, which keeps the hot path free of nil checks.
type Metrics struct {
	EventsPublished prometheus.Counter
	EventsEmitted   prometheus.Counter
	RuleEvaluations prometheus.Counter
	RecursionDrops  prometheus.Counter
}

// NewMetrics builds the engine collectors and registers them when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cep_events_published_total",
			Help: "Events accepted by publish, recursive publications included.",
		}),
		EventsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cep_events_emitted_total",
			Help: "Events synthesized by rule templates.",
		}),
		RuleEvaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cep_rule_evaluations_total",
			Help: "Rule pipeline runs dispatched to the worker pool.",
		}),
		RecursionDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cep_recursion_drops_total",
			Help: "Event batches dropped at the recursion depth cap.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.EventsPublished, m.EventsEmitted, m.RuleEvaluations, m.RecursionDrops)
	}
	return m
}
