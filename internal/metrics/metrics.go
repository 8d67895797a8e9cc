// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ServiceAssistant     = "assistant"
	ServiceNarration     = "narration"
	ServiceTranscription = "transcription"

	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeDiscarded = "discarded"
)

var (
	ExternalCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindweather",
		Name:      "external_calls_total",
		Help:      "Calls to external services by service and outcome.",
	}, []string{"service", "outcome"})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindweather",
		Name:      "flow_transitions_total",
		Help:      "Session flow transitions by target state.",
	}, []string{"to"})

	CategorizationFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mindweather",
		Name:      "categorization_fallbacks_total",
		Help:      "Sessions completed with answer-derived categories because the assistant failed.",
	})

	NarrationCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindweather",
		Name:      "narration_cache_total",
		Help:      "Narration cache lookups by result.",
	}, []string{"result"})
)

// ObserveCall records the outcome of one external call.
func ObserveCall(service string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	ExternalCalls.WithLabelValues(service, outcome).Inc()
}
