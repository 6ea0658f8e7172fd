// Package metrics provides Prometheus metrics for the listening session core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels stay low-cardinality: no session IDs.
var (
	// SessionsStartedTotal counts Listening periods by trigger (user, expect_speech).
	SessionsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotmic_sessions_started_total",
		Help: "Total number of listening sessions started, by trigger.",
	}, []string{"trigger"})

	// SessionsStoppedTotal counts stop requests by cause (user, endpoint, capture_ended).
	SessionsStoppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotmic_sessions_stopped_total",
		Help: "Total number of listening sessions stopped, by cause.",
	}, []string{"cause"})

	// CaptureFailuresTotal counts capture errors by phase (start, run, stop).
	CaptureFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotmic_capture_failures_total",
		Help: "Total number of audio capture failures, by phase.",
	}, []string{"phase"})

	// EndpointFiredTotal counts silence endpoint firings.
	EndpointFiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hotmic_endpoint_fired_total",
		Help: "Total number of times sustained silence ended an utterance.",
	})

	// DirectivesTotal counts expect-speech directives by outcome.
	DirectivesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotmic_expect_speech_directives_total",
		Help: "Total number of expect-speech directives, by outcome.",
	}, []string{"outcome"})

	// ActionsTotal counts dispatched control actions by action and result.
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotmic_control_actions_total",
		Help: "Total number of dispatched playback control actions, by action and result.",
	}, []string{"action", "result"})

	// ActionsInFlight tracks control actions currently executing.
	ActionsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hotmic_control_actions_in_flight",
		Help: "Current number of executing playback control actions.",
	})

	// ListeningSeconds observes how long Listening periods last.
	ListeningSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hotmic_listening_duration_seconds",
		Help:    "Duration of listening periods from capture start to stop request.",
		Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 34},
	})
)

// RecordSessionStarted increments the started counter.
func RecordSessionStarted(trigger string) {
	SessionsStartedTotal.WithLabelValues(trigger).Inc()
}

// RecordSessionStopped increments the stopped counter and observes the listening duration.
func RecordSessionStopped(cause string, seconds float64) {
	SessionsStoppedTotal.WithLabelValues(cause).Inc()
	if seconds >= 0 {
		ListeningSeconds.Observe(seconds)
	}
}

// RecordCaptureFailure increments the capture failure counter.
func RecordCaptureFailure(phase string) {
	CaptureFailuresTotal.WithLabelValues(phase).Inc()
}

// RecordEndpointFired increments the endpoint counter.
func RecordEndpointFired() {
	EndpointFiredTotal.Inc()
}

// RecordDirective increments the directive counter.
func RecordDirective(outcome string) {
	DirectivesTotal.WithLabelValues(outcome).Inc()
}

// ActionStarted marks a control action as in flight.
func ActionStarted() {
	ActionsInFlight.Inc()
}

// ActionFinished records the result of a control action.
func ActionFinished(action string, err error) {
	ActionsInFlight.Dec()
	result := "ok"
	if err != nil {
		result = "error"
	}
	ActionsTotal.WithLabelValues(action, result).Inc()
}
