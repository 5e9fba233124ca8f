package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Participant metrics
	ParticipantCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitchbook_participant_calls_total",
			Help: "Total number of participant executions",
		},
		[]string{"participant", "status"}, // status: success|error|rate_limited
	)

	ParticipantLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pitchbook_participant_latency_seconds",
			Help:    "Participant execution latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"participant"},
	)

	ParticipantTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitchbook_participant_tokens_total",
			Help: "Total tokens used by participants",
		},
		[]string{"participant", "type"}, // type: input|output
	)

	// Retry / rate limit metrics
	RetryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitchbook_retry_attempts_total",
			Help: "Total number of retried participant calls",
		},
		[]string{"participant", "reason"}, // reason: rate_limit|conflict
	)

	BackoffSeconds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitchbook_backoff_seconds_total",
			Help: "Cumulative seconds spent sleeping in retry backoff",
		},
		[]string{"participant"},
	)

	PacingWaits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pitchbook_pacing_waits_total",
			Help: "Total number of calls delayed by the pacing limiter",
		},
	)

	PacingWaitSeconds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pitchbook_pacing_wait_seconds_total",
			Help: "Cumulative seconds spent waiting in the pacing limiter",
		},
	)

	// Orchestration metrics
	Rounds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitchbook_rounds_total",
			Help: "Total number of orchestration rounds",
		},
		[]string{"outcome"}, // outcome: executed|skipped|terminated
	)

	RunsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitchbook_runs_total",
			Help: "Total number of orchestration runs by final status",
		},
		[]string{"status"}, // status: completed|failed
	)

	SectionsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pitchbook_sections_completed_total",
			Help: "Total number of pitchbook sections marked complete",
		},
	)

	// Tool metrics
	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitchbook_tool_calls_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"},
	)

	ToolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pitchbook_tool_latency_seconds",
			Help:    "Tool execution latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"tool"},
	)
)

func init() {
	prometheus.MustRegister(
		ParticipantCalls,
		ParticipantLatency,
		ParticipantTokens,
		RetryAttempts,
		BackoffSeconds,
		PacingWaits,
		PacingWaitSeconds,
		Rounds,
		RunsCompleted,
		SectionsCompleted,
		ToolCalls,
		ToolLatency,
	)
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveParticipant records the outcome of a single participant execution
func ObserveParticipant(participant, status string, duration time.Duration) {
	ParticipantCalls.WithLabelValues(participant, status).Inc()
	ParticipantLatency.WithLabelValues(participant).Observe(duration.Seconds())
}

// ObserveTool records the outcome of a single tool execution
func ObserveTool(tool, status string, duration time.Duration) {
	ToolCalls.WithLabelValues(tool, status).Inc()
	ToolLatency.WithLabelValues(tool).Observe(duration.Seconds())
}
