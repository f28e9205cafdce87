// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics provides Prometheus metrics for the inference scheduler.
// Labels never carry session or request IDs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	// Lifecycle

	// SessionsByState tracks live sessions per lifecycle state.
	SessionsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "robohub_sessions",
		Help: "Current number of inference sessions, by state.",
	}, []string{"state"})

	// SessionLifecycleTotal counts registry lifecycle events.
	SessionLifecycleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robohub_session_lifecycle_total",
		Help: "Total session lifecycle events, by event and result.",
	}, []string{"event", "result"})

	// Inference

	InferenceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robohub_inference_total",
		Help: "Total prediction calls, by policy kind and result.",
	}, []string{"policy", "result"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "robohub_inference_duration_seconds",
		Help:    "Latency of prediction calls.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"policy"})

	// Control loop

	CommandsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robohub_commands_sent_total",
		Help: "Total joint command steps dispatched to robots.",
	})

	TickErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robohub_tick_errors_total",
		Help: "Total per-tick errors absorbed by control loops, by kind.",
	}, []string{"kind"})

	SlowTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robohub_slow_ticks_total",
		Help: "Total control ticks that overran their period by more than the slow threshold.",
	})

	QueueDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "robohub_action_queue_depth",
		Help:    "Action queue length observed after each inference.",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 40, 80, 100},
	})

	QueueFlushTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robohub_action_queue_flush_total",
		Help: "Total action queue flushes triggered by the high-water mark.",
	})

	// Ingestion

	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robohub_frames_total",
		Help: "Total camera frames received, by result (accepted/skipped/rejected).",
	}, []string{"result"})

	JointMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robohub_joint_messages_total",
		Help: "Total joint telemetry messages received.",
	})

	TransportErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robohub_transport_errors_total",
		Help: "Total errors reported by transport callbacks.",
	})
)

// Tick error kinds.
const (
	TickErrorPredict = "predict"
	TickErrorSend    = "send"
)

// RecordStateChange moves one session between state gauges. An empty from adds a session.
func RecordStateChange(from, to string) {
	if from != "" {
		SessionsByState.WithLabelValues(from).Dec()
	}
	if to != "" {
		SessionsByState.WithLabelValues(to).Inc()
	}
}

// RecordLifecycle counts a registry lifecycle event.
func RecordLifecycle(event string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	SessionLifecycleTotal.WithLabelValues(event, result).Inc()
}

// RecordInference counts a prediction call and its latency.
func RecordInference(policy string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	InferenceTotal.WithLabelValues(policy, result).Inc()
	InferenceDuration.WithLabelValues(policy).Observe(d.Seconds())
}

func RecordTickError(kind string) {
	TickErrorsTotal.WithLabelValues(kind).Inc()
}

func RecordFrame(result string) {
	FramesTotal.WithLabelValues(result).Inc()
}

// GetSessionsInState returns the current gauge value for state.
func GetSessionsInState(state string) float64 {
	var m dto.Metric
	if err := SessionsByState.WithLabelValues(state).Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

// GetCounterValue reads a counter child for tests and diagnostics.
func GetCounterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
