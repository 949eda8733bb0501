// Package observability exposes the process-wide Prometheus metrics.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions prometheus.Gauge
	sessionsTotal  prometheus.Counter

	agentRunTotal    *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec

	toolInvocationTotal    *prometheus.CounterVec
	toolInvocationDuration *prometheus.HistogramVec

	fragmentsTotal    *prometheus.CounterVec
	streamErrorsTotal prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current live session count.",
				},
			),
			sessionsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sessions_total",
					Help: "Total sessions created.",
				},
			),
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_run_total",
					Help: "Total agent runs by provider and status.",
				},
				[]string{"provider", "status"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_run_duration_seconds",
					Help:    "Agent run duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			toolInvocationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_invocation_total",
					Help: "Total tool invocations by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolInvocationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_invocation_duration_seconds",
					Help:    "Tool invocation duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			fragmentsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stream_fragments_total",
					Help: "Total stream fragments emitted by kind.",
				},
				[]string{"kind"},
			),
			streamErrorsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "stream_errors_total",
					Help: "Total streams terminated by an upstream error.",
				},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.sessionsTotal,
			m.agentRunTotal,
			m.agentRunDuration,
			m.toolInvocationTotal,
			m.toolInvocationDuration,
			m.fragmentsTotal,
			m.streamErrorsTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler returns the /metrics HTTP handler.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// SetActiveSessions updates the live session gauge.
func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

// RecordSessionCreated counts a new session.
func RecordSessionCreated() {
	getMetrics().sessionsTotal.Inc()
}

// RecordAgentRun counts one full reason-act-answer pass.
func RecordAgentRun(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.agentRunTotal.WithLabelValues(provider, status).Inc()
	m.agentRunDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordToolInvocation counts one tool call.
func RecordToolInvocation(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolInvocationTotal.WithLabelValues(tool, status).Inc()
	m.toolInvocationDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordFragment counts an emitted stream fragment.
func RecordFragment(kind string) {
	getMetrics().fragmentsTotal.WithLabelValues(kind).Inc()
}

// RecordStreamError counts a stream that died on an upstream failure.
func RecordStreamError() {
	getMetrics().streamErrorsTotal.Inc()
}
