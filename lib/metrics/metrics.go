// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "concierge"

// Metrics holds every instrument. Construct with New.
type Metrics struct {
	ProviderCalls      *prometheus.CounterVec
	ProviderAttempts   prometheus.Counter
	BreakerState       prometheus.Gauge
	HistoryTruncations prometheus.Counter
	HistoryExcluded    prometheus.Counter
	ToolCalls          *prometheus.CounterVec
	ToolDuration       *prometheus.HistogramVec
	Turns              *prometheus.CounterVec
	TurnIterations     prometheus.Histogram
}

// New creates the instruments and registers them with reg. A nil reg
// leaves them unregistered, which tests use to read values directly.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Logical provider invocations by outcome.",
		}, []string{"outcome"}),
		ProviderAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "attempts_total",
			Help:      "Physical provider requests, including retries.",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
		}),
		HistoryTruncations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "truncations_total",
			Help:      "Context windows that excluded at least one message.",
		}),
		HistoryExcluded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "excluded_messages_total",
			Help:      "Messages left out of context windows.",
		}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Tool executions by tool name and result status.",
		}, []string{"tool", "status"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tools",
			Name:      "duration_seconds",
			Help:      "Tool execution latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"tool"}),
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "turns",
			Name:      "total",
			Help:      "Completed turns by outcome.",
		}, []string{"outcome"}),
		TurnIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "turns",
			Name:      "iterations",
			Help:      "Provider calls per turn.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ProviderCalls,
			m.ProviderAttempts,
			m.BreakerState,
			m.HistoryTruncations,
			m.HistoryExcluded,
			m.ToolCalls,
			m.ToolDuration,
			m.Turns,
			m.TurnIterations,
		)
	}
	return m
}

// ObserveProviderCall counts one logical invocation.
func (m *Metrics) ObserveProviderCall(outcome string) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(outcome).Inc()
}

// ObserveProviderAttempt counts one physical request.
func (m *Metrics) ObserveProviderAttempt() {
	if m == nil {
		return
	}
	m.ProviderAttempts.Inc()
}

// SetBreakerState publishes the breaker state ordinal.
func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(state))
}

// ObserveTruncation records a window that dropped excluded messages.
func (m *Metrics) ObserveTruncation(excluded int) {
	if m == nil || excluded <= 0 {
		return
	}
	m.HistoryTruncations.Inc()
	m.HistoryExcluded.Add(float64(excluded))
}

// ObserveToolCall records one tool execution.
func (m *Metrics) ObserveToolCall(tool, status string, seconds float64) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(seconds)
}

// ObserveTurn records a finished turn.
func (m *Metrics) ObserveTurn(outcome string, iterations int) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
	m.TurnIterations.Observe(float64(iterations))
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
