// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the decision service.
//
// # Description
//
// Metrics cover three layers:
//   - Decisions: one counter per orchestrator operation and outcome
//     (risk level, verdict, "completed" or "error").
//   - Ledger: appends by action, impact and status, append latency, and
//     integrity alerts raised by the ledger watcher.
//   - HTTP: request counts and latency by route, plus rate-limit rejections.
//
// DecisionMetrics implements both the ledger and the orchestrator observer
// interfaces, so a single instance is handed to both at startup.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "aleutian"

const (
	decisionsSubsystem = "csv_decisions"
	ledgerSubsystem    = "csv_ledger"
	httpSubsystem      = "csv_http"
)

// Append status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DecisionMetrics holds all Prometheus metrics for the decision service.
//
// # Fields
//
//   - DecisionsTotal: Operations by operation name and outcome.
//   - LedgerAppendsTotal: Ledger appends by action, impact and status.
//   - LedgerAppendSeconds: Append latency by status.
//   - LedgerAlertsTotal: Watcher alerts by kind (tampered, truncated, removed).
//   - HTTPRequestsTotal: Requests by route, method and status code.
//   - HTTPRequestSeconds: Request latency by route.
//   - RateLimitedTotal: Requests rejected by the rate limiter, by route.
//
// # Thread Safety
//
// All operations are thread-safe.
type DecisionMetrics struct {
	DecisionsTotal      *prometheus.CounterVec
	LedgerAppendsTotal  *prometheus.CounterVec
	LedgerAppendSeconds *prometheus.HistogramVec
	LedgerAlertsTotal   *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestSeconds  *prometheus.HistogramVec
	RateLimitedTotal    *prometheus.CounterVec
}

// NewDecisionMetrics creates and registers all metrics with reg.
//
// # Description
//
// Pass prometheus.DefaultRegisterer in production so /metrics exposes them,
// or a fresh prometheus.NewRegistry() in tests.
//
// # Inputs
//
//   - reg: Registerer receiving the collectors. Must not be nil.
//
// # Outputs
//
//   - *DecisionMetrics: Registered metrics.
//
// # Limitations
//
//   - Panics on duplicate registration with the same registerer.
func NewDecisionMetrics(reg prometheus.Registerer) *DecisionMetrics {
	factory := promauto.With(reg)
	return &DecisionMetrics{
		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: decisionsSubsystem,
				Name:      "total",
				Help:      "Decision operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),

		LedgerAppendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: ledgerSubsystem,
				Name:      "appends_total",
				Help:      "Audit ledger appends by action, compliance impact and status",
			},
			[]string{"action", "impact", "status"},
		),

		LedgerAppendSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: ledgerSubsystem,
				Name:      "append_seconds",
				Help:      "Audit ledger append latency in seconds, including fsync",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"status"},
		),

		LedgerAlertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: ledgerSubsystem,
				Name:      "integrity_alerts_total",
				Help:      "Ledger integrity alerts raised by the watcher, by kind",
			},
			[]string{"kind"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "requests_total",
				Help:      "HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),

		HTTPRequestSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "request_seconds",
				Help:      "HTTP request latency in seconds by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		RateLimitedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter, by route",
			},
			[]string{"route"},
		),
	}
}

// =============================================================================
// Recording
// =============================================================================

// ObserveDecision counts one orchestrator operation.
func (m *DecisionMetrics) ObserveDecision(operation, outcome string) {
	m.DecisionsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveAppend records one ledger append attempt.
func (m *DecisionMetrics) ObserveAppend(action, impact string, elapsed time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.LedgerAppendsTotal.WithLabelValues(action, impact, status).Inc()
	m.LedgerAppendSeconds.WithLabelValues(status).Observe(elapsed.Seconds())
}

// ObserveAlert counts one ledger watcher alert.
func (m *DecisionMetrics) ObserveAlert(kind string) {
	m.LedgerAlertsTotal.WithLabelValues(kind).Inc()
}

// ObserveRequest records one completed HTTP request. route is the matched
// route template, not the raw path, to keep label cardinality bounded.
func (m *DecisionMetrics) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.HTTPRequestSeconds.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveRateLimited counts one rejected request.
func (m *DecisionMetrics) ObserveRateLimited(route string) {
	m.RateLimitedTotal.WithLabelValues(route).Inc()
}
