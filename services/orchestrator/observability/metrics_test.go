// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestMetrics registers metrics on a private registry so tests can run
// in parallel without touching the default registry.
func newTestMetrics(t *testing.T) (*DecisionMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewDecisionMetrics(reg), reg
}

func TestNewDecisionMetrics_RegistersAll(t *testing.T) {
	m, reg := newTestMetrics(t)

	m.ObserveDecision("verify", "Approved")
	m.ObserveAppend("URS_VERIFIED", "GxP Compliance", time.Millisecond, nil)
	m.ObserveAlert("tampered")
	m.ObserveRequest("/v1/verify", "POST", 200, 10*time.Millisecond)
	m.ObserveRateLimited("/v1/verify")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"aleutian_csv_decisions_total",
		"aleutian_csv_ledger_appends_total",
		"aleutian_csv_ledger_append_seconds",
		"aleutian_csv_ledger_integrity_alerts_total",
		"aleutian_csv_http_requests_total",
		"aleutian_csv_http_request_seconds",
		"aleutian_csv_http_rate_limited_total",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}
}

func TestObserveDecision(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveDecision("risk_score", "High")
	m.ObserveDecision("risk_score", "High")
	m.ObserveDecision("risk_score", "error")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("risk_score", "High")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("risk_score", "error")))
}

func TestObserveAppend_Status(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveAppend("RTM_GENERATED", "Traceability", 2*time.Millisecond, nil)
	m.ObserveAppend("RTM_GENERATED", "Traceability", time.Millisecond, errors.New("disk full"))

	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.LedgerAppendsTotal.WithLabelValues("RTM_GENERATED", "Traceability", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.LedgerAppendsTotal.WithLabelValues("RTM_GENERATED", "Traceability", StatusError)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.LedgerAppendSeconds))
}

func TestObserveRequest_UnmatchedRoute(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveRequest("", "GET", 404, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("unmatched", "GET", "404")))
}

func TestObserveAlert_And_RateLimited(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveAlert("truncated")
	m.ObserveRateLimited("/webhook/sn-change")
	m.ObserveRateLimited("/webhook/sn-change")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerAlertsTotal.WithLabelValues("truncated")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RateLimitedTotal.WithLabelValues("/webhook/sn-change")))
}
