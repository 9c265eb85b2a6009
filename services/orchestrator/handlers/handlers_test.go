// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/AleutianAI/AleutianCSV/services/compliance/decisions"
	"github.com/AleutianAI/AleutianCSV/services/compliance/faults"
	"github.com/AleutianAI/AleutianCSV/services/compliance/ledger"
	"github.com/AleutianAI/AleutianCSV/services/compliance/verification"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/retrieval"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Error Mapping
// =============================================================================

func TestStatusAndPublicMessage(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "invalid subject is a client error",
			err:        &faults.InvalidSubjectFault{SubjectID: "URS-1", MissingFields: []string{"Criticality"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed reasoning is a client error",
			err:        &faults.MalformedReasoningFault{MissingFields: []string{"steps"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid event is a client error",
			err:        &faults.InvalidEventFault{Action: "../x", Fields: []string{"action"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "ledger write hides the cause",
			err:        &faults.LedgerWriteFault{Path: "/secret/audit.csv", Op: "write", Cause: errors.New("disk full")},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "[CSV-013] ledger write failed",
		},
		{
			name:       "configuration fault hides the table",
			err:        faults.NewConfigurationFault("risk_level", "GxP Partial/Custom"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "[CSV-001] configuration fault",
		},
		{
			name:       "unknown error",
			err:        fmt.Errorf("wrapped: %w", errors.New("boom")),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "internal error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, statusFor(tt.err))
			want := tt.wantMsg
			if want == "" {
				want = tt.err.Error()
			}
			assert.Equal(t, want, publicMessage(tt.err))
		})
	}
}

// =============================================================================
// Version State
// =============================================================================

func TestVersionState_UpdateKeepsStateOnError(t *testing.T) {
	vs := NewVersionState(verification.NewKnownVersions("2nd Ed."))

	err := vs.Update(func(k verification.KnownVersions) (verification.KnownVersions, error) {
		return verification.NewKnownVersions("2nd Ed.", "3rd Ed."), errors.New("ledger down")
	})
	require.Error(t, err)
	assert.Equal(t, []string{"2nd Ed."}, vs.Known().List())

	err = vs.Update(func(k verification.KnownVersions) (verification.KnownVersions, error) {
		return verification.NewKnownVersions(append(k.List(), "3rd Ed.")...), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2nd Ed.", "3rd Ed."}, vs.Known().List())
}

func TestVersionState_ConcurrentUpdatesSerialize(t *testing.T) {
	vs := NewVersionState(verification.KnownVersions{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = vs.Update(func(k verification.KnownVersions) (verification.KnownVersions, error) {
				return verification.NewKnownVersions(append(k.List(), fmt.Sprintf("v%02d", i))...), nil
			})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, vs.Known().Len())
}

// =============================================================================
// Retrieval Helpers
// =============================================================================

func TestVerifyDeps_SearchDefaults(t *testing.T) {
	override := 0.5
	tests := []struct {
		name      string
		deps      VerifyDeps
		reqK      int
		reqMin    *float64
		wantK     int
		wantScore float64
	}{
		{"package defaults", VerifyDeps{}, 0, nil, retrieval.DefaultTopK, retrieval.DefaultMinScore},
		{"configured defaults", VerifyDeps{TopK: 3, MinScore: 0.6}, 0, nil, 3, 0.6},
		{"request wins", VerifyDeps{TopK: 3, MinScore: 0.6}, 7, &override, 7, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantK, tt.deps.topK(tt.reqK))
			assert.Equal(t, tt.wantScore, tt.deps.minScore(tt.reqMin))
		})
	}
}

type queryRecorder struct {
	mu      sync.Mutex
	queries []string
}

func (q *queryRecorder) Search(_ context.Context, query string, _ int, _ float64) ([]verification.Passage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queries = append(q.queries, query)
	return []verification.Passage{{Text: "found for " + query, Score: 0.9}}, nil
}

func TestFillPassages(t *testing.T) {
	given := []verification.Passage{{Text: "given", Score: 0.8}}
	items := []decisions.BatchItem{
		{Subject: verification.Subject{ID: "URS-1", Statement: "Export", Criticality: "Low", RegulatoryRationale: "GAMP 5"}},
		{Subject: verification.Subject{ID: "URS-2", Statement: "Print", Criticality: "Low", RegulatoryRationale: "Annex 11"}, Passages: given},
		{Subject: verification.Subject{ID: "URS-3"}},
	}
	r := &queryRecorder{}

	require.NoError(t, fillPassages(context.Background(), r, items, 5, 0.35))

	assert.Equal(t, []string{"Export GAMP 5"}, r.queries)
	assert.Equal(t, "found for Export GAMP 5", items[0].Passages[0].Text)
	assert.Equal(t, given, items[1].Passages)
	assert.Empty(t, items[2].Passages, "invalid subjects are left for the core to report")
}

func TestFillPassages_NilRetriever(t *testing.T) {
	items := []decisions.BatchItem{{Subject: verification.Subject{ID: "URS-1"}}}
	assert.NoError(t, fillPassages(context.Background(), nil, items, 5, 0.35))
	assert.Empty(t, items[0].Passages)
}

// =============================================================================
// Audit Events
// =============================================================================

// countingLedger counts appends that reach the ledger.
type countingLedger struct {
	mu      sync.Mutex
	next    decisions.Ledger
	appends int
}

func (c *countingLedger) Append(ev ledger.Event) (string, error) {
	c.mu.Lock()
	c.appends++
	c.mu.Unlock()
	return c.next.Append(ev)
}

func TestHandleAuditEvent_RejectsInvalidAction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name   string
		action string
	}{
		{"path traversal", "/../../outside/PWNED"},
		{"nested path", "X/nonexistent/Y"},
		{"lower case", "signed_off"},
		{"space", "SIGNED OFF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			l, err := ledger.New(filepath.Join(root, "output", "audit_trail.csv"))
			require.NoError(t, err)
			counting := &countingLedger{next: l}

			r := gin.New()
			r.POST("/v1/audit/events", HandleAuditEvent(decisions.New(counting), logger))

			body := fmt.Sprintf(`{"agent_name":"A","action":%q,"reasoning":{"inputs":{},"steps":["s"],"outputs":{}}}`, tt.action)
			req := httptest.NewRequest(http.MethodPost, "/v1/audit/events", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "action_code")
			assert.Zero(t, counting.appends)

			_, statErr := os.Stat(l.Path())
			assert.True(t, errors.Is(statErr, os.ErrNotExist), "ledger must not be created")
			_, statErr = os.Stat(filepath.Join(root, "outside"))
			assert.True(t, errors.Is(statErr, os.ErrNotExist), "nothing written outside the ledger dir")
		})
	}
}

func TestHandleAuditEvent_LedgerRejectionIsClientError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := decisions.New(&rejectingLedger{})

	r := gin.New()
	r.POST("/v1/audit/events", HandleAuditEvent(orch, logger))

	req := httptest.NewRequest(http.MethodPost, "/v1/audit/events",
		strings.NewReader(`{"agent_name":"A","action":"SIGNED_OFF"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "CSV-014")
}

// rejectingLedger refuses every event as invalid.
type rejectingLedger struct{}

func (rejectingLedger) Append(ev ledger.Event) (string, error) {
	return "", &faults.InvalidEventFault{Action: ev.Action, Fields: []string{"action"}}
}
