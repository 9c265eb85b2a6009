// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianCSV/services/compliance/decisions"
	"github.com/AleutianAI/AleutianCSV/services/compliance/verification"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/retrieval"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// =============================================================================
// Version State
// =============================================================================

// VersionState owns the regulatory versions seen by this process.
//
// # Description
//
// The decision core treats the known-version set as a value passed in and
// returned. VersionState is the one place that holds it between requests.
// Update runs the whole verification under the lock so two concurrent
// requests cannot both report the same version as new.
//
// # Thread Safety
//
// Safe for concurrent use.
type VersionState struct {
	mu    sync.Mutex
	known verification.KnownVersions
}

// NewVersionState starts from initial.
func NewVersionState(initial verification.KnownVersions) *VersionState {
	return &VersionState{known: initial}
}

// Known returns the current set.
func (v *VersionState) Known() verification.KnownVersions {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.known
}

// Update calls fn with the current set and stores the set it returns when
// fn succeeds.
func (v *VersionState) Update(fn func(known verification.KnownVersions) (verification.KnownVersions, error)) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	next, err := fn(v.known)
	if err != nil {
		return err
	}
	v.known = next
	return nil
}

// =============================================================================
// Handlers
// =============================================================================

// VerifyDeps groups the collaborators of the verification handlers.
type VerifyDeps struct {
	Orchestrator *decisions.Orchestrator
	Versions     *VersionState
	// Retriever supplies passages when a request carries none. May be nil.
	Retriever retrieval.Retriever
	// TopK and MinScore apply when a request leaves them unset. Values
	// <= 0 use the retrieval package defaults.
	TopK     int
	MinScore float64
	Logger   *slog.Logger
}

// HandleVerify verifies one requirement subject.
//
// # Description
//
// Uses the passages in the request, or retrieves them with the subject's
// statement and rationale as the query when none are given and a retriever
// is configured. Records URS_VERIFIED or COMPLIANCE_EXCEPTION, preceded by
// REG_VERSION_CHANGE_DETECTED for each newly seen regulatory version.
//
// # Outputs
//
//   - 200 with the verdict (Rejected is a normal result)
//   - 400 for a subject missing required fields
//   - 502 when retrieval fails
//   - 500 when the ledger append fails
func HandleVerify(deps VerifyDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "Verify.handler")
		defer span.End()

		var req datatypes.VerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		if err := req.Subject.Validate(); err != nil {
			writeError(c, deps.Logger, "verify.subject.invalid", err)
			return
		}
		span.SetAttributes(attribute.String("verify.subject_id", req.Subject.ID))

		passages := req.Passages
		if len(passages) == 0 && deps.Retriever != nil {
			found, err := deps.Retriever.Search(ctx, subjectQuery(req.Subject), deps.topK(req.TopK), deps.minScore(req.MinScore))
			if err != nil {
				span.RecordError(err)
				retrievalFailed(c, deps.Logger, err)
				return
			}
			passages = found
		}

		var out decisions.VerifyOutcome
		err := deps.Versions.Update(func(known verification.KnownVersions) (verification.KnownVersions, error) {
			var err error
			out, err = deps.Orchestrator.VerifySubject(ctx, req.Subject, passages, known, middleware.GetActor(c))
			return out.Known, err
		})
		if err != nil {
			span.RecordError(err)
			writeError(c, deps.Logger, "verify.failed", err)
			return
		}

		c.JSON(http.StatusOK, datatypes.VerifyResponse{
			Result:        out.Result,
			Passages:      passages,
			NewVersions:   nonNil(out.NewVersions),
			KnownVersions: nonNil(out.Known.List()),
			ReasoningHash: out.Hash,
		})
	}
}

// HandleVerifyBatch verifies several subjects in order.
//
// # Description
//
// Items without passages are retrieved concurrently (bounded) before the
// core runs. The core validates every subject before recording anything.
func HandleVerifyBatch(deps VerifyDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "VerifyBatch.handler")
		defer span.End()

		var req datatypes.BatchVerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		span.SetAttributes(attribute.Int("verify.batch_size", len(req.Items)))

		items := make([]decisions.BatchItem, len(req.Items))
		for i, it := range req.Items {
			items[i] = decisions.BatchItem{Subject: it.Subject, Passages: it.Passages}
		}
		if err := fillPassages(ctx, deps.Retriever, items, deps.topK(req.TopK), deps.minScore(req.MinScore)); err != nil {
			span.RecordError(err)
			retrievalFailed(c, deps.Logger, err)
			return
		}

		var out decisions.BatchOutcome
		err := deps.Versions.Update(func(known verification.KnownVersions) (verification.KnownVersions, error) {
			var err error
			out, err = deps.Orchestrator.VerifyBatch(ctx, items, known, middleware.GetActor(c))
			return out.Known, err
		})
		if err != nil {
			span.RecordError(err)
			writeError(c, deps.Logger, "verify.batch.failed", err)
			return
		}

		c.JSON(http.StatusOK, datatypes.BatchVerifyResponse{
			BatchID:       out.BatchID,
			Results:       out.Results,
			Approved:      out.Approved,
			Rejected:      out.Rejected,
			NewVersions:   nonNil(out.NewVersions),
			KnownVersions: nonNil(out.Known.List()),
			ReasoningHash: out.Hash,
		})
	}
}

// fillPassages retrieves passages for items that carry none. Items with
// an invalid subject are skipped so the core reports them.
func fillPassages(ctx context.Context, r retrieval.Retriever, items []decisions.BatchItem, k int, threshold float64) error {
	if r == nil {
		return nil
	}
	var (
		idx     []int
		queries []string
	)
	for i, it := range items {
		if len(it.Passages) == 0 && it.Subject.Validate() == nil {
			idx = append(idx, i)
			queries = append(queries, subjectQuery(it.Subject))
		}
	}
	if len(queries) == 0 {
		return nil
	}
	results, err := retrieval.SearchAll(ctx, r, queries, k, threshold)
	if err != nil {
		return err
	}
	for j, i := range idx {
		items[i].Passages = results[j]
	}
	return nil
}

func subjectQuery(s verification.Subject) string {
	return strings.TrimSpace(s.Statement + " " + s.RegulatoryRationale)
}

func (d VerifyDeps) topK(k int) int {
	switch {
	case k > 0:
		return k
	case d.TopK > 0:
		return d.TopK
	default:
		return retrieval.DefaultTopK
	}
}

func (d VerifyDeps) minScore(v *float64) float64 {
	switch {
	case v != nil:
		return *v
	case d.MinScore > 0:
		return d.MinScore
	default:
		return retrieval.DefaultMinScore
	}
}

func retrievalFailed(c *gin.Context, logger *slog.Logger, err error) {
	logger.Error("verify.retrieval.failed", "path", c.FullPath(), "error", err)
	_ = c.Error(err)
	c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{Error: "passage retrieval failed"})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
