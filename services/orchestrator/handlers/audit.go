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
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/AleutianAI/AleutianCSV/services/compliance/decisions"
	"github.com/AleutianAI/AleutianCSV/services/compliance/ledger"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// LedgerLocation exposes where the ledger and its archives live.
type LedgerLocation interface {
	Path() string
	ArchiveDir() string
}

var _ LedgerLocation = (*ledger.AuditLedger)(nil)

// maxRecordsLimit caps GET /v1/audit/records.
const maxRecordsLimit = 10000

// HandleAuditEvent records a caller-supplied agent event.
//
// # Description
//
// The actor is taken from X-User-ID. A reasoning chain, when present, must
// carry inputs, steps and outputs or the request is rejected with 400
// before anything is written.
func HandleAuditEvent(orch *decisions.Orchestrator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "AuditEvent.handler")
		defer span.End()

		var req datatypes.AuditEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		span.SetAttributes(attribute.String("audit.action", req.Action))

		hash, err := orch.LogEvent(ctx, req.Event(middleware.GetActor(c)))
		if err != nil {
			span.RecordError(err)
			writeError(c, logger, "audit.event.failed", err)
			return
		}
		c.JSON(http.StatusCreated, datatypes.AuditEventResponse{ReasoningHash: hash})
	}
}

// HandleAuditRecords lists ledger records filtered by the action, actor,
// agent and impact query parameters; limit keeps the latest N.
func HandleAuditRecords(loc LedgerLocation, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := ledger.Filter{
			Action: c.Query("action"),
			Actor:  c.Query("actor"),
			Agent:  c.Query("agent"),
			Impact: c.Query("impact"),
		}
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxRecordsLimit {
				badRequest(c, errors.New("limit must be an integer between 1 and 10000"))
				return
			}
			filter.Limit = n
		}

		records, err := ledger.Records(loc.Path(), filter)
		if err != nil {
			writeError(c, logger, "audit.records.failed", err)
			return
		}
		if records == nil {
			records = []ledger.Record{}
		}
		c.JSON(http.StatusOK, datatypes.AuditRecordsResponse{Records: records, Count: len(records)})
	}
}

// HandleAuditVerify recomputes every reasoning hash in the ledger. The
// response is 200 whether or not tampering was found; see "valid".
func HandleAuditVerify(loc LedgerLocation, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := tracer.Start(c.Request.Context(), "AuditVerify.handler")
		defer span.End()

		report, err := ledger.VerifyLedger(loc.Path())
		if err != nil {
			span.RecordError(err)
			writeError(c, logger, "audit.verify.failed", err)
			return
		}
		valid := report.Valid()
		span.SetAttributes(
			attribute.Int("audit.records", report.Records),
			attribute.Bool("audit.valid", valid),
		)
		if !valid {
			logger.Error("audit.verify.tamper_detected",
				"tampered", len(report.Tampered), "malformed", len(report.Malformed))
		}
		c.JSON(http.StatusOK, datatypes.AuditVerifyResponse{Report: report, Valid: valid})
	}
}

// HandleArchiveVerify locates the logic archive for :hash and recomputes
// its archive hash.
func HandleArchiveVerify(loc LedgerLocation, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		hash := c.Param("hash")
		path, err := ledger.FindArchive(loc.ArchiveDir(), hash)
		switch {
		case errors.Is(err, os.ErrNotExist):
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "no logic archive for " + hash})
			return
		case err != nil:
			badRequest(c, err)
			return
		}

		report, err := ledger.VerifyArchive(path)
		if err != nil {
			writeError(c, logger, "audit.archive.verify_failed", err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
