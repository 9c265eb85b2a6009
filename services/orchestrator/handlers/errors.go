// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides the HTTP handlers of the decision service.
//
// Handlers are constructors returning gin.HandlerFunc closures over their
// dependencies. Every decision endpoint delegates to the decisions
// orchestrator, which records the decision in the audit ledger before the
// response is written; a failed ledger append fails the request.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianCSV/services/compliance/faults"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/datatypes"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("aleutian.csv.handlers")

// statusFor maps the fault taxonomy to HTTP status codes.
//
//   - InvalidSubjectFault, MalformedReasoningFault, InvalidEventFault: 400
//     (caller must fix input)
//   - ConfigurationFault, LedgerWriteFault: 500 (server side, not retryable
//     by resubmitting the same body)
//   - anything else: 500
func statusFor(err error) int {
	switch {
	case errors.Is(err, faults.ErrInvalidSubject),
		errors.Is(err, faults.ErrMalformedReasoning),
		errors.Is(err, faults.ErrInvalidEvent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage returns the error text safe to return to callers. Client
// faults are returned verbatim; server faults are reduced to their code so
// file paths and I/O details stay in the logs.
func publicMessage(err error) string {
	if statusFor(err) < http.StatusInternalServerError {
		return err.Error()
	}
	switch code := faults.CodeOf(err); code {
	case faults.CodeLedgerWrite:
		return "[" + code + "] " + faults.ErrLedgerWrite.Error()
	case faults.CodeConfiguration:
		return "[" + code + "] " + faults.ErrConfiguration.Error()
	default:
		return "internal error"
	}
}

// writeError logs err and writes the mapped status and body.
func writeError(c *gin.Context, logger *slog.Logger, msg string, err error) {
	status := statusFor(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(c.Request.Context(), level, msg,
		"path", c.FullPath(), "code", faults.CodeOf(err), "error", err)
	_ = c.Error(err)
	c.JSON(status, datatypes.ErrorResponse{Error: publicMessage(err)})
}

// badRequest writes a 400 for binding and parsing errors.
func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
