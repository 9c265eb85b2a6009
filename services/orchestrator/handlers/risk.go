// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianCSV/services/compliance/decisions"
	"github.com/AleutianAI/AleutianCSV/services/compliance/faults"
	"github.com/AleutianAI/AleutianCSV/services/compliance/risk"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianCSV/services/policy_engine"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// HandleChangeRequestWebhook assesses a ServiceNow change request.
//
// # Description
//
// Records CHANGE_REQUEST_RECEIVED, runs the free-text risk assessment and
// records CHANGE_REQUEST_ASSESSED. On failure the orchestrator records
// CHANGE_REQUEST_FAILED and the handler answers 500 with status "error".
//
// # Examples
//
//	router.POST("/webhook/sn-change", HandleChangeRequestWebhook(orch, logger))
func HandleChangeRequestWebhook(orch *decisions.Orchestrator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "ChangeRequestWebhook.handler")
		defer span.End()

		var req datatypes.ChangeRequestWebhook
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		span.SetAttributes(attribute.String("change_request.id", req.CRID))

		out, err := orch.AssessChangeRequest(ctx, decisions.ChangeRequest{
			ID:          req.CRID,
			Description: req.Description,
			Criticality: req.SystemCriticality,
			ChangeType:  req.ChangeType,
			ActorID:     middleware.GetActor(c),
		})
		now := time.Now().UTC().Format(time.RFC3339)
		if err != nil {
			span.RecordError(err)
			logger.Error("webhook.change_request.failed", "cr_id", req.CRID, "error", err)
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, datatypes.ChangeRequestResponse{
				Status:    datatypes.StatusError,
				CRID:      req.CRID,
				Message:   "Risk assessment failed: " + publicMessage(err),
				Timestamp: now,
				ErrorCode: faults.CodeOf(err),
			})
			return
		}

		view := datatypes.NewRiskAssessmentView(out.Assessment)
		logger.Info("webhook.change_request.assessed",
			"cr_id", req.CRID, "risk_level", view.RiskLevel, "rpn", view.RPN)
		c.JSON(http.StatusOK, datatypes.ChangeRequestResponse{
			Status:         datatypes.StatusAssessed,
			CRID:           req.CRID,
			Message:        fmt.Sprintf("Risk assessment complete: %s risk", out.Assessment.Level),
			Timestamp:      now,
			RiskAssessment: &view,
			ReasoningHash:  out.Hash,
		})
	}
}

// HandleRiskAssess scores a change from rank names or free text.
func HandleRiskAssess(orch *decisions.Orchestrator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "RiskAssess.handler")
		defer span.End()

		var req datatypes.RiskAssessRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		var (
			a    risk.Assessment
			hash string
			err  error
		)
		switch {
		case req.Severity != "":
			score, perr := scoreRequest(req)
			if perr != nil {
				badRequest(c, perr)
				return
			}
			score.ActorID = middleware.GetActor(c)
			a, hash, err = orch.ScoreRisk(ctx, score)
		case req.Criticality != "" || req.ChangeType != "":
			a, hash, err = orch.AssessRisk(ctx, decisions.AssessRequest{
				Criticality:   req.Criticality,
				ChangeType:    req.ChangeType,
				Detectability: req.Detectability,
				Reference:     req.Reference,
				ActorID:       middleware.GetActor(c),
			})
		default:
			badRequest(c, errors.New("either severity or criticality/change_type is required"))
			return
		}
		if err != nil {
			span.RecordError(err)
			writeError(c, logger, "risk.assess.failed", err)
			return
		}

		c.JSON(http.StatusOK, datatypes.RiskAssessResponse{
			RiskAssessment: datatypes.NewRiskAssessmentView(a),
			ReasoningHash:  hash,
		})
	}
}

// scoreRequest parses explicit rank names.
func scoreRequest(req datatypes.RiskAssessRequest) (decisions.ScoreRequest, error) {
	var out decisions.ScoreRequest
	if err := out.Severity.UnmarshalText([]byte(req.Severity)); err != nil {
		return out, err
	}
	if err := out.Occurrence.UnmarshalText([]byte(req.Occurrence)); err != nil {
		return out, err
	}
	out.Detectability = risk.DetectabilityMedium
	if req.Detectability != "" {
		if err := out.Detectability.UnmarshalText([]byte(req.Detectability)); err != nil {
			return out, err
		}
	}
	out.Reference = req.Reference
	return out, nil
}

// HandleTestingStrategy determines the testing strategy for a risk level.
func HandleTestingStrategy(orch *decisions.Orchestrator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "TestingStrategy.handler")
		defer span.End()

		var req datatypes.StrategyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		level, err := risk.ParseLevel(req.RiskLevel)
		if err != nil {
			badRequest(c, err)
			return
		}

		strategy, hash, err := orch.DetermineTestingStrategy(ctx, level, middleware.GetActor(c))
		if err != nil {
			span.RecordError(err)
			writeError(c, logger, "risk.strategy.failed", err)
			return
		}
		c.JSON(http.StatusOK, datatypes.StrategyResponse{
			RiskLevel:       string(level),
			Strategy:        string(strategy),
			TestingStrategy: strategy.DisplayName(),
			ReasoningHash:   hash,
		})
	}
}

// HandleMatrixDerive looks up the decision matrix for a category and method.
func HandleMatrixDerive(orch *decisions.Orchestrator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "MatrixDerive.handler")
		defer span.End()

		var req datatypes.DeriveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		category, err := policy_engine.ParseCategory(req.Category)
		if err != nil {
			badRequest(c, err)
			return
		}
		method, err := policy_engine.ParseMethod(req.Method)
		if err != nil {
			badRequest(c, err)
			return
		}

		d, hash, err := orch.DeriveRiskAndStrategy(ctx, category, method, middleware.GetActor(c))
		if err != nil {
			span.RecordError(err)
			writeError(c, logger, "matrix.derive.failed", err)
			return
		}
		c.JSON(http.StatusOK, datatypes.DeriveResponse{Derivation: d, ReasoningHash: hash})
	}
}
