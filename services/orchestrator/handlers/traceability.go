// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianCSV/services/compliance/decisions"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/middleware"
	"github.com/gin-gonic/gin"
)

// HandleRTM generates a requirements traceability matrix and records
// RTM_GENERATED.
func HandleRTM(orch *decisions.Orchestrator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "RTM.handler")
		defer span.End()

		var req datatypes.RTMRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		m, hash, err := orch.GenerateRTM(ctx, req.Document, req.Script, middleware.GetActor(c))
		if err != nil {
			span.RecordError(err)
			writeError(c, logger, "rtm.generate.failed", err)
			return
		}
		c.JSON(http.StatusOK, datatypes.RTMResponse{Matrix: m, Summary: m.Summary(), ReasoningHash: hash})
	}
}
