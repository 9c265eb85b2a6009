// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"log/slog"

	"github.com/AleutianAI/AleutianCSV/services/compliance/decisions"
	"github.com/AleutianAI/AleutianCSV/services/compliance/verification"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/handlers"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/retrieval"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Deps holds everything the routes need.
//
// # Fields
//
//   - Orchestrator: Decision orchestrator. Required.
//   - Ledger: Ledger location for audit queries. Required.
//   - Versions: Known regulatory versions. Created empty when nil.
//   - Retriever: Passage search for verification. May be nil.
//   - TopK, MinScore: Retrieval defaults for requests that omit them.
//   - Limiter: Token bucket for decision and audit writes. May be nil.
//   - Metrics: Request and rate-limit metrics. May be nil.
//   - Gatherer: Source for /metrics. Defaults to the Prometheus default gatherer.
//   - Logger: Request and handler logging. Defaults to slog.Default().
type Deps struct {
	Orchestrator *decisions.Orchestrator
	Ledger       handlers.LedgerLocation
	Versions     *handlers.VersionState
	Retriever    retrieval.Retriever
	TopK         int
	MinScore     float64
	Limiter      *rate.Limiter
	Metrics      *observability.DecisionMetrics
	Gatherer     prometheus.Gatherer
	Logger       *slog.Logger
}

// SetupRoutes registers every endpoint of the decision service on router.
//
// # Description
//
// Read-only endpoints (/health, /metrics, audit queries) are not rate
// limited. Every endpoint that appends to the ledger shares one limiter.
//
// # Examples
//
//	router := gin.New()
//	routes.SetupRoutes(router, routes.Deps{Orchestrator: orch, Ledger: l})
func SetupRoutes(router *gin.Engine, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Versions == nil {
		deps.Versions = handlers.NewVersionState(verification.KnownVersions{})
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	var (
		reqObserver  middleware.RequestObserver
		rateObserver middleware.RateLimitObserver
	)
	if deps.Metrics != nil {
		reqObserver = deps.Metrics
		rateObserver = deps.Metrics
	}

	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(deps.Logger, reqObserver),
		middleware.Actor(),
	)

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	limited := middleware.RateLimit(deps.Limiter, rateObserver)
	verifyDeps := handlers.VerifyDeps{
		Orchestrator: deps.Orchestrator,
		Versions:     deps.Versions,
		Retriever:    deps.Retriever,
		TopK:         deps.TopK,
		MinScore:     deps.MinScore,
		Logger:       deps.Logger,
	}

	router.POST("/webhook/sn-change", limited, handlers.HandleChangeRequestWebhook(deps.Orchestrator, deps.Logger))

	v1 := router.Group("/v1")
	{
		v1.POST("/risk/assess", limited, handlers.HandleRiskAssess(deps.Orchestrator, deps.Logger))
		v1.POST("/risk/strategy", limited, handlers.HandleTestingStrategy(deps.Orchestrator, deps.Logger))
		v1.POST("/matrix/derive", limited, handlers.HandleMatrixDerive(deps.Orchestrator, deps.Logger))
		v1.POST("/verify", limited, handlers.HandleVerify(verifyDeps))
		v1.POST("/verify/batch", limited, handlers.HandleVerifyBatch(verifyDeps))
		v1.POST("/rtm", limited, handlers.HandleRTM(deps.Orchestrator, deps.Logger))

		audit := v1.Group("/audit")
		{
			audit.POST("/events", limited, handlers.HandleAuditEvent(deps.Orchestrator, deps.Logger))
			audit.GET("/records", handlers.HandleAuditRecords(deps.Ledger, deps.Logger))
			audit.GET("/verify", handlers.HandleAuditVerify(deps.Ledger, deps.Logger))
			audit.GET("/archives/:hash", handlers.HandleArchiveVerify(deps.Ledger, deps.Logger))
		}
	}
}
