// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides Gin middleware for the decision service.
//
// # Request Flow
//
//	Request
//	   │
//	   ▼
//	RequestID ──► sets X-Request-ID, stores it in the context
//	   │
//	   ▼
//	RequestLogger ──► logs and measures the request after it completes
//	   │
//	   ▼
//	Actor ──► resolves the ledger actor from X-User-ID (default SYSTEM)
//	   │
//	   ▼
//	RateLimit (decision routes only) ──► 429 when the bucket is empty
//	   │
//	   ▼
//	Handler (reads the actor via GetActor)
//
// Authentication is not performed here. The actor header is recorded as
// claimed by the caller; deployments that need verified identities put an
// authenticating proxy in front of the service.
package middleware

import (
	"net/http"
	"strings"
	"unicode"

	"github.com/AleutianAI/AleutianCSV/services/compliance/ledger"
	"github.com/gin-gonic/gin"
)

// =============================================================================
// Context Keys
// =============================================================================

const (
	actorKey     = "aleutian_csv_actor"
	requestIDKey = "aleutian_csv_request_id"
)

// Header names.
const (
	HeaderActor     = "X-User-ID"
	HeaderRequestID = "X-Request-ID"
)

// maxActorLength bounds the actor id stored in every ledger row.
const maxActorLength = 128

// =============================================================================
// Context Helpers
// =============================================================================

// SetActor stores the ledger actor in the Gin context.
func SetActor(c *gin.Context, actor string) {
	c.Set(actorKey, actor)
}

// GetActor returns the actor stored by Actor, or ledger.SystemActor when the
// middleware did not run.
//
// # Examples
//
//	func handler(c *gin.Context) {
//	    hash, err := orch.LogEvent(ctx, ledger.Event{ActorID: middleware.GetActor(c), ...})
//	}
func GetActor(c *gin.Context) string {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(string); ok && actor != "" {
			return actor
		}
	}
	return ledger.SystemActor
}

// =============================================================================
// Middleware
// =============================================================================

// Actor resolves the acting user from the X-User-ID header.
//
// # Description
//
// A missing or blank header yields ledger.SystemActor. Values longer than
// 128 characters or containing control characters are rejected with 400,
// since the actor is written verbatim into the audit trail.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware storing the actor for GetActor.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(HeaderActor))
		if actor == "" {
			SetActor(c, ledger.SystemActor)
			c.Next()
			return
		}
		if !validActor(actor) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "invalid " + HeaderActor + " header",
			})
			return
		}
		SetActor(c, actor)
		c.Next()
	}
}

func validActor(actor string) bool {
	if len(actor) > maxActorLength {
		return false
	}
	for _, r := range actor {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
