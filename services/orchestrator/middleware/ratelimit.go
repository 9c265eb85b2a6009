// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitObserver is notified of rejected requests.
type RateLimitObserver interface {
	ObserveRateLimited(route string)
}

// RateLimit rejects requests with 429 when limiter has no token available.
//
// # Description
//
// One limiter is shared by every route the middleware is attached to, so
// the budget applies to ledger writes as a whole. A nil limiter disables
// limiting.
//
// # Inputs
//
//   - limiter: Token bucket, e.g. rate.NewLimiter(rate.Limit(50), 100).
//   - observer: Optional, may be nil.
func RateLimit(limiter *rate.Limiter, observer RateLimitObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limiter.Allow() {
			c.Next()
			return
		}
		if observer != nil {
			observer.ObserveRateLimited(c.FullPath())
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "rate limit exceeded",
		})
	}
}
