// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

const (
	// RequestIDHeader carries the request correlation ID.
	RequestIDHeader = "X-Request-ID"

	requestIDKey = "request_id"
	claimsKey    = "access_claims"
	userIDKey    = "user_id"
)

// HTTPRecorder observes served requests.
type HTTPRecorder interface {
	RecordHTTP(method, route string, status int, elapsed time.Duration)
}

type nopHTTPRecorder struct{}

func (nopHTTPRecorder) RecordHTTP(string, string, int, time.Duration) {}

// requestID propagates or mints a request ID.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = ulid.Make().String()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// observe logs and records every request after it is served.
func observe(logger *slog.Logger, rec HTTPRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		rec.RecordHTTP(c.Request.Method, route, status, elapsed)

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", c.GetString(requestIDKey))
	}
}

// bearerAuth verifies the access token and stores the caller's user ID.
func (h *handler) bearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		token = strings.TrimSpace(token)
		if !found || token == "" {
			h.writeError(c, oops.Code(auth.CodeUnauthorized).Errorf("authentication required"), ErrUnauthorized)
			return
		}

		claims, err := h.svc.Authenticate(c.Request.Context(), token)
		if err != nil {
			h.writeError(c, err, ErrUnauthorized)
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			h.writeError(c, err, ErrUnauthorized)
			return
		}

		c.Set(claimsKey, claims)
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// currentUserID returns the ID stored by bearerAuth.
func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}
