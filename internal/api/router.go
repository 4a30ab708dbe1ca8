// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package api exposes the account flows over HTTP with gin.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

// AccountService is the engine surface the API drives. *auth.Service
// implements it.
type AccountService interface {
	Register(ctx context.Context, email, password string, displayName *string) (*auth.User, error)
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (*auth.TokenPair, *auth.User, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	GetProfile(ctx context.Context, userID int64) (*auth.User, error)
	UpdateProfile(ctx context.Context, userID int64, displayName *string) (*auth.User, error)
	ChangeEmail(ctx context.Context, userID int64, newEmail, password string) (*auth.User, error)
	ChangePassword(ctx context.Context, userID int64, current, next string) error
	DeleteAccount(ctx context.Context, userID int64, password *string) error
	Authenticate(ctx context.Context, accessToken string) (*auth.AccessClaims, error)
	Ping(ctx context.Context) error
}

// healthTimeout bounds the store ping of GET /health.
const healthTimeout = 2 * time.Second

type handler struct {
	svc      AccountService
	logger   *slog.Logger
	recorder HTTPRecorder
	now      func() time.Time
}

// Option configures the router.
type Option func(*handler)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithHTTPRecorder sets the observer of served requests.
func WithHTTPRecorder(rec HTTPRecorder) Option {
	return func(h *handler) {
		if rec != nil {
			h.recorder = rec
		}
	}
}

// WithClock replaces the time source of response timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewRouter builds the HTTP handler for svc.
func NewRouter(svc AccountService, opts ...Option) *gin.Engine {
	registerValidations()

	h := &handler{
		svc:      svc,
		logger:   slog.Default(),
		recorder: nopHTTPRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}

	r := gin.New()
	r.Use(requestID(), observe(h.logger, h.recorder), gin.CustomRecovery(func(c *gin.Context, recovered any) {
		h.writeError(c, oops.Code("HTTP_PANIC").Errorf("handler panicked: %v", recovered), "")
	}))
	r.NoRoute(func(c *gin.Context) {
		h.writeError(c, oops.Code(auth.CodeNotFound).Errorf("route not found"), "")
	})

	r.GET("/health", h.health)

	authGroup := r.Group("/auth")
	authGroup.POST("/register", h.register)
	authGroup.POST("/verify-email", h.verifyEmail)
	authGroup.POST("/resend-verification", h.resendVerification)
	authGroup.POST("/login", h.login)
	authGroup.POST("/refresh", h.refresh)
	authGroup.POST("/logout", h.logout)
	authGroup.POST("/password-reset/request", h.requestPasswordReset)
	authGroup.POST("/password-reset/confirm", h.confirmPasswordReset)

	users := r.Group("/users", h.bearerAuth())
	users.GET("/me", h.getProfile)
	users.PATCH("/me", h.updateProfile)
	users.POST("/me/email", h.changeEmail)
	users.POST("/me/password", h.changePassword)
	users.DELETE("/me", h.deleteAccount)

	return r
}

// bind decodes the JSON body into req, writing a Validation error on failure.
func (h *handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.writeError(c, bindError(err), "")
		return false
	}
	return true
}

func (h *handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC(),
		Services:  map[string]string{"database": "up"},
	}
	status := http.StatusOK
	if err := h.svc.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "health check failed", "operation", "ping store", "error", err)
		resp.Status = "unhealthy"
		resp.Services["database"] = "down"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
