// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/pkg/errutil"
)

// Error codes in response bodies.
const (
	ErrValidation          = "ValidationError"
	ErrEmailAlreadyExists  = "EmailAlreadyExists"
	ErrInvalidCredentials  = "InvalidCredentials"
	ErrInvalidRefreshToken = "InvalidRefreshToken"
	ErrEmailNotVerified    = "EmailNotVerified"
	ErrInvalidToken        = "InvalidToken"
	ErrNotFound            = "NotFound"
	ErrNoLocalCredential   = "NoLocalCredential"
	ErrUnauthorized        = "Unauthorized"
	ErrInternal            = "InternalError"
)

type errorMapping struct {
	status int
	code   string
}

var kindMappings = map[auth.Kind]errorMapping{
	auth.KindValidation:        {http.StatusBadRequest, ErrValidation},
	auth.KindConflict:          {http.StatusConflict, ErrEmailAlreadyExists},
	auth.KindUnauthorized:      {http.StatusUnauthorized, ErrInvalidCredentials},
	auth.KindForbidden:         {http.StatusForbidden, ErrEmailNotVerified},
	auth.KindInvalidToken:      {http.StatusBadRequest, ErrInvalidToken},
	auth.KindNotFound:          {http.StatusNotFound, ErrNotFound},
	auth.KindNoLocalCredential: {http.StatusBadRequest, ErrNoLocalCredential},
}

// writeError maps err to a response. unauthorizedCode overrides the code of
// Unauthorized errors when non-empty. Internal errors are logged and their
// details withheld.
func (h *handler) writeError(c *gin.Context, err error, unauthorizedCode string) {
	kind := auth.KindOf(err)
	mapping, expected := kindMappings[kind]
	if !expected {
		errutil.LogError(c.Request.Context(), h.logger, "request failed", err)
		mapping = errorMapping{http.StatusInternalServerError, ErrInternal}
	}
	if kind == auth.KindUnauthorized && unauthorizedCode != "" {
		mapping.code = unauthorizedCode
	}

	c.AbortWithStatusJSON(mapping.status, ErrorResponse{
		Error:     mapping.code,
		Message:   auth.PublicMessage(err),
		Fields:    fieldsOf(err),
		Timestamp: h.now().UTC(),
		Path:      c.Request.URL.Path,
	})
}

// fieldsOf collects per-field messages from a Validation error: a binding
// failure carries "fields", an engine check carries one "field".
func fieldsOf(err error) map[string]string {
	if auth.KindOf(err) != auth.KindValidation {
		return nil
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	ctx := oopsErr.Context()
	if fields, ok := ctx["fields"].(map[string]string); ok {
		return fields
	}
	if field, ok := ctx["field"].(string); ok {
		return map[string]string{field: auth.PublicMessage(err)}
	}
	return nil
}
