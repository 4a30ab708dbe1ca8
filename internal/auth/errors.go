// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned by repositories when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned by repositories when an insert or update would
// give two non-deleted users the same email.
var ErrDuplicateEmail = errors.New("email already in use")

// Kind classifies an error for callers of the engine.
type Kind int

// Error kinds. KindInternal covers everything that is not an expected outcome.
const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindUnauthorized
	KindForbidden
	KindInvalidToken
	KindNotFound
	KindNoLocalCredential
)

// Error codes carried by expected-outcome errors.
const (
	CodeValidation        = "AUTH_VALIDATION"
	CodeConflict          = "AUTH_CONFLICT"
	CodeUnauthorized      = "AUTH_UNAUTHORIZED"
	CodeForbidden         = "AUTH_FORBIDDEN"
	CodeInvalidToken      = "AUTH_INVALID_TOKEN"
	CodeNotFound          = "AUTH_NOT_FOUND"
	CodeNoLocalCredential = "AUTH_NO_LOCAL_CREDENTIAL"
)

var kindsByCode = map[string]Kind{
	CodeValidation:        KindValidation,
	CodeConflict:          KindConflict,
	CodeUnauthorized:      KindUnauthorized,
	CodeForbidden:         KindForbidden,
	CodeInvalidToken:      KindInvalidToken,
	CodeNotFound:          KindNotFound,
	CodeNoLocalCredential: KindNoLocalCredential,
}

// Caller-visible messages. Credential and token failures share one message
// each so responses cannot be used to enumerate accounts or tokens.
const (
	msgInvalidCredentials = "invalid email or password"
	msgEmailNotVerified   = "email address has not been verified"
	msgInvalidToken       = "token is invalid or has expired"
	msgInvalidRefresh     = "refresh token is invalid or has expired"
	msgEmailInUse         = "email address is already registered"
)

// String returns a stable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindInvalidToken:
		return "invalid_token"
	case KindNotFound:
		return "not_found"
	case KindNoLocalCredential:
		return "no_local_credential"
	default:
		return "internal"
	}
}

// KindOf reports the kind of err. Errors that carry no expected-outcome code,
// including nil-safe unknown errors, are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindInternal
	}
	code, _ := oopsErr.Code().(string)
	if kind, found := kindsByCode[code]; found {
		return kind
	}
	return KindInternal
}

// PublicMessage returns the public message of an expected-outcome error, or a
// generic text for internal failures.
func PublicMessage(err error) string {
	if KindOf(err) == KindInternal {
		return "internal server error"
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Error()
	}
	return err.Error()
}

func errInvalidCredentials() error {
	return oops.Code(CodeUnauthorized).Errorf(msgInvalidCredentials)
}

func errInvalidToken() error {
	return oops.Code(CodeInvalidToken).Errorf(msgInvalidToken)
}
