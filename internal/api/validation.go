// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package api

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

var registerOnce sync.Once

// registerValidations teaches gin's validator the account rules and makes
// field errors use JSON names.
func registerValidations() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("account_email", func(fl validator.FieldLevel) bool {
			return auth.ValidateEmail(fl.Field().String()) == nil
		})
		_ = v.RegisterValidation("strong_password", func(fl validator.FieldLevel) bool {
			return auth.ValidatePassword(fl.Field().String()) == nil
		})
		_ = v.RegisterValidation("display_name", func(fl validator.FieldLevel) bool {
			name := fl.Field().String()
			return auth.ValidateDisplayName(&name) == nil
		})
	})
}

var tagMessages = map[string]string{
	"required":        "is required",
	"account_email":   "must be a valid email address",
	"strong_password": "must be 8 to 72 bytes with an uppercase letter, a lowercase letter and a digit",
	"display_name":    "must be 1 to 100 characters",
}

// bindError converts a gin binding failure into a Validation error with a
// message per offending field.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return oops.Code(auth.CodeValidation).With("cause", err.Error()).Errorf("request body is not valid JSON")
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		msg, ok := tagMessages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		fields[fe.Field()] = msg
	}
	return oops.Code(auth.CodeValidation).With("fields", fields).Errorf("request validation failed")
}
