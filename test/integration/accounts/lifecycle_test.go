// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

//go:build integration

package accounts_test

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/accountd/accountd/internal/api"
	"github.com/accountd/accountd/internal/auth"
)

const password = "Sup3rSecret"

var _ = Describe("Account lifecycle", func() {
	Describe("registration and verification", func() {
		It("refuses login until the email is verified", func() {
			Expect(call(http.MethodPost, "/auth/register", "", jsonObject{
				"email": "unverified@example.com", "password": password,
			}, nil)).To(Equal(http.StatusCreated))

			var body api.ErrorResponse
			Expect(call(http.MethodPost, "/auth/login", "", jsonObject{
				"email": "unverified@example.com", "password": password,
			}, &body)).To(Equal(http.StatusForbidden))
			Expect(body.Error).To(Equal(api.ErrEmailNotVerified))
		})

		It("rejects a verification token the second time", func() {
			Expect(call(http.MethodPost, "/auth/register", "", jsonObject{
				"email": "twice@example.com", "password": password,
			}, nil)).To(Equal(http.StatusCreated))
			token := env.mail.lastToken(auth.MessageVerification, "twice@example.com")

			Expect(call(http.MethodPost, "/auth/verify-email", "", jsonObject{"token": token}, nil)).
				To(Equal(http.StatusOK))
			Expect(call(http.MethodPost, "/auth/verify-email", "", jsonObject{"token": token}, nil)).
				To(Equal(http.StatusBadRequest))
		})

		It("reports a duplicate email as a conflict", func() {
			registerVerified("taken@example.com", password)

			Expect(call(http.MethodPost, "/auth/register", "", jsonObject{
				"email": "taken@example.com", "password": password,
			}, nil)).To(Equal(http.StatusConflict))
		})
	})

	Describe("sessions", func() {
		It("rotates refresh tokens and rejects the spent one", func() {
			first := registerVerified("rotate@example.com", password)

			var second api.TokenResponse
			Expect(call(http.MethodPost, "/auth/refresh", "", jsonObject{
				"refreshToken": first.RefreshToken,
			}, &second)).To(Equal(http.StatusOK))
			Expect(second.RefreshToken).NotTo(Equal(first.RefreshToken))

			By("replaying the spent token")
			Expect(call(http.MethodPost, "/auth/refresh", "", jsonObject{
				"refreshToken": first.RefreshToken,
			}, nil)).To(Equal(http.StatusUnauthorized))

			By("rotating the successor normally")
			Expect(call(http.MethodPost, "/auth/refresh", "", jsonObject{
				"refreshToken": second.RefreshToken,
			}, nil)).To(Equal(http.StatusOK))
		})

		It("treats logout as idempotent", func() {
			tokens := registerVerified("logout@example.com", password)
			body := jsonObject{"refreshToken": tokens.RefreshToken}

			Expect(call(http.MethodPost, "/auth/logout", "", body, nil)).To(Equal(http.StatusOK))
			Expect(call(http.MethodPost, "/auth/logout", "", body, nil)).To(Equal(http.StatusOK))
			Expect(call(http.MethodPost, "/auth/refresh", "", body, nil)).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("password reset", func() {
		It("replaces the password and ends every session", func() {
			tokens := registerVerified("reset@example.com", password)

			Expect(call(http.MethodPost, "/auth/password-reset/request", "", jsonObject{
				"email": "reset@example.com",
			}, nil)).To(Equal(http.StatusOK))
			resetToken := env.mail.lastToken(auth.MessagePasswordReset, "reset@example.com")

			Expect(call(http.MethodPost, "/auth/password-reset/confirm", "", jsonObject{
				"token": resetToken, "newPassword": "N3wPassword",
			}, nil)).To(Equal(http.StatusOK))

			Expect(call(http.MethodPost, "/auth/refresh", "", jsonObject{
				"refreshToken": tokens.RefreshToken,
			}, nil)).To(Equal(http.StatusUnauthorized))
			Expect(call(http.MethodPost, "/auth/login", "", jsonObject{
				"email": "reset@example.com", "password": password,
			}, nil)).To(Equal(http.StatusUnauthorized))
			Expect(call(http.MethodPost, "/auth/login", "", jsonObject{
				"email": "reset@example.com", "password": "N3wPassword",
			}, nil)).To(Equal(http.StatusOK))
		})

		It("answers the same for unknown addresses", func() {
			var known, unknown api.MessageResponse
			registerVerified("known@example.com", password)

			Expect(call(http.MethodPost, "/auth/password-reset/request", "", jsonObject{
				"email": "known@example.com",
			}, &known)).To(Equal(http.StatusOK))
			Expect(call(http.MethodPost, "/auth/password-reset/request", "", jsonObject{
				"email": "nobody@example.com",
			}, &unknown)).To(Equal(http.StatusOK))
			Expect(unknown.Message).To(Equal(known.Message))
		})
	})

	Describe("profile", func() {
		It("changes the email and requires verifying it again", func() {
			tokens := registerVerified("before@example.com", password)

			var profile api.UserMessageResponse
			Expect(call(http.MethodPost, "/users/me/email", tokens.AccessToken, jsonObject{
				"newEmail": "after@example.com", "password": password,
			}, &profile)).To(Equal(http.StatusOK))
			Expect(profile.User.Email).To(Equal("after@example.com"))
			Expect(profile.User.IsEmailVerified).To(BeFalse())

			token := env.mail.lastToken(auth.MessageEmailChange, "after@example.com")
			Expect(call(http.MethodPost, "/auth/verify-email", "", jsonObject{"token": token}, nil)).
				To(Equal(http.StatusOK))
			Expect(call(http.MethodPost, "/auth/login", "", jsonObject{
				"email": "after@example.com", "password": password,
			}, nil)).To(Equal(http.StatusOK))
		})

		It("deletes the account and frees the email", func() {
			tokens := registerVerified("leaving@example.com", password)

			Expect(call(http.MethodDelete, "/users/me", tokens.AccessToken, jsonObject{
				"password": password, "confirmation": api.DeleteConfirmation,
			}, nil)).To(Equal(http.StatusOK))

			Expect(call(http.MethodPost, "/auth/login", "", jsonObject{
				"email": "leaving@example.com", "password": password,
			}, nil)).To(Equal(http.StatusUnauthorized))
			Expect(call(http.MethodPost, "/auth/register", "", jsonObject{
				"email": "leaving@example.com", "password": password,
			}, nil)).To(Equal(http.StatusCreated))
		})
	})

	Describe("maintenance", func() {
		It("purges revoked refresh tokens", func() {
			tokens := registerVerified("purge@example.com", password)
			Expect(call(http.MethodPost, "/auth/logout", "", jsonObject{
				"refreshToken": tokens.RefreshToken,
			}, nil)).To(Equal(http.StatusOK))

			report, err := env.svc.Purge(env.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.RevokedRefreshTokens).To(BeNumerically(">=", 1))
		})

		It("reports the database as up", func() {
			var health api.HealthResponse
			Expect(call(http.MethodGet, "/health", "", nil, &health)).To(Equal(http.StatusOK))
			Expect(health.Services).To(HaveKeyWithValue("database", "up"))
		})
	})
})
