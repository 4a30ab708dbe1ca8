// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package api

import (
	"time"

	"github.com/accountd/accountd/internal/auth"
)

// DeleteConfirmation must be sent verbatim to delete an account.
const DeleteConfirmation = "DELETE_MY_ACCOUNT"

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email       string  `json:"email" binding:"required,account_email"`
	Password    string  `json:"password" binding:"required,strong_password"`
	DisplayName *string `json:"displayName" binding:"omitempty,display_name"`
}

// TokenRequest carries a single-use token.
type TokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// EmailRequest carries an email address.
type EmailRequest struct {
	Email string `json:"email" binding:"required,account_email"`
}

// LoginRequest is the body of POST /auth/login. Password strength is not
// checked so that login failures stay uniform.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshTokenRequest is the body of /auth/refresh and /auth/logout.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// PasswordResetConfirmRequest is the body of POST /auth/password-reset/confirm.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,strong_password"`
}

// UpdateProfileRequest is the body of PATCH /users/me. A null or absent
// displayName clears it.
type UpdateProfileRequest struct {
	DisplayName *string `json:"displayName" binding:"omitempty,display_name"`
}

// ChangeEmailRequest is the body of POST /users/me/email.
type ChangeEmailRequest struct {
	NewEmail string `json:"newEmail" binding:"required,account_email"`
	Password string `json:"password" binding:"required"`
}

// ChangePasswordRequest is the body of POST /users/me/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,strong_password"`
}

// DeleteAccountRequest is the body of DELETE /users/me.
type DeleteAccountRequest struct {
	Password     *string `json:"password"`
	Confirmation string  `json:"confirmation" binding:"required"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID              int64     `json:"id"`
	Email           string    `json:"email"`
	DisplayName     *string   `json:"displayName"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func newUserResponse(u *auth.User) UserResponse {
	return UserResponse{
		ID:              u.ID,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		IsEmailVerified: u.EmailVerified,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// UserMessageResponse pairs a user with a status message.
type UserMessageResponse struct {
	User    UserResponse `json:"user"`
	Message string       `json:"message"`
}

// TokenResponse is returned by login and refresh. User is set on login only.
type TokenResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresIn    int64         `json:"expiresIn"`
	User         *UserResponse `json:"user,omitempty"`
}

// MessageResponse is a plain status message.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body of every error.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Path      string            `json:"path"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}
