// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

func (h *handler) register(c *gin.Context) {
	var req RegisterRequest
	if !h.bind(c, &req) {
		return
	}
	user, err := h.svc.Register(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.writeError(c, err, "")
		return
	}
	c.JSON(http.StatusCreated, UserMessageResponse{
		User:    newUserResponse(user),
		Message: "Verification email sent. Check your inbox to activate your account.",
	})
}

func (h *handler) verifyEmail(c *gin.Context) {
	var req TokenRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		h.writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Email address verified"})
}

func (h *handler) resendVerification(c *gin.Context) {
	var req EmailRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.ResendVerification(c.Request.Context(), req.Email); err != nil {
		h.writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{
		Message: "If the address belongs to an unverified account, a verification email has been sent",
	})
}

func (h *handler) login(c *gin.Context) {
	var req LoginRequest
	if !h.bind(c, &req) {
		return
	}
	pair, user, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err, "")
		return
	}
	u := newUserResponse(user)
	c.JSON(http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		User:         &u,
	})
}

func (h *handler) refresh(c *gin.Context) {
	var req RefreshTokenRequest
	if !h.bind(c, &req) {
		return
	}
	pair, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(c, err, ErrInvalidRefreshToken)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}

func (h *handler) logout(c *gin.Context) {
	var req RefreshTokenRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Logged out"})
}

func (h *handler) requestPasswordReset(c *gin.Context) {
	var req EmailRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		h.writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{
		Message: "If the address belongs to an account, a password reset email has been sent",
	})
}

func (h *handler) confirmPasswordReset(c *gin.Context) {
	var req PasswordResetConfirmRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.ConfirmPasswordReset(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		h.writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Password has been reset. Log in with the new password."})
}

func (h *handler) getProfile(c *gin.Context) {
	user, err := h.svc.GetProfile(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

func (h *handler) updateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if !h.bind(c, &req) {
		return
	}
	user, err := h.svc.UpdateProfile(c.Request.Context(), currentUserID(c), req.DisplayName)
	if err != nil {
		h.writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

func (h *handler) changeEmail(c *gin.Context) {
	var req ChangeEmailRequest
	if !h.bind(c, &req) {
		return
	}
	user, err := h.svc.ChangeEmail(c.Request.Context(), currentUserID(c), req.NewEmail, req.Password)
	if err != nil {
		h.writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, UserMessageResponse{
		User:    newUserResponse(user),
		Message: "A confirmation email has been sent to the new address",
	})
}

func (h *handler) changePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.ChangePassword(c.Request.Context(), currentUserID(c), req.CurrentPassword, req.NewPassword); err != nil {
		h.writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Password changed. Log in again on your other devices."})
}

func (h *handler) deleteAccount(c *gin.Context) {
	var req DeleteAccountRequest
	if !h.bind(c, &req) {
		return
	}
	if req.Confirmation != DeleteConfirmation {
		h.writeError(c, oops.Code(auth.CodeValidation).
			With("field", "confirmation").
			Errorf("confirmation must be %s", DeleteConfirmation), "")
		return
	}
	if err := h.svc.DeleteAccount(c.Request.Context(), currentUserID(c), req.Password); err != nil {
		h.writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Account deleted"})
}
