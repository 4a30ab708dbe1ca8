// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Store bundles the repositories of one identity store.
type Store interface {
	Transactor
	Users() UserRepository
	RefreshTokens() RefreshTokenRepository
	EphemeralTokens(kind TokenKind) EphemeralTokenRepository
	Ping(ctx context.Context) error
}

// Config is the read-only engine configuration, built once at startup.
type Config struct {
	Secret          string
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// DefaultConfig returns the engine defaults with the given signing secret.
func DefaultConfig(secret string) Config {
	return Config{
		Secret:          secret,
		Issuer:          "account-system",
		Audience:        "account-system-users",
		AccessTokenTTL:  DefaultAccessTokenTTL,
		RefreshTokenTTL: DefaultRefreshTokenTTL,
		VerificationTTL: EmailVerificationTTL,
		ResetTTL:        PasswordResetTTL,
	}
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithFlowRecorder sets the observer of flow outcomes.
func WithFlowRecorder(r FlowRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Flow names reported to the FlowRecorder.
const (
	FlowRegister             = "register"
	FlowVerifyEmail          = "verify_email"
	FlowResendVerification   = "resend_verification"
	FlowLogin                = "login"
	FlowRefresh              = "refresh"
	FlowLogout               = "logout"
	FlowRequestPasswordReset = "request_password_reset"
	FlowConfirmPasswordReset = "confirm_password_reset"
	FlowChangePassword       = "change_password"
	FlowChangeEmail          = "change_email"
	FlowUpdateProfile        = "update_profile"
	FlowDeleteAccount        = "delete_account"
)

// Service composes the credential, single-use token and session managers
// into the public account flows.
type Service struct {
	store         Store
	credentials   *CredentialManager
	verifications *EphemeralTokenManager
	resets        *EphemeralTokenManager
	sessions      *SessionManager
	access        *AccessTokenIssuer
	mailer        Mailer
	recorder      FlowRecorder
	logger        *slog.Logger
	now           func() time.Time
}

// NewService wires the engine over store.
func NewService(store Store, hasher PasswordHasher, mailer Mailer, cfg Config, opts ...Option) (*Service, error) {
	switch {
	case store == nil:
		return nil, oops.Code("SERVICE_INVALID_CONFIG").Errorf("store is required")
	case hasher == nil:
		return nil, oops.Code("SERVICE_INVALID_CONFIG").Errorf("password hasher is required")
	case mailer == nil:
		return nil, oops.Code("SERVICE_INVALID_CONFIG").Errorf("mailer is required")
	}

	s := &Service{
		store:    store,
		mailer:   mailer,
		recorder: nopRecorder{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.access, err = NewAccessTokenIssuer(cfg.Secret, cfg.Issuer, cfg.Audience, cfg.AccessTokenTTL); err != nil {
		return nil, err
	}
	if s.credentials, err = NewCredentialManager(store.Users(), hasher, store, s.logger, s.now); err != nil {
		return nil, err
	}
	if s.verifications, err = NewEphemeralTokenManager(store.EphemeralTokens(KindEmailVerification), cfg.VerificationTTL, s.now); err != nil {
		return nil, err
	}
	if s.resets, err = NewEphemeralTokenManager(store.EphemeralTokens(KindPasswordReset), cfg.ResetTTL, s.now); err != nil {
		return nil, err
	}
	if s.sessions, err = NewSessionManager(store.Users(), store.RefreshTokens(), store, s.access, cfg.RefreshTokenTTL, s.now); err != nil {
		return nil, err
	}
	return s, nil
}

// Register creates an unverified account and sends its verification email.
func (s *Service) Register(ctx context.Context, email, password string, displayName *string) (_ *User, err error) {
	defer func() { s.recorder.RecordFlow(FlowRegister, err) }()

	if err := firstError(ValidateEmail(email), ValidatePassword(password), ValidateDisplayName(displayName)); err != nil {
		return nil, err
	}

	// The user and its first verification token commit together.
	var token string
	user, err := s.credentials.Register(ctx, email, password, displayName, func(ctx context.Context, user *User) error {
		var issueErr error
		token, issueErr = s.verifications.Issue(ctx, user.ID)
		if issueErr != nil {
			return oops.Code("REGISTER_FAILED").
				With("operation", "issue verification token").
				With("user_id", user.ID).
				Wrap(issueErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	s.notify(ctx, Message{Kind: MessageVerification, To: user.Email, Token: token, DisplayName: user.DisplayName})
	return user, nil
}

// VerifyEmail consumes a verification token and marks its user verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) (err error) {
	defer func() { s.recorder.RecordFlow(FlowVerifyEmail, err) }()

	var user *User
	err = s.store.InTransaction(ctx, func(ctx context.Context) error {
		userID, err := s.verifications.Consume(ctx, token)
		if err != nil {
			return err
		}
		if err := s.store.Users().SetEmailVerified(ctx, userID, true, s.now()); err != nil {
			return s.userError(err, userID, "set email verified")
		}
		user, err = s.store.Users().GetByID(ctx, userID)
		return s.userError(err, userID, "reload user")
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "email verified", "user_id", user.ID)
	s.notify(ctx, Message{Kind: MessageWelcome, To: user.Email, DisplayName: user.DisplayName})
	return nil
}

// ResendVerification issues a fresh verification token to an unverified
// account. Unknown and already verified addresses are silently ignored.
func (s *Service) ResendVerification(ctx context.Context, email string) (err error) {
	defer func() { s.recorder.RecordFlow(FlowResendVerification, err) }()

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("RESEND_VERIFICATION_FAILED").With("operation", "get user by email").Wrap(err)
	}
	if user.EmailVerified {
		return nil
	}

	token, err := s.verifications.Issue(ctx, user.ID)
	if err != nil {
		return oops.Code("RESEND_VERIFICATION_FAILED").With("user_id", user.ID).Wrap(err)
	}
	s.notify(ctx, Message{Kind: MessageVerification, To: user.Email, Token: token, DisplayName: user.DisplayName})
	return nil
}

// Login verifies credentials and opens a session.
func (s *Service) Login(ctx context.Context, email, password string) (_ *TokenPair, _ *User, err error) {
	defer func() { s.recorder.RecordFlow(FlowLogin, err) }()

	user, err := s.credentials.VerifyLogin(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	pair, err := s.sessions.CreateSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID)
	return pair, user, nil
}

// Refresh rotates a refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (_ *TokenPair, err error) {
	defer func() { s.recorder.RecordFlow(FlowRefresh, err) }()
	return s.sessions.Rotate(ctx, refreshToken)
}

// Logout revokes a refresh token. Unknown or already revoked tokens succeed.
func (s *Service) Logout(ctx context.Context, refreshToken string) (err error) {
	defer func() { s.recorder.RecordFlow(FlowLogout, err) }()

	revoked, err := s.sessions.Revoke(ctx, refreshToken)
	if err != nil {
		return err
	}
	if !revoked {
		s.logger.DebugContext(ctx, "logout revoked nothing")
	}
	return nil
}

// RequestPasswordReset emails a reset link when the address belongs to an
// account with a local password. The caller sees success either way.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (err error) {
	defer func() { s.recorder.RecordFlow(FlowRequestPasswordReset, err) }()

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "get user by email").Wrap(err)
	}
	if !user.HasLocalCredential() {
		return nil
	}

	token, err := s.resets.Issue(ctx, user.ID)
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").With("user_id", user.ID).Wrap(err)
	}
	s.notify(ctx, Message{Kind: MessagePasswordReset, To: user.Email, Token: token, DisplayName: user.DisplayName})
	return nil
}

// ConfirmPasswordReset redeems a reset token, sets the new password and
// revokes every session of the user.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (err error) {
	defer func() { s.recorder.RecordFlow(FlowConfirmPasswordReset, err) }()

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := s.credentials.HashPassword(newPassword)
	if err != nil {
		return oops.Code("RESET_CONFIRM_FAILED").Wrap(err)
	}

	// Redeeming the token, the new password and the session revocation
	// commit together.
	var userID int64
	err = s.store.InTransaction(ctx, func(ctx context.Context) error {
		var consumeErr error
		userID, consumeErr = s.resets.Consume(ctx, token)
		if consumeErr != nil {
			return consumeErr
		}
		return s.credentials.SetPasswordHash(ctx, userID, hash, s.revokeAllFn(userID))
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "password reset", "user_id", userID)
	return nil
}

// ChangePassword replaces the password of an authenticated user and revokes
// every session of the user.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) (err error) {
	defer func() { s.recorder.RecordFlow(FlowChangePassword, err) }()

	if err := ValidatePassword(next); err != nil {
		return err
	}
	if err := s.credentials.ChangePassword(ctx, userID, current, next, s.revokeAllFn(userID)); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "password changed", "user_id", userID)
	return nil
}

// GetProfile returns the authenticated user.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*User, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, s.userError(err, userID, "get user")
	}
	return user, nil
}

// UpdateProfile sets or clears the display name.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, displayName *string) (_ *User, err error) {
	defer func() { s.recorder.RecordFlow(FlowUpdateProfile, err) }()

	if err := ValidateDisplayName(displayName); err != nil {
		return nil, err
	}
	if err := s.store.Users().UpdateProfile(ctx, userID, displayName, s.now()); err != nil {
		return nil, s.userError(err, userID, "update profile")
	}
	return s.GetProfile(ctx, userID)
}

// ChangeEmail moves the account to a new address after checking the
// password. The new address starts unverified and receives a verification
// link.
func (s *Service) ChangeEmail(ctx context.Context, userID int64, newEmail, password string) (_ *User, err error) {
	defer func() { s.recorder.RecordFlow(FlowChangeEmail, err) }()

	if err := ValidateEmail(newEmail); err != nil {
		return nil, err
	}
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasLocalCredential() {
		return nil, oops.Code(CodeUnauthorized).Errorf("account has no password set")
	}
	if !s.credentials.VerifyPassword(user, password) {
		return nil, oops.Code(CodeUnauthorized).Errorf("password is incorrect")
	}
	exists, err := s.store.Users().ExistsByEmail(ctx, newEmail)
	if err != nil {
		return nil, oops.Code("CHANGE_EMAIL_FAILED").With("operation", "check email").Wrap(err)
	}
	if exists {
		return nil, oops.Code(CodeConflict).Errorf(msgEmailInUse)
	}

	var token string
	err = s.store.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Users().UpdateEmail(ctx, userID, newEmail, s.now()); err != nil {
			if errors.Is(err, ErrDuplicateEmail) {
				return oops.Code(CodeConflict).Errorf(msgEmailInUse)
			}
			return s.userError(err, userID, "update email")
		}
		var issueErr error
		token, issueErr = s.verifications.Issue(ctx, userID)
		return issueErr
	})
	if err != nil {
		return nil, err
	}

	user.Email = newEmail
	user.EmailVerified = false
	s.logger.InfoContext(ctx, "email changed", "user_id", userID)
	s.notify(ctx, Message{Kind: MessageEmailChange, To: newEmail, Token: token, DisplayName: user.DisplayName})
	return user, nil
}

// DeleteAccount soft-deletes the user and revokes every session. When both a
// stored password and a supplied password exist, the password must match.
func (s *Service) DeleteAccount(ctx context.Context, userID int64, password *string) (err error) {
	defer func() { s.recorder.RecordFlow(FlowDeleteAccount, err) }()

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if user.HasLocalCredential() && password != nil && !s.credentials.VerifyPassword(user, *password) {
		return oops.Code(CodeUnauthorized).Errorf("password is incorrect")
	}

	err = s.store.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Users().SoftDelete(ctx, userID, s.now()); err != nil {
			return s.userError(err, userID, "soft delete")
		}
		for _, kind := range []TokenKind{KindEmailVerification, KindPasswordReset} {
			if _, err := s.store.EphemeralTokens(kind).DeleteUnusedByUser(ctx, userID); err != nil {
				return oops.Code("DELETE_ACCOUNT_FAILED").With("kind", kind).Wrap(err)
			}
		}
		return s.revokeAllFn(userID)(ctx)
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "account deleted", "user_id", userID)
	return nil
}

// Authenticate verifies an access token and returns its claims.
func (s *Service) Authenticate(_ context.Context, accessToken string) (*AccessClaims, error) {
	return s.access.Verify(accessToken, s.now())
}

// PurgeReport counts rows removed by Purge.
type PurgeReport struct {
	ExpiredRefreshTokens int64
	RevokedRefreshTokens int64
	VerificationTokens   int64
	ResetTokens          int64
}

// Purge removes expired and revoked refresh tokens and spent single-use
// tokens. It is idempotent and meant to be run by an external scheduler.
func (s *Service) Purge(ctx context.Context) (PurgeReport, error) {
	var (
		report PurgeReport
		err    error
	)
	if report.ExpiredRefreshTokens, err = s.sessions.PurgeExpired(ctx); err != nil {
		return report, err
	}
	if report.RevokedRefreshTokens, err = s.sessions.PurgeRevoked(ctx); err != nil {
		return report, err
	}
	if report.VerificationTokens, err = s.verifications.Purge(ctx); err != nil {
		return report, err
	}
	if report.ResetTokens, err = s.resets.Purge(ctx); err != nil {
		return report, err
	}
	s.logger.InfoContext(ctx, "purged tokens",
		"expired_refresh", report.ExpiredRefreshTokens,
		"revoked_refresh", report.RevokedRefreshTokens,
		"verification", report.VerificationTokens,
		"reset", report.ResetTokens)
	return report, nil
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// AccessTokenTTL returns the lifetime of issued access tokens.
func (s *Service) AccessTokenTTL() time.Duration {
	return s.access.TTL()
}

func (s *Service) revokeAllFn(userID int64) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		n, err := s.sessions.RevokeAll(ctx, userID)
		if err != nil {
			return err
		}
		s.logger.DebugContext(ctx, "revoked sessions", "user_id", userID, "count", n)
		return nil
	}
}

// notify dispatches an email after the triggering state is committed.
// Failures are logged and never reach the caller.
func (s *Service) notify(ctx context.Context, msg Message) {
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "best-effort email dispatch failed",
			"operation", "send "+string(msg.Kind),
			"error", err)
	}
}

// userError maps a repository error for a user that must exist.
func (s *Service) userError(err error, userID int64, operation string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return oops.Code(CodeNotFound).With("user_id", userID).Errorf("user not found")
	}
	return oops.Code("USER_STORE_FAILED").
		With("operation", operation).
		With("user_id", userID).
		Wrap(err)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
