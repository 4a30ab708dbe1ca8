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

// dummyPasswordHash is verified against when no real hash exists so that
// unknown accounts take as long to reject as wrong passwords. It is a
// well-formed cost-12 bcrypt hash that matches no password in use.
//
//nolint:gosec // G101: not a credential
const dummyPasswordHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// CredentialManager owns password verification and rotation.
type CredentialManager struct {
	users  UserRepository
	hasher PasswordHasher
	tx     Transactor
	logger *slog.Logger
	now    func() time.Time
}

// NewCredentialManager creates a CredentialManager.
func NewCredentialManager(
	users UserRepository,
	hasher PasswordHasher,
	tx Transactor,
	logger *slog.Logger,
	now func() time.Time,
) (*CredentialManager, error) {
	switch {
	case users == nil:
		return nil, oops.Code("CREDENTIAL_INVALID_CONFIG").Errorf("user repository is required")
	case hasher == nil:
		return nil, oops.Code("CREDENTIAL_INVALID_CONFIG").Errorf("password hasher is required")
	case tx == nil:
		return nil, oops.Code("CREDENTIAL_INVALID_CONFIG").Errorf("transactor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &CredentialManager{users: users, hasher: hasher, tx: tx, logger: logger, now: now}, nil
}

// Register creates an unverified user with a local password. The hash is
// computed before the transaction opens; then runs inside it after the
// insert, so a failing follow-up leaves no user behind.
// Fails Conflict if a non-deleted user already holds the email.
func (m *CredentialManager) Register(
	ctx context.Context,
	email, password string,
	displayName *string,
	then func(ctx context.Context, user *User) error,
) (*User, error) {
	exists, err := m.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, oops.Code("CREDENTIAL_REGISTER_FAILED").With("operation", "check email").Wrap(err)
	}
	if exists {
		return nil, oops.Code(CodeConflict).Errorf(msgEmailInUse)
	}

	hash, err := m.HashPassword(password)
	if err != nil {
		return nil, oops.Code("CREDENTIAL_REGISTER_FAILED").Wrap(err)
	}

	user, err := NewUser(email, hash, displayName, m.now())
	if err != nil {
		return nil, oops.Code("CREDENTIAL_REGISTER_FAILED").With("operation", "build user").Wrap(err)
	}
	err = m.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := m.users.Create(ctx, user); err != nil {
			// Lost a race with a concurrent registration.
			if errors.Is(err, ErrDuplicateEmail) {
				return oops.Code(CodeConflict).Errorf(msgEmailInUse)
			}
			return oops.Code("CREDENTIAL_REGISTER_FAILED").With("operation", "create user").Wrap(err)
		}
		if then == nil {
			return nil
		}
		return then(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// VerifyLogin checks an email/password pair. Unknown email, missing local
// credential and wrong password fail with one identical Unauthorized error;
// a correct password on an unverified account fails Forbidden.
func (m *CredentialManager) VerifyLogin(ctx context.Context, email, password string) (*User, error) {
	user, err := m.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("CREDENTIAL_LOGIN_FAILED").With("operation", "get user by email").Wrap(err)
	}

	if user == nil || !user.HasLocalCredential() {
		// Spend the same effort as a real comparison.
		m.hasher.Verify(password, dummyPasswordHash)
		return nil, errInvalidCredentials()
	}
	if !m.hasher.Verify(password, *user.PasswordHash) {
		return nil, errInvalidCredentials()
	}

	if !user.EmailVerified {
		return nil, oops.Code(CodeForbidden).Errorf(msgEmailNotVerified)
	}

	m.upgradeHash(ctx, user, password)
	return user, nil
}

// VerifyPassword reports whether password matches the user's local
// credential. Users without one never match.
func (m *CredentialManager) VerifyPassword(user *User, password string) bool {
	if !user.HasLocalCredential() {
		return false
	}
	return m.hasher.Verify(password, *user.PasswordHash)
}

// ChangePassword replaces the password of an authenticated user after
// checking the current one. then runs in the same transaction as the update.
func (m *CredentialManager) ChangePassword(
	ctx context.Context,
	userID int64,
	current, next string,
	then func(ctx context.Context) error,
) error {
	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeNotFound).With("user_id", userID).Errorf("user not found")
		}
		return oops.Code("CREDENTIAL_CHANGE_FAILED").With("operation", "get user").Wrap(err)
	}
	if !user.HasLocalCredential() {
		return oops.Code(CodeNoLocalCredential).Errorf("account has no password set")
	}
	if !m.hasher.Verify(current, *user.PasswordHash) {
		return oops.Code(CodeUnauthorized).Errorf("current password is incorrect")
	}
	return m.SetPassword(ctx, userID, next, then)
}

// HashPassword hashes password with the configured codec.
func (m *CredentialManager) HashPassword(password string) (string, error) {
	hash, err := m.hasher.Hash(password)
	if err != nil {
		return "", oops.With("operation", "hash password").Wrap(err)
	}
	return hash, nil
}

// SetPassword hashes password and stores it. The hash is computed before the
// transaction opens; then runs inside it after the update.
func (m *CredentialManager) SetPassword(
	ctx context.Context,
	userID int64,
	password string,
	then func(ctx context.Context) error,
) error {
	hash, err := m.HashPassword(password)
	if err != nil {
		return oops.Code("CREDENTIAL_SET_FAILED").Wrap(err)
	}
	return m.SetPasswordHash(ctx, userID, hash, then)
}

// SetPasswordHash stores a precomputed hash. It joins a transaction already
// carried by ctx; then runs inside it after the update.
func (m *CredentialManager) SetPasswordHash(
	ctx context.Context,
	userID int64,
	hash string,
	then func(ctx context.Context) error,
) error {
	return m.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := m.users.UpdatePassword(ctx, userID, hash, m.now()); err != nil {
			if errors.Is(err, ErrNotFound) {
				return oops.Code(CodeNotFound).With("user_id", userID).Errorf("user not found")
			}
			return oops.Code("CREDENTIAL_SET_FAILED").
				With("operation", "update password").
				With("user_id", userID).
				Wrap(err)
		}
		if then == nil {
			return nil
		}
		return then(ctx)
	})
}

// upgradeHash re-hashes a verified password stored with outdated parameters.
func (m *CredentialManager) upgradeHash(ctx context.Context, user *User, password string) {
	if !m.hasher.NeedsUpgrade(*user.PasswordHash) {
		return
	}
	hash, err := m.hasher.Hash(password)
	if err == nil {
		err = m.users.UpdatePassword(ctx, user.ID, hash, m.now())
	}
	if err != nil {
		m.logger.WarnContext(ctx, "best-effort password rehash failed",
			"user_id", user.ID,
			"operation", "upgrade password hash",
			"error", err)
		return
	}
	user.PasswordHash = &hash
}
