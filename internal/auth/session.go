// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Default session lifetimes.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// RefreshToken is one issued session. Only the digest of the raw value is
// stored. A non-nil RevokedAt means the token is no longer usable.
type RefreshToken struct {
	ID        ulid.ULID
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// IsValidAt reports whether the token is unrevoked and unexpired at t.
func (t *RefreshToken) IsValidAt(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// RefreshTokenRepository manages refresh token persistence.
type RefreshTokenRepository interface {
	// Create stores a new refresh token.
	Create(ctx context.Context, token *RefreshToken) error

	// FindValid returns the unrevoked token with the digest that is unexpired
	// at now. Returns ErrNotFound otherwise.
	FindValid(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error)

	// Revoke marks the token revoked if it is not already and reports
	// whether a row changed.
	Revoke(ctx context.Context, id ulid.ULID, now time.Time) (bool, error)

	// RevokeByHash marks the token with the digest revoked if it is not
	// already and reports whether a row changed.
	RevokeByHash(ctx context.Context, tokenHash string, now time.Time) (bool, error)

	// RevokeAllByUser marks every unrevoked token of the user revoked and
	// returns the count.
	RevokeAllByUser(ctx context.Context, userID int64, now time.Time) (int64, error)

	// DeleteExpired removes tokens expired at now and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// DeleteRevoked removes revoked tokens and returns the count.
	DeleteRevoked(ctx context.Context) (int64, error)
}

// Transactor runs fn inside a store transaction. Repositories called with the
// context passed to fn participate in that transaction.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// TokenPair is the result of creating or rotating a session.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // access token lifetime in seconds
}

// SessionManager issues, rotates and revokes refresh tokens.
type SessionManager struct {
	users  UserRepository
	tokens RefreshTokenRepository
	tx     Transactor
	access *AccessTokenIssuer
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionManager creates a SessionManager. refreshTTL is the lifetime of
// refresh tokens.
func NewSessionManager(
	users UserRepository,
	tokens RefreshTokenRepository,
	tx Transactor,
	access *AccessTokenIssuer,
	refreshTTL time.Duration,
	now func() time.Time,
) (*SessionManager, error) {
	switch {
	case users == nil:
		return nil, oops.Code("SESSION_INVALID_CONFIG").Errorf("user repository is required")
	case tokens == nil:
		return nil, oops.Code("SESSION_INVALID_CONFIG").Errorf("refresh token repository is required")
	case tx == nil:
		return nil, oops.Code("SESSION_INVALID_CONFIG").Errorf("transactor is required")
	case access == nil:
		return nil, oops.Code("SESSION_INVALID_CONFIG").Errorf("access token issuer is required")
	case refreshTTL <= 0:
		return nil, oops.Code("SESSION_INVALID_CONFIG").With("ttl", refreshTTL).Errorf("refresh ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &SessionManager{
		users:  users,
		tokens: tokens,
		tx:     tx,
		access: access,
		ttl:    refreshTTL,
		now:    now,
	}, nil
}

// CreateSession mints an access token and persists a new refresh token for user.
func (m *SessionManager) CreateSession(ctx context.Context, user *User) (*TokenPair, error) {
	now := m.now()
	raw, err := m.persistRefreshToken(ctx, user.ID, now)
	if err != nil {
		return nil, err
	}
	return m.pair(user, raw, now)
}

// Rotate exchanges a valid refresh token for a new pair. The old token is
// revoked before its successor is created, in one transaction. Unknown,
// expired, revoked and already-rotated tokens all fail Unauthorized.
func (m *SessionManager) Rotate(ctx context.Context, raw string) (*TokenPair, error) {
	if raw == "" {
		return nil, oops.Code(CodeUnauthorized).Errorf(msgInvalidRefresh)
	}

	var (
		user   *User
		newRaw string
		now    = m.now()
	)
	err := m.tx.InTransaction(ctx, func(ctx context.Context) error {
		current, err := m.tokens.FindValid(ctx, HashToken(raw), now)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return oops.Code(CodeUnauthorized).Errorf(msgInvalidRefresh)
			}
			return oops.Code("SESSION_ROTATE_FAILED").With("operation", "find refresh token").Wrap(err)
		}

		// A concurrent rotation of the same token loses here.
		revoked, err := m.tokens.Revoke(ctx, current.ID, now)
		if err != nil {
			return oops.Code("SESSION_ROTATE_FAILED").
				With("operation", "revoke refresh token").
				With("token_id", current.ID.String()).
				Wrap(err)
		}
		if !revoked {
			return oops.Code(CodeUnauthorized).Errorf(msgInvalidRefresh)
		}

		user, err = m.users.GetByID(ctx, current.UserID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return oops.Code(CodeUnauthorized).Errorf(msgInvalidRefresh)
			}
			return oops.Code("SESSION_ROTATE_FAILED").
				With("operation", "load user").
				With("user_id", current.UserID).
				Wrap(err)
		}

		newRaw, err = m.persistRefreshToken(ctx, user.ID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m.pair(user, newRaw, now)
}

// Revoke revokes the refresh token with the given raw value and reports
// whether a row changed. Unknown tokens are not an error.
func (m *SessionManager) Revoke(ctx context.Context, raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	revoked, err := m.tokens.RevokeByHash(ctx, HashToken(raw), m.now())
	if err != nil {
		return false, oops.Code("SESSION_REVOKE_FAILED").With("operation", "revoke by hash").Wrap(err)
	}
	return revoked, nil
}

// RevokeAll revokes every active refresh token of the user.
func (m *SessionManager) RevokeAll(ctx context.Context, userID int64) (int64, error) {
	n, err := m.tokens.RevokeAllByUser(ctx, userID, m.now())
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_ALL_FAILED").With("user_id", userID).Wrap(err)
	}
	return n, nil
}

// PurgeExpired deletes expired refresh tokens.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := m.tokens.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").With("operation", "delete expired").Wrap(err)
	}
	return n, nil
}

// PurgeRevoked deletes revoked refresh tokens.
func (m *SessionManager) PurgeRevoked(ctx context.Context) (int64, error) {
	n, err := m.tokens.DeleteRevoked(ctx)
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").With("operation", "delete revoked").Wrap(err)
	}
	return n, nil
}

func (m *SessionManager) persistRefreshToken(ctx context.Context, userID int64, now time.Time) (string, error) {
	raw, hash, err := mintToken(RefreshTokenBytes)
	if err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").Wrap(err)
	}
	token := &RefreshToken{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.tokens.Create(ctx, token); err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist refresh token").
			With("user_id", userID).
			Wrap(err)
	}
	return raw, nil
}

func (m *SessionManager) pair(user *User, refresh string, now time.Time) (*TokenPair, error) {
	access, err := m.access.Sign(user, now)
	if err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").With("operation", "sign access token").Wrap(err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(m.access.TTL() / time.Second),
	}, nil
}
