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

// TokenKind distinguishes the single-use token flows.
type TokenKind string

// Single-use token kinds.
const (
	KindEmailVerification TokenKind = "email_verification"
	KindPasswordReset     TokenKind = "password_reset"
)

// Default lifetimes of single-use tokens.
const (
	EmailVerificationTTL = 24 * time.Hour
	PasswordResetTTL     = time.Hour
)

// Valid reports whether k is a known kind.
func (k TokenKind) Valid() bool {
	return k == KindEmailVerification || k == KindPasswordReset
}

// EphemeralToken is a single-use, expiring, user-bound token. Only the
// digest of the raw value is stored.
type EphemeralToken struct {
	ID        ulid.ULID
	Kind      TokenKind
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	UsedAt    *time.Time
}

// IsValidAt reports whether the token is unused and unexpired at t.
func (t *EphemeralToken) IsValidAt(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// EphemeralTokenRepository persists tokens of one kind.
type EphemeralTokenRepository interface {
	// Kind returns the token kind the repository stores.
	Kind() TokenKind

	// Create stores a new token.
	Create(ctx context.Context, token *EphemeralToken) error

	// DeleteUnusedByUser removes every unused token of the user.
	DeleteUnusedByUser(ctx context.Context, userID int64) (int64, error)

	// Consume marks the token with the given digest used, provided it is
	// unused and unexpired at now, and returns its user ID. The update is a
	// single conditional statement: of any number of concurrent callers at
	// most one succeeds. Returns ErrNotFound otherwise.
	Consume(ctx context.Context, tokenHash string, now time.Time) (int64, error)

	// DeleteExpired removes expired and used tokens and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// EphemeralTokenManager implements the issue/consume lifecycle for one
// token kind.
type EphemeralTokenManager struct {
	repo EphemeralTokenRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewEphemeralTokenManager creates a manager over repo with the given default ttl.
func NewEphemeralTokenManager(repo EphemeralTokenRepository, ttl time.Duration, now func() time.Time) (*EphemeralTokenManager, error) {
	if repo == nil {
		return nil, oops.Code("EPHEMERAL_INVALID_CONFIG").Errorf("token repository is required")
	}
	if !repo.Kind().Valid() {
		return nil, oops.Code("EPHEMERAL_INVALID_CONFIG").With("kind", repo.Kind()).Errorf("unknown token kind")
	}
	if ttl <= 0 {
		return nil, oops.Code("EPHEMERAL_INVALID_CONFIG").With("ttl", ttl).Errorf("ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &EphemeralTokenManager{repo: repo, ttl: ttl, now: now}, nil
}

// Kind returns the managed token kind.
func (m *EphemeralTokenManager) Kind() TokenKind {
	return m.repo.Kind()
}

// Issue supersedes any unused token of this kind for the user and returns a
// fresh raw token valid for the manager's ttl.
func (m *EphemeralTokenManager) Issue(ctx context.Context, userID int64) (string, error) {
	return m.IssueWithTTL(ctx, userID, m.ttl)
}

// IssueWithTTL is Issue with an explicit lifetime.
func (m *EphemeralTokenManager) IssueWithTTL(ctx context.Context, userID int64, ttl time.Duration) (string, error) {
	kind := m.repo.Kind()
	if ttl <= 0 {
		return "", oops.Code("EPHEMERAL_INVALID_TTL").With("kind", kind).With("ttl", ttl).Errorf("ttl must be positive")
	}

	if _, err := m.repo.DeleteUnusedByUser(ctx, userID); err != nil {
		return "", oops.Code("EPHEMERAL_ISSUE_FAILED").
			With("operation", "delete superseded tokens").
			With("kind", kind).
			With("user_id", userID).
			Wrap(err)
	}

	raw, hash, err := mintToken(EphemeralTokenBytes)
	if err != nil {
		return "", oops.Code("EPHEMERAL_ISSUE_FAILED").With("kind", kind).Wrap(err)
	}

	now := m.now()
	token := &EphemeralToken{
		ID:        ulid.Make(),
		Kind:      kind,
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := m.repo.Create(ctx, token); err != nil {
		return "", oops.Code("EPHEMERAL_ISSUE_FAILED").
			With("operation", "persist token").
			With("kind", kind).
			With("user_id", userID).
			Wrap(err)
	}
	return raw, nil
}

// Consume redeems a raw token exactly once and returns the bound user ID.
// Unknown, expired and already-used tokens all fail with the same
// invalid-token error.
func (m *EphemeralTokenManager) Consume(ctx context.Context, raw string) (int64, error) {
	if raw == "" {
		return 0, errInvalidToken()
	}
	userID, err := m.repo.Consume(ctx, HashToken(raw), m.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, errInvalidToken()
		}
		return 0, oops.Code("EPHEMERAL_CONSUME_FAILED").
			With("operation", "consume token").
			With("kind", m.repo.Kind()).
			Wrap(err)
	}
	return userID, nil
}

// Purge removes expired and used tokens of this kind.
func (m *EphemeralTokenManager) Purge(ctx context.Context) (int64, error) {
	n, err := m.repo.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, oops.Code("EPHEMERAL_PURGE_FAILED").With("kind", m.repo.Kind()).Wrap(err)
	}
	return n, nil
}
