// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

var ephemeralTables = map[auth.TokenKind]string{
	auth.KindEmailVerification: "email_verification_tokens",
	auth.KindPasswordReset:     "password_reset_tokens",
}

// EphemeralTokenRepository implements auth.EphemeralTokenRepository for one
// token kind using SQLite.
type EphemeralTokenRepository struct {
	db    *sql.DB
	kind  auth.TokenKind
	table string
}

func newEphemeralTokenRepository(db *sql.DB, kind auth.TokenKind) *EphemeralTokenRepository {
	return &EphemeralTokenRepository{db: db, kind: kind, table: ephemeralTables[kind]}
}

// Kind returns the stored token kind.
func (r *EphemeralTokenRepository) Kind() auth.TokenKind {
	return r.kind
}

func (r *EphemeralTokenRepository) check() error {
	if r.table == "" {
		return oops.Code("EPHEMERAL_UNKNOWN_KIND").With("kind", r.kind).Errorf("unknown token kind")
	}
	return nil
}

// Create stores a new token.
func (r *EphemeralTokenRepository) Create(ctx context.Context, token *auth.EphemeralToken) error {
	if err := r.check(); err != nil {
		return err
	}
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO `+r.table+` (id, user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		token.ID.String(),
		token.UserID,
		token.TokenHash,
		toMillis(token.ExpiresAt),
		toMillis(token.CreatedAt),
	)
	if err != nil {
		return oops.Code("EPHEMERAL_CREATE_FAILED").
			With("kind", r.kind).
			With("user_id", token.UserID).
			Wrap(err)
	}
	return nil
}

// DeleteUnusedByUser removes every unused token of the user.
func (r *EphemeralTokenRepository) DeleteUnusedByUser(ctx context.Context, userID int64) (int64, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	n, err := execCount(ctx, r.db,
		`DELETE FROM `+r.table+` WHERE user_id = ? AND used_at IS NULL`, userID)
	if err != nil {
		return 0, oops.Code("EPHEMERAL_DELETE_FAILED").
			With("kind", r.kind).
			With("user_id", userID).
			Wrap(err)
	}
	return n, nil
}

// Consume marks an unused, unexpired token used in one conditional update.
func (r *EphemeralTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (int64, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	var userID int64
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`UPDATE `+r.table+` SET used_at = ?1 WHERE token_hash = ?2 AND used_at IS NULL AND expires_at > ?1 RETURNING user_id`,
		toMillis(now), tokenHash,
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, oops.Code("EPHEMERAL_NOT_FOUND").With("kind", r.kind).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return 0, oops.Code("EPHEMERAL_CONSUME_FAILED").With("kind", r.kind).Wrap(err)
	}
	return userID, nil
}

// DeleteExpired removes expired and used tokens.
func (r *EphemeralTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	n, err := execCount(ctx, r.db,
		`DELETE FROM `+r.table+` WHERE expires_at <= ? OR used_at IS NOT NULL`, toMillis(now))
	if err != nil {
		return 0, oops.Code("EPHEMERAL_PURGE_FAILED").With("kind", r.kind).Wrap(err)
	}
	return n, nil
}

var _ auth.EphemeralTokenRepository = (*EphemeralTokenRepository)(nil)
