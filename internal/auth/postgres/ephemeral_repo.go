// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

// ephemeralTables maps each token kind to its table. Table names are only
// ever taken from this map.
var ephemeralTables = map[auth.TokenKind]string{
	auth.KindEmailVerification: "email_verification_tokens",
	auth.KindPasswordReset:     "password_reset_tokens",
}

// EphemeralTokenRepository implements auth.EphemeralTokenRepository for one
// token kind using PostgreSQL.
type EphemeralTokenRepository struct {
	pool  Pool
	kind  auth.TokenKind
	table string
}

// NewEphemeralTokenRepository creates a repository for kind.
func NewEphemeralTokenRepository(pool Pool, kind auth.TokenKind) *EphemeralTokenRepository {
	return &EphemeralTokenRepository{pool: pool, kind: kind, table: ephemeralTables[kind]}
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
	_, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO `+r.table+` (id, user_id, token_hash, expires_at, created_at) VALUES ($1, $2, $3, $4, $5)`,
		token.ID.String(),
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.CreatedAt,
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
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM `+r.table+` WHERE user_id = $1 AND used_at IS NULL`,
		userID)
	if err != nil {
		return 0, oops.Code("EPHEMERAL_DELETE_FAILED").
			With("kind", r.kind).
			With("user_id", userID).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// Consume marks an unused, unexpired token used in one conditional update.
func (r *EphemeralTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (int64, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	var userID int64
	err := conn(ctx, r.pool).QueryRow(ctx,
		`UPDATE `+r.table+` SET used_at = $2 WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2 RETURNING user_id`,
		tokenHash, now,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
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
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM `+r.table+` WHERE expires_at <= $1 OR used_at IS NOT NULL`,
		now)
	if err != nil {
		return 0, oops.Code("EPHEMERAL_PURGE_FAILED").With("kind", r.kind).Wrap(err)
	}
	return tag.RowsAffected(), nil
}

var _ auth.EphemeralTokenRepository = (*EphemeralTokenRepository)(nil)
