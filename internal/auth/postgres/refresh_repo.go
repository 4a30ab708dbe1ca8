// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

// RefreshTokenRepository implements auth.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	pool Pool
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(pool Pool) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: pool}
}

// Create stores a new refresh token.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		token.ID.String(),
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return oops.Code("REFRESH_TOKEN_CREATE_FAILED").
			With("operation", "insert refresh_token").
			With("user_id", token.UserID).
			Wrap(err)
	}
	return nil
}

// FindValid returns the unrevoked, unexpired token with the given digest.
func (r *RefreshTokenRepository) FindValid(ctx context.Context, tokenHash string, now time.Time) (*auth.RefreshToken, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
	`, tokenHash, now)

	var (
		token auth.RefreshToken
		idStr string
	)
	err := row.Scan(&idStr, &token.UserID, &token.TokenHash, &token.ExpiresAt, &token.CreatedAt, &token.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_GET_FAILED").With("operation", "find valid refresh token").Wrap(err)
	}
	if token.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("REFRESH_TOKEN_CORRUPT").With("id", idStr).Wrap(err)
	}
	return &token, nil
}

// Revoke marks the token revoked if it is not already.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id ulid.ULID, now time.Time) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
		id.String(), now)
	if err != nil {
		return false, oops.Code("REFRESH_TOKEN_REVOKE_FAILED").With("id", id.String()).Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// RevokeByHash marks the token with the digest revoked if it is not already.
func (r *RefreshTokenRepository) RevokeByHash(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE token_hash = $1 AND revoked_at IS NULL`,
		tokenHash, now)
	if err != nil {
		return false, oops.Code("REFRESH_TOKEN_REVOKE_FAILED").With("operation", "revoke by hash").Wrap(err)
	}
	return tag.RowsAffected() > 0, nil
}

// RevokeAllByUser marks every unrevoked token of the user revoked.
func (r *RefreshTokenRepository) RevokeAllByUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, now)
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_REVOKE_ALL_FAILED").With("user_id", userID).Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes tokens expired at now.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_PURGE_FAILED").With("operation", "delete expired").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// DeleteRevoked removes revoked tokens.
func (r *RefreshTokenRepository) DeleteRevoked(ctx context.Context) (int64, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM refresh_tokens WHERE revoked_at IS NOT NULL`)
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_PURGE_FAILED").With("operation", "delete revoked").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

var _ auth.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
