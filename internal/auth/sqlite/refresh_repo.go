// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

// RefreshTokenRepository implements auth.RefreshTokenRepository using SQLite.
type RefreshTokenRepository struct {
	db *sql.DB
}

// Create stores a new refresh token.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		token.ID.String(),
		token.UserID,
		token.TokenHash,
		toMillis(token.ExpiresAt),
		toMillis(token.CreatedAt),
		toNullMillis(token.RevokedAt),
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
	var (
		token     auth.RefreshToken
		idStr     string
		expiresAt int64
		createdAt int64
		revokedAt sql.NullInt64
	)
	err := conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ?
	`, tokenHash, toMillis(now)).Scan(&idStr, &token.UserID, &token.TokenHash, &expiresAt, &createdAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_GET_FAILED").With("operation", "find valid refresh token").Wrap(err)
	}
	if token.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("REFRESH_TOKEN_CORRUPT").With("id", idStr).Wrap(err)
	}
	token.ExpiresAt = fromMillis(expiresAt)
	token.CreatedAt = fromMillis(createdAt)
	token.RevokedAt = fromNullMillis(revokedAt)
	return &token, nil
}

// Revoke marks the token revoked if it is not already.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id ulid.ULID, now time.Time) (bool, error) {
	n, err := r.exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		toMillis(now), id.String())
	if err != nil {
		return false, oops.Code("REFRESH_TOKEN_REVOKE_FAILED").With("id", id.String()).Wrap(err)
	}
	return n == 1, nil
}

// RevokeByHash marks the token with the digest revoked if it is not already.
func (r *RefreshTokenRepository) RevokeByHash(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	n, err := r.exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL`,
		toMillis(now), tokenHash)
	if err != nil {
		return false, oops.Code("REFRESH_TOKEN_REVOKE_FAILED").With("operation", "revoke by hash").Wrap(err)
	}
	return n > 0, nil
}

// RevokeAllByUser marks every unrevoked token of the user revoked.
func (r *RefreshTokenRepository) RevokeAllByUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	n, err := r.exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		toMillis(now), userID)
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_REVOKE_ALL_FAILED").With("user_id", userID).Wrap(err)
	}
	return n, nil
}

// DeleteExpired removes tokens expired at now.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := r.exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_PURGE_FAILED").With("operation", "delete expired").Wrap(err)
	}
	return n, nil
}

// DeleteRevoked removes revoked tokens.
func (r *RefreshTokenRepository) DeleteRevoked(ctx context.Context) (int64, error) {
	n, err := r.exec(ctx, `DELETE FROM refresh_tokens WHERE revoked_at IS NOT NULL`)
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_PURGE_FAILED").With("operation", "delete revoked").Wrap(err)
	}
	return n, nil
}

func (r *RefreshTokenRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execCount(ctx, r.db, query, args...)
}

// execCount runs a statement and returns the affected row count.
func execCount(ctx context.Context, db *sql.DB, query string, args ...any) (int64, error) {
	res, err := conn(ctx, db).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err //nolint:wrapcheck // callers wrap with operation context
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err //nolint:wrapcheck // callers wrap with operation context
	}
	return n, nil
}

var _ auth.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
