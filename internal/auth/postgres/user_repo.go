// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

const userColumns = `id, email, password_hash, display_name, is_email_verified, created_at, updated_at, deleted_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user and assigns its ID.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO users (email, password_hash, display_name, is_email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		user.EmailVerified,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if isUniqueViolation(err) {
		return oops.Code("USER_EMAIL_TAKEN").Wrap(auth.ErrDuplicateEmail)
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("operation", "insert user").Wrap(err)
	}
	return nil
}

// GetByID retrieves a non-deleted user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*auth.User, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1 AND deleted_at IS NULL
	`, id)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("operation", "get user by id").With("id", id).Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a non-deleted user by exact email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1 AND deleted_at IS NULL
	`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("operation", "get user by email").Wrap(err)
	}
	return user, nil
}

// ExistsByEmail reports whether a non-deleted user holds the email.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND deleted_at IS NULL)`,
		email,
	).Scan(&exists)
	if err != nil {
		return false, oops.Code("USER_EXISTS_FAILED").With("operation", "check email").Wrap(err)
	}
	return exists, nil
}

// UpdateProfile sets or clears the display name.
func (r *UserRepository) UpdateProfile(ctx context.Context, id int64, displayName *string, now time.Time) error {
	return r.update(ctx, "update profile", id,
		`UPDATE users SET display_name = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`,
		displayName, now)
}

// UpdateEmail sets a new email and clears the verified flag.
func (r *UserRepository) UpdateEmail(ctx context.Context, id int64, email string, now time.Time) error {
	err := r.update(ctx, "update email", id,
		`UPDATE users SET email = $2, is_email_verified = FALSE, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`,
		email, now)
	if isUniqueViolation(err) {
		return oops.Code("USER_EMAIL_TAKEN").With("id", id).Wrap(auth.ErrDuplicateEmail)
	}
	return err
}

// SetEmailVerified sets the verified flag.
func (r *UserRepository) SetEmailVerified(ctx context.Context, id int64, verified bool, now time.Time) error {
	return r.update(ctx, "set email verified", id,
		`UPDATE users SET is_email_verified = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`,
		verified, now)
}

// UpdatePassword replaces the password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string, now time.Time) error {
	return r.update(ctx, "update password", id,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`,
		passwordHash, now)
}

// SoftDelete marks the user deleted.
func (r *UserRepository) SoftDelete(ctx context.Context, id int64, now time.Time) error {
	return r.update(ctx, "soft delete", id,
		`UPDATE users SET deleted_at = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`,
		now, now)
}

// update runs a single-row update of a non-deleted user.
func (r *UserRepository) update(ctx context.Context, operation string, id int64, sql string, args ...any) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		if isUniqueViolation(err) {
			return err
		}
		return oops.Code("USER_UPDATE_FAILED").With("operation", operation).With("id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var u auth.User
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.DisplayName,
		&u.EmailVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.DeletedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

var _ auth.UserRepository = (*UserRepository)(nil)
