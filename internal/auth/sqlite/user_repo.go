// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/samber/oops"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/accountd/accountd/internal/auth"
)

const userColumns = `id, email, password_hash, display_name, is_email_verified, created_at, updated_at, deleted_at`

// UserRepository implements auth.UserRepository using SQLite.
type UserRepository struct {
	db *sql.DB
}

// Create stores a new user and assigns its ID.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	err := conn(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, display_name, is_email_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		user.Email,
		toNullString(user.PasswordHash),
		toNullString(user.DisplayName),
		user.EmailVerified,
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
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
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ? AND deleted_at IS NULL`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("operation", "get user by id").With("id", id).Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a non-deleted user by exact email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? AND deleted_at IS NULL`, email)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
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
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = ? AND deleted_at IS NULL)`, email,
	).Scan(&exists)
	if err != nil {
		return false, oops.Code("USER_EXISTS_FAILED").With("operation", "check email").Wrap(err)
	}
	return exists, nil
}

// UpdateProfile sets or clears the display name.
func (r *UserRepository) UpdateProfile(ctx context.Context, id int64, displayName *string, now time.Time) error {
	return r.update(ctx, "update profile", id,
		`UPDATE users SET display_name = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		toNullString(displayName), toMillis(now))
}

// UpdateEmail sets a new email and clears the verified flag.
func (r *UserRepository) UpdateEmail(ctx context.Context, id int64, email string, now time.Time) error {
	err := r.update(ctx, "update email", id,
		`UPDATE users SET email = ?, is_email_verified = 0, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		email, toMillis(now))
	if isUniqueViolation(err) {
		return oops.Code("USER_EMAIL_TAKEN").With("id", id).Wrap(auth.ErrDuplicateEmail)
	}
	return err
}

// SetEmailVerified sets the verified flag.
func (r *UserRepository) SetEmailVerified(ctx context.Context, id int64, verified bool, now time.Time) error {
	return r.update(ctx, "set email verified", id,
		`UPDATE users SET is_email_verified = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		verified, toMillis(now))
}

// UpdatePassword replaces the password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string, now time.Time) error {
	return r.update(ctx, "update password", id,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, toMillis(now))
}

// SoftDelete marks the user deleted.
func (r *UserRepository) SoftDelete(ctx context.Context, id int64, now time.Time) error {
	return r.update(ctx, "soft delete", id,
		`UPDATE users SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		toMillis(now), toMillis(now))
}

// update runs a single-row update of a non-deleted user. The id binds to
// the last placeholder.
func (r *UserRepository) update(ctx context.Context, operation string, id int64, query string, args ...any) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		if isUniqueViolation(err) {
			return err
		}
		return oops.Code("USER_UPDATE_FAILED").With("operation", operation).With("id", id).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("operation", operation).With("id", id).Wrap(err)
	}
	if n == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanUser(row *sql.Row) (*auth.User, error) {
	var (
		u         auth.User
		hash      sql.NullString
		name      sql.NullString
		created   int64
		updated   int64
		deletedAt sql.NullInt64
	)
	if err := row.Scan(&u.ID, &u.Email, &hash, &name, &u.EmailVerified, &created, &updated, &deletedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	u.PasswordHash = fromNullString(hash)
	u.DisplayName = fromNullString(name)
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	u.DeletedAt = fromNullMillis(deletedAt)
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
}

var _ auth.UserRepository = (*UserRepository)(nil)
