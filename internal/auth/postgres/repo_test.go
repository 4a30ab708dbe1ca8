// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/auth/postgres"
	"github.com/accountd/accountd/pkg/errutil"
)

var userCols = []string{"id", "email", "password_hash", "display_name", "is_email_verified", "created_at", "updated_at", "deleted_at"}

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *postgres.Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock, postgres.NewStore(mock)
}

func TestUserRepository_Create(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("assigns id", func(t *testing.T) {
		mock, s := newMockStore(t)
		user, err := auth.NewUser("a@example.com", "$2a$12$hash", nil, at)
		require.NoError(t, err)

		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("a@example.com", user.PasswordHash, user.DisplayName, false, at, at).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(17)))

		require.NoError(t, s.Users().Create(ctx, user))
		assert.Equal(t, int64(17), user.ID)
	})

	t.Run("unique violation maps to duplicate email", func(t *testing.T) {
		mock, s := newMockStore(t)
		user, err := auth.NewUser("a@example.com", "$2a$12$hash", nil, at)
		require.NoError(t, err)

		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("a@example.com", user.PasswordHash, user.DisplayName, false, at, at).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		err = s.Users().Create(ctx, user)
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
		errutil.AssertErrorCode(t, err, "USER_EMAIL_TAKEN")
	})

	t.Run("other failures keep their cause", func(t *testing.T) {
		mock, s := newMockStore(t)
		user, err := auth.NewUser("a@example.com", "$2a$12$hash", nil, at)
		require.NoError(t, err)

		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("connection refused"))

		err = s.Users().Create(ctx, user)
		errutil.AssertErrorCode(t, err, "USER_CREATE_FAILED")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestUserRepository_Get(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	hash := "$2a$12$hash"
	name := "Ada"

	t.Run("by id", func(t *testing.T) {
		mock, s := newMockStore(t)
		mock.ExpectQuery(`FROM users`).
			WithArgs(int64(3)).
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow(int64(3), "a@example.com", &hash, &name, true, at, at, (*time.Time)(nil)))

		user, err := s.Users().GetByID(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, "a@example.com", user.Email)
		assert.Equal(t, "Ada", *user.DisplayName)
		assert.True(t, user.EmailVerified)
		assert.Nil(t, user.DeletedAt)
	})

	t.Run("missing row is ErrNotFound", func(t *testing.T) {
		mock, s := newMockStore(t)
		mock.ExpectQuery(`FROM users`).WithArgs("x@example.com").WillReturnError(pgx.ErrNoRows)

		_, err := s.Users().GetByEmail(ctx, "x@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
	})

	t.Run("exists", func(t *testing.T) {
		mock, s := newMockStore(t)
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("a@example.com").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		exists, err := s.Users().ExistsByEmail(ctx, "a@example.com")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestUserRepository_Updates(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("zero rows is ErrNotFound", func(t *testing.T) {
		mock, s := newMockStore(t)
		mock.ExpectExec(`UPDATE users SET password_hash`).
			WithArgs(int64(9), "$2a$12$new", at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := s.Users().UpdatePassword(ctx, 9, "$2a$12$new", at)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("email change onto taken address", func(t *testing.T) {
		mock, s := newMockStore(t)
		mock.ExpectExec(`UPDATE users SET email`).
			WithArgs(int64(9), "taken@example.com", at).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		err := s.Users().UpdateEmail(ctx, 9, "taken@example.com", at)
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
	})

	t.Run("soft delete", func(t *testing.T) {
		mock, s := newMockStore(t)
		mock.ExpectExec(`UPDATE users SET deleted_at`).
			WithArgs(int64(9), at, at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, s.Users().SoftDelete(ctx, 9, at))
	})
}

func TestRefreshTokenRepository_Mock(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	id := ulid.Make()

	t.Run("find valid parses id", func(t *testing.T) {
		mock, s := newMockStore(t)
		mock.ExpectQuery(`FROM refresh_tokens`).
			WithArgs("digest", at).
			WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at", "revoked_at"}).
				AddRow(id.String(), int64(1), "digest", at.Add(time.Hour), at, (*time.Time)(nil)))

		tok, err := s.RefreshTokens().FindValid(ctx, "digest", at)
		require.NoError(t, err)
		assert.Equal(t, id, tok.ID)
		assert.Nil(t, tok.RevokedAt)
	})

	t.Run("revoke reports update count", func(t *testing.T) {
		mock, s := newMockStore(t)
		mock.ExpectExec(`UPDATE refresh_tokens SET revoked_at`).
			WithArgs(id.String(), at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		ok, err := s.RefreshTokens().Revoke(ctx, id, at)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("revoke all returns count", func(t *testing.T) {
		mock, s := newMockStore(t)
		mock.ExpectExec(`UPDATE refresh_tokens SET revoked_at`).
			WithArgs(int64(1), at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 3))

		n, err := s.RefreshTokens().RevokeAllByUser(ctx, 1, at)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("purge", func(t *testing.T) {
		mock, s := newMockStore(t)
		mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at`).
			WithArgs(at).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
		mock.ExpectExec(`DELETE FROM refresh_tokens WHERE revoked_at IS NOT NULL`).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		n, err := s.RefreshTokens().DeleteExpired(ctx, at)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		n, err = s.RefreshTokens().DeleteRevoked(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestEphemeralTokenRepository_Mock(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("consume returns user", func(t *testing.T) {
		mock, s := newMockStore(t)
		mock.ExpectQuery(`UPDATE password_reset_tokens SET used_at`).
			WithArgs("digest", at).
			WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(int64(4)))

		id, err := s.EphemeralTokens(auth.KindPasswordReset).Consume(ctx, "digest", at)
		require.NoError(t, err)
		assert.Equal(t, int64(4), id)
	})

	t.Run("consume of spent token", func(t *testing.T) {
		mock, s := newMockStore(t)
		mock.ExpectQuery(`UPDATE email_verification_tokens SET used_at`).
			WithArgs("digest", at).
			WillReturnError(pgx.ErrNoRows)

		_, err := s.EphemeralTokens(auth.KindEmailVerification).Consume(ctx, "digest", at)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("issue replaces unused tokens", func(t *testing.T) {
		mock, s := newMockStore(t)
		repo := s.EphemeralTokens(auth.KindEmailVerification)
		mock.ExpectExec(`DELETE FROM email_verification_tokens WHERE user_id`).
			WithArgs(int64(4)).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec(`INSERT INTO email_verification_tokens`).
			WithArgs(pgxmock.AnyArg(), int64(4), "digest", at.Add(time.Hour), at).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		n, err := repo.DeleteUnusedByUser(ctx, 4)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		require.NoError(t, repo.Create(ctx, &auth.EphemeralToken{
			ID:        ulid.Make(),
			Kind:      auth.KindEmailVerification,
			UserID:    4,
			TokenHash: "digest",
			ExpiresAt: at.Add(time.Hour),
			CreatedAt: at,
		}))
	})

	t.Run("unknown kind never reaches the database", func(t *testing.T) {
		_, s := newMockStore(t)
		_, err := s.EphemeralTokens(auth.TokenKind("bogus")).DeleteExpired(ctx, at)
		errutil.AssertErrorCode(t, err, "EPHEMERAL_UNKNOWN_KIND")
	})
}

func TestStore_InTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success and routes calls through the tx", func(t *testing.T) {
		mock, s := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE users SET is_email_verified`).
			WithArgs(int64(1), true, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		err := s.InTransaction(ctx, func(ctx context.Context) error {
			return s.Users().SetEmailVerified(ctx, 1, true, time.Now())
		})
		require.NoError(t, err)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		mock, s := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := s.InTransaction(ctx, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("begin failure", func(t *testing.T) {
		mock, s := newMockStore(t)
		mock.ExpectBegin().WillReturnError(errors.New("no connections"))

		err := s.InTransaction(ctx, func(context.Context) error { return nil })
		errutil.AssertErrorCode(t, err, "TX_BEGIN_FAILED")
	})

	t.Run("ping", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectPing().WillReturnError(errors.New("down"))

		err = postgres.NewStore(mock).Ping(ctx)
		errutil.AssertErrorCode(t, err, "STORE_PING_FAILED")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
