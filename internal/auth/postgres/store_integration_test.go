// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/auth/postgres"
)

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func createUser(t *testing.T, s *postgres.Store, email string) *auth.User {
	t.Helper()
	ctx := context.Background()
	user, err := auth.NewUser(email, "$2a$12$hash", nil, now())
	require.NoError(t, err)
	require.NoError(t, s.Users().Create(ctx, user))
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM users WHERE id = $1`, user.ID)
	})
	return user
}

func TestUserRepository_Integration(t *testing.T) {
	ctx := context.Background()
	s := postgres.NewStore(testPool)

	t.Run("round trip", func(t *testing.T) {
		user := createUser(t, s, "pg-roundtrip@example.com")
		got, err := s.Users().GetByEmail(ctx, "pg-roundtrip@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, user.CreatedAt, got.CreatedAt.UTC())
		assert.Nil(t, got.DisplayName)
	})

	t.Run("duplicate live email", func(t *testing.T) {
		createUser(t, s, "pg-dup@example.com")
		again, err := auth.NewUser("pg-dup@example.com", "$2a$12$hash", nil, now())
		require.NoError(t, err)
		assert.ErrorIs(t, s.Users().Create(ctx, again), auth.ErrDuplicateEmail)
	})

	t.Run("soft delete frees the email", func(t *testing.T) {
		user := createUser(t, s, "pg-gone@example.com")
		require.NoError(t, s.Users().SoftDelete(ctx, user.ID, now()))
		_, err := s.Users().GetByID(ctx, user.ID)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		createUser(t, s, "pg-gone@example.com")
	})

	t.Run("email change clears verification", func(t *testing.T) {
		user := createUser(t, s, "pg-old@example.com")
		require.NoError(t, s.Users().SetEmailVerified(ctx, user.ID, true, now()))
		require.NoError(t, s.Users().UpdateEmail(ctx, user.ID, "pg-new@example.com", now()))
		got, err := s.Users().GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "pg-new@example.com", got.Email)
		assert.False(t, got.EmailVerified)
	})
}

func TestRefreshTokenRepository_Integration(t *testing.T) {
	ctx := context.Background()
	s := postgres.NewStore(testPool)
	user := createUser(t, s, "pg-refresh@example.com")
	at := now()

	token := &auth.RefreshToken{
		ID:        ulid.Make(),
		UserID:    user.ID,
		TokenHash: "pg-refresh-hash",
		ExpiresAt: at.Add(time.Hour),
		CreatedAt: at,
	}
	require.NoError(t, s.RefreshTokens().Create(ctx, token))

	found, err := s.RefreshTokens().FindValid(ctx, "pg-refresh-hash", at)
	require.NoError(t, err)
	assert.Equal(t, token.ID, found.ID)

	ok, err := s.RefreshTokens().Revoke(ctx, token.ID, at)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.RefreshTokens().Revoke(ctx, token.ID, at)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.RefreshTokens().FindValid(ctx, "pg-refresh-hash", at)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	n, err := s.RefreshTokens().DeleteRevoked(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
}

func TestEphemeralTokenRepository_ConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	s := postgres.NewStore(testPool)
	user := createUser(t, s, "pg-consume@example.com")
	repo := s.EphemeralTokens(auth.KindEmailVerification)
	at := now()

	require.NoError(t, repo.Create(ctx, &auth.EphemeralToken{
		ID:        ulid.Make(),
		Kind:      auth.KindEmailVerification,
		UserID:    user.ID,
		TokenHash: "pg-once",
		ExpiresAt: at.Add(time.Hour),
		CreatedAt: at,
	}))

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Consume(ctx, "pg-once", at); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestStore_InTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := postgres.NewStore(testPool)
	boom := errors.New("boom")

	err := s.InTransaction(ctx, func(ctx context.Context) error {
		user, err := auth.NewUser("pg-rollback@example.com", "$2a$12$hash", nil, now())
		require.NoError(t, err)
		require.NoError(t, s.Users().Create(ctx, user))
		return boom
	})
	require.ErrorIs(t, err, boom)

	exists, err := s.Users().ExistsByEmail(ctx, "pg-rollback@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}
