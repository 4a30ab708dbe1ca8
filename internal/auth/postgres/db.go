// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package postgres implements the auth identity store on PostgreSQL.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

// Pool is the subset of *pgxpool.Pool the store uses. pgxmock pools satisfy it.
type Pool interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// querier abstracts query execution for both the pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// conn returns the transaction stored in ctx by Transactor, or the pool.
func conn(ctx context.Context, pool Pool) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// Store implements auth.Store over a connection pool.
type Store struct {
	pool          Pool
	users         *UserRepository
	refreshTokens *RefreshTokenRepository
	verifications *EphemeralTokenRepository
	resets        *EphemeralTokenRepository
}

// NewStore creates a Store backed by pool.
func NewStore(pool Pool) *Store {
	return &Store{
		pool:          pool,
		users:         NewUserRepository(pool),
		refreshTokens: NewRefreshTokenRepository(pool),
		verifications: NewEphemeralTokenRepository(pool, auth.KindEmailVerification),
		resets:        NewEphemeralTokenRepository(pool, auth.KindPasswordReset),
	}
}

// Users returns the user repository.
func (s *Store) Users() auth.UserRepository { return s.users }

// RefreshTokens returns the refresh token repository.
func (s *Store) RefreshTokens() auth.RefreshTokenRepository { return s.refreshTokens }

// EphemeralTokens returns the repository for kind. Repositories for unknown
// kinds are rejected by auth.NewEphemeralTokenManager.
func (s *Store) EphemeralTokens(kind auth.TokenKind) auth.EphemeralTokenRepository {
	switch kind {
	case auth.KindEmailVerification:
		return s.verifications
	case auth.KindPasswordReset:
		return s.resets
	default:
		return NewEphemeralTokenRepository(s.pool, kind)
	}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return oops.Code("STORE_PING_FAILED").Wrap(err)
	}
	return nil
}

// InTransaction begins a transaction, stores it in context, and calls fn.
// If fn returns nil, the transaction is committed. Otherwise it is rolled
// back. Nested calls join the outer transaction.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

var _ auth.Store = (*Store)(nil)
