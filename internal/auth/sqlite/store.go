// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package sqlite implements the auth identity store on an embedded SQLite
// database for development and single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/accountd/accountd/internal/auth"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// conn returns the transaction stored in ctx by InTransaction, or db. The
// database holds a single connection, so calls made inside a transaction
// must use the transaction or they block.
func conn(ctx context.Context, db *sql.DB) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// Store implements auth.Store over a SQLite database.
type Store struct {
	db            *sql.DB
	users         *UserRepository
	refreshTokens *RefreshTokenRepository
	verifications *EphemeralTokenRepository
	resets        *EphemeralTokenRepository
}

// Open opens (creating if needed) the database at path and applies the
// embedded schema migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn, err := dataSourceName(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	// SQLite serializes writers; one connection keeps transactions and
	// in-memory databases coherent.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("path", path).With("operation", "ping").Wrap(err)
	}
	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:            db,
		users:         &UserRepository{db: db},
		refreshTokens: &RefreshTokenRepository{db: db},
		verifications: newEphemeralTokenRepository(db, auth.KindEmailVerification),
		resets:        newEphemeralTokenRepository(db, auth.KindPasswordReset),
	}, nil
}

func dataSourceName(path string) (string, error) {
	const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	path = strings.TrimSpace(path)
	if path == "" {
		return "", oops.Code("SQLITE_INVALID_PATH").Errorf("database path is required")
	}
	if path == MemoryPath {
		return "file::memory:?" + pragmas, nil
	}
	return "file:" + filepath.Clean(path) + "?" + pragmas + "&_pragma=journal_mode(WAL)", nil
}

// applyMigrations runs the embedded schema up to the latest version. The
// migrate driver is not closed because closing it closes db.
func applyMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return oops.Code("SQLITE_MIGRATE_FAILED").With("operation", "open migrations").Wrap(err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return oops.Code("SQLITE_MIGRATE_FAILED").With("operation", "open driver").Wrap(err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return oops.Code("SQLITE_MIGRATE_FAILED").With("operation", "create migrator").Wrap(err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("SQLITE_MIGRATE_FAILED").With("operation", "up").Wrap(err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return oops.Code("SQLITE_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

// Users returns the user repository.
func (s *Store) Users() auth.UserRepository { return s.users }

// RefreshTokens returns the refresh token repository.
func (s *Store) RefreshTokens() auth.RefreshTokenRepository { return s.refreshTokens }

// EphemeralTokens returns the repository for kind.
func (s *Store) EphemeralTokens(kind auth.TokenKind) auth.EphemeralTokenRepository {
	switch kind {
	case auth.KindEmailVerification:
		return s.verifications
	case auth.KindPasswordReset:
		return s.resets
	default:
		return newEphemeralTokenRepository(s.db, kind)
	}
}

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return oops.Code("STORE_PING_FAILED").Wrap(err)
	}
	return nil
}

// InTransaction begins a transaction, stores it in context, and calls fn.
// The transaction commits when fn returns nil and rolls back otherwise.
// Nested calls join the outer transaction.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

var _ auth.Store = (*Store)(nil)
