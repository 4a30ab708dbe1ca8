// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package mocks provides testify mocks of the auth collaborator contracts.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/accountd/accountd/internal/auth"
)

// testingT is the subset of *testing.T the constructors need.
type testingT interface {
	mock.TestingT
	Cleanup(func())
}

func register(m *mock.Mock, t testingT) {
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
}

// errAt returns the error at index i of a call's return values, tolerating nil.
func errAt(args mock.Arguments, i int) error {
	if e, ok := args.Get(i).(error); ok {
		return e
	}
	return nil
}

// MockUserRepository mocks auth.UserRepository.
type MockUserRepository struct{ mock.Mock }

// NewMockUserRepository creates a MockUserRepository that asserts its
// expectations when the test ends.
func NewMockUserRepository(t testingT) *MockUserRepository {
	m := &MockUserRepository{}
	register(&m.Mock, t)
	return m
}

// Create mocks UserRepository.Create. Use Run to assign IDs.
func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	return errAt(m.Called(ctx, user), 0)
}

// GetByID mocks UserRepository.GetByID.
func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*auth.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*auth.User)
	return u, errAt(args, 1)
}

// GetByEmail mocks UserRepository.GetByEmail.
func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*auth.User)
	return u, errAt(args, 1)
}

// ExistsByEmail mocks UserRepository.ExistsByEmail.
func (m *MockUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), errAt(args, 1)
}

// UpdateProfile mocks UserRepository.UpdateProfile.
func (m *MockUserRepository) UpdateProfile(ctx context.Context, id int64, displayName *string, now time.Time) error {
	return errAt(m.Called(ctx, id, displayName, now), 0)
}

// UpdateEmail mocks UserRepository.UpdateEmail.
func (m *MockUserRepository) UpdateEmail(ctx context.Context, id int64, email string, now time.Time) error {
	return errAt(m.Called(ctx, id, email, now), 0)
}

// SetEmailVerified mocks UserRepository.SetEmailVerified.
func (m *MockUserRepository) SetEmailVerified(ctx context.Context, id int64, verified bool, now time.Time) error {
	return errAt(m.Called(ctx, id, verified, now), 0)
}

// UpdatePassword mocks UserRepository.UpdatePassword.
func (m *MockUserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string, now time.Time) error {
	return errAt(m.Called(ctx, id, passwordHash, now), 0)
}

// SoftDelete mocks UserRepository.SoftDelete.
func (m *MockUserRepository) SoftDelete(ctx context.Context, id int64, now time.Time) error {
	return errAt(m.Called(ctx, id, now), 0)
}

// MockRefreshTokenRepository mocks auth.RefreshTokenRepository.
type MockRefreshTokenRepository struct{ mock.Mock }

// NewMockRefreshTokenRepository creates a MockRefreshTokenRepository.
func NewMockRefreshTokenRepository(t testingT) *MockRefreshTokenRepository {
	m := &MockRefreshTokenRepository{}
	register(&m.Mock, t)
	return m
}

// Create mocks RefreshTokenRepository.Create.
func (m *MockRefreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	return errAt(m.Called(ctx, token), 0)
}

// FindValid mocks RefreshTokenRepository.FindValid.
func (m *MockRefreshTokenRepository) FindValid(ctx context.Context, tokenHash string, now time.Time) (*auth.RefreshToken, error) {
	args := m.Called(ctx, tokenHash, now)
	tok, _ := args.Get(0).(*auth.RefreshToken)
	return tok, errAt(args, 1)
}

// Revoke mocks RefreshTokenRepository.Revoke.
func (m *MockRefreshTokenRepository) Revoke(ctx context.Context, id ulid.ULID, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), errAt(args, 1)
}

// RevokeByHash mocks RefreshTokenRepository.RevokeByHash.
func (m *MockRefreshTokenRepository) RevokeByHash(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	args := m.Called(ctx, tokenHash, now)
	return args.Bool(0), errAt(args, 1)
}

// RevokeAllByUser mocks RefreshTokenRepository.RevokeAllByUser.
func (m *MockRefreshTokenRepository) RevokeAllByUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	args := m.Called(ctx, userID, now)
	return args.Get(0).(int64), errAt(args, 1)
}

// DeleteExpired mocks RefreshTokenRepository.DeleteExpired.
func (m *MockRefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), errAt(args, 1)
}

// DeleteRevoked mocks RefreshTokenRepository.DeleteRevoked.
func (m *MockRefreshTokenRepository) DeleteRevoked(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), errAt(args, 1)
}

// MockEphemeralTokenRepository mocks auth.EphemeralTokenRepository.
type MockEphemeralTokenRepository struct {
	mock.Mock
	kind auth.TokenKind
}

// NewMockEphemeralTokenRepository creates a MockEphemeralTokenRepository
// reporting the given kind.
func NewMockEphemeralTokenRepository(t testingT, kind auth.TokenKind) *MockEphemeralTokenRepository {
	m := &MockEphemeralTokenRepository{kind: kind}
	register(&m.Mock, t)
	return m
}

// Kind returns the kind given at construction. It is not recorded as a call.
func (m *MockEphemeralTokenRepository) Kind() auth.TokenKind {
	return m.kind
}

// Create mocks EphemeralTokenRepository.Create.
func (m *MockEphemeralTokenRepository) Create(ctx context.Context, token *auth.EphemeralToken) error {
	return errAt(m.Called(ctx, token), 0)
}

// DeleteUnusedByUser mocks EphemeralTokenRepository.DeleteUnusedByUser.
func (m *MockEphemeralTokenRepository) DeleteUnusedByUser(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), errAt(args, 1)
}

// Consume mocks EphemeralTokenRepository.Consume.
func (m *MockEphemeralTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (int64, error) {
	args := m.Called(ctx, tokenHash, now)
	return args.Get(0).(int64), errAt(args, 1)
}

// DeleteExpired mocks EphemeralTokenRepository.DeleteExpired.
func (m *MockEphemeralTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), errAt(args, 1)
}

// MockPasswordHasher mocks auth.PasswordHasher.
type MockPasswordHasher struct{ mock.Mock }

// NewMockPasswordHasher creates a MockPasswordHasher.
func NewMockPasswordHasher(t testingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	register(&m.Mock, t)
	return m
}

// Hash mocks PasswordHasher.Hash.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), errAt(args, 1)
}

// Verify mocks PasswordHasher.Verify.
func (m *MockPasswordHasher) Verify(password, hash string) bool {
	return m.Called(password, hash).Bool(0)
}

// NeedsUpgrade mocks PasswordHasher.NeedsUpgrade.
func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

// MockMailer mocks auth.Mailer.
type MockMailer struct{ mock.Mock }

// NewMockMailer creates a MockMailer.
func NewMockMailer(t testingT) *MockMailer {
	m := &MockMailer{}
	register(&m.Mock, t)
	return m
}

// Send mocks Mailer.Send.
func (m *MockMailer) Send(ctx context.Context, msg auth.Message) error {
	return errAt(m.Called(ctx, msg), 0)
}

// Transactor runs fn directly. Commit and rollback are not simulated.
type Transactor struct {
	Calls int
}

// InTransaction calls fn with ctx.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.Calls++
	return fn(ctx)
}

var (
	_ auth.UserRepository           = (*MockUserRepository)(nil)
	_ auth.RefreshTokenRepository   = (*MockRefreshTokenRepository)(nil)
	_ auth.EphemeralTokenRepository = (*MockEphemeralTokenRepository)(nil)
	_ auth.PasswordHasher           = (*MockPasswordHasher)(nil)
	_ auth.Mailer                   = (*MockMailer)(nil)
	_ auth.Transactor               = (*Transactor)(nil)
)
