// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/auth/sqlite"
	"github.com/accountd/accountd/pkg/errutil"
)

var errInjected = errors.New("injected write failure")

// failOnce returns errInjected the first time it is armed and hit.
type failOnce struct{ armed atomic.Bool }

func (f *failOnce) hit() error {
	if f.armed.CompareAndSwap(true, false) {
		return errInjected
	}
	return nil
}

type flakyUsers struct {
	auth.UserRepository
	updatePassword *failOnce
}

func (u *flakyUsers) UpdatePassword(ctx context.Context, id int64, hash string, now time.Time) error {
	if err := u.updatePassword.hit(); err != nil {
		return err
	}
	return u.UserRepository.UpdatePassword(ctx, id, hash, now)
}

type flakyTokens struct {
	auth.EphemeralTokenRepository
	create *failOnce
}

func (r *flakyTokens) Create(ctx context.Context, token *auth.EphemeralToken) error {
	if err := r.create.hit(); err != nil {
		return err
	}
	return r.EphemeralTokenRepository.Create(ctx, token)
}

// flakyStore wraps the SQLite store so single writes can be made to fail
// inside an otherwise real transaction.
type flakyStore struct {
	*sqlite.Store
	updatePassword     failOnce
	createVerification failOnce
}

func (s *flakyStore) Users() auth.UserRepository {
	return &flakyUsers{UserRepository: s.Store.Users(), updatePassword: &s.updatePassword}
}

func (s *flakyStore) EphemeralTokens(kind auth.TokenKind) auth.EphemeralTokenRepository {
	repo := s.Store.EphemeralTokens(kind)
	if kind != auth.KindEmailVerification {
		return repo
	}
	return &flakyTokens{EphemeralTokenRepository: repo, create: &s.createVerification}
}

func newFlakyService(t *testing.T) (*auth.Service, *flakyStore, *outbox) {
	t.Helper()
	base, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = base.Close() })

	store := &flakyStore{Store: base}
	mail := &outbox{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := auth.NewService(store, auth.NewBcryptHasher(bcrypt.MinCost, logger), mail,
		auth.DefaultConfig(testSecret), auth.WithLogger(logger))
	require.NoError(t, err)
	return svc, store, mail
}

func TestService_RegisterRollsBackWhenTokenIssueFails(t *testing.T) {
	ctx := context.Background()
	svc, store, mail := newFlakyService(t)

	store.createVerification.armed.Store(true)
	_, err := svc.Register(ctx, "retry@example.com", "Password1", nil)
	require.Error(t, err)
	assert.Equal(t, auth.KindInternal, auth.KindOf(err))
	assert.Zero(t, mail.count(auth.MessageVerification))

	exists, err := store.Store.Users().ExistsByEmail(ctx, "retry@example.com")
	require.NoError(t, err)
	assert.False(t, exists, "user must not outlive a failed registration")

	user, err := svc.Register(ctx, "retry@example.com", "Password1", nil)
	require.NoError(t, err, "retry must not report a conflict")
	require.NoError(t, svc.VerifyEmail(ctx, mail.last(t, auth.MessageVerification).Token))
	_, loggedIn, err := svc.Login(ctx, "retry@example.com", "Password1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
}

func TestService_ConfirmPasswordResetRollsBackWhenUpdateFails(t *testing.T) {
	ctx := context.Background()
	svc, store, mail := newFlakyService(t)

	_, err := svc.Register(ctx, "flaky@example.com", "Password1", nil)
	require.NoError(t, err)
	require.NoError(t, svc.VerifyEmail(ctx, mail.last(t, auth.MessageVerification).Token))
	session, _, err := svc.Login(ctx, "flaky@example.com", "Password1")
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, "flaky@example.com"))
	token := mail.last(t, auth.MessagePasswordReset).Token

	store.updatePassword.armed.Store(true)
	err = svc.ConfirmPasswordReset(ctx, token, "Changed22")
	require.Error(t, err)
	assert.Equal(t, auth.KindInternal, auth.KindOf(err))

	// Nothing committed: old password and session still work.
	_, _, err = svc.Login(ctx, "flaky@example.com", "Password1")
	require.NoError(t, err)
	session, err = svc.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, svc.ConfirmPasswordReset(ctx, token, "Changed22"), "token must survive the failed attempt")

	_, err = svc.Refresh(ctx, session.RefreshToken)
	errutil.AssertErrorCode(t, err, auth.CodeUnauthorized)
	_, _, err = svc.Login(ctx, "flaky@example.com", "Changed22")
	require.NoError(t, err)
}
