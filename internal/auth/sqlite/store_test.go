// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/auth/sqlite"
)

var _ = Describe("SQLite identity store", func() {
	var (
		ctx   context.Context
		store *sqlite.Store
		now   time.Time
	)

	newUser := func(email string) *auth.User {
		user, err := auth.NewUser(email, "$2a$12$hash", nil, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Users().Create(ctx, user)).To(Succeed())
		return user
	}

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		var err error
		store, err = sqlite.Open(ctx, sqlite.MemoryPath)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)
	})

	It("rejects an empty path", func() {
		_, err := sqlite.Open(ctx, "  ")
		Expect(err).To(HaveOccurred())
	})

	It("persists across reopen of a file database", func() {
		path := filepath.Join(GinkgoT().TempDir(), "accounts.db")
		first, err := sqlite.Open(ctx, path)
		Expect(err).NotTo(HaveOccurred())
		user, err := auth.NewUser("keep@example.com", "$2a$12$hash", nil, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Users().Create(ctx, user)).To(Succeed())
		Expect(first.Close()).To(Succeed())

		second, err := sqlite.Open(ctx, path)
		Expect(err).NotTo(HaveOccurred())
		defer second.Close()
		got, err := second.Users().GetByEmail(ctx, "keep@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(user.ID))
	})

	Describe("users", func() {
		It("round-trips a user with nullable fields", func() {
			name := "Ada"
			user, err := auth.NewUser("ada@example.com", "$2a$12$hash", &name, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Users().Create(ctx, user)).To(Succeed())
			Expect(user.ID).To(BeNumerically(">", 0))

			got, err := store.Users().GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Email).To(Equal("ada@example.com"))
			Expect(got.DisplayName).To(HaveValue(Equal("Ada")))
			Expect(got.PasswordHash).To(HaveValue(Equal("$2a$12$hash")))
			Expect(got.EmailVerified).To(BeFalse())
			Expect(got.CreatedAt).To(BeTemporally("==", now))
			Expect(got.DeletedAt).To(BeNil())
		})

		It("maps a duplicate live email to ErrDuplicateEmail", func() {
			newUser("dup@example.com")
			again, err := auth.NewUser("dup@example.com", "$2a$12$hash", nil, now)
			Expect(err).NotTo(HaveOccurred())
			err = store.Users().Create(ctx, again)
			Expect(errors.Is(err, auth.ErrDuplicateEmail)).To(BeTrue())
		})

		It("frees the email of a soft-deleted user", func() {
			user := newUser("gone@example.com")
			Expect(store.Users().SoftDelete(ctx, user.ID, now)).To(Succeed())

			_, err := store.Users().GetByID(ctx, user.ID)
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
			exists, err := store.Users().ExistsByEmail(ctx, "gone@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())

			newUser("gone@example.com")
		})

		It("clears verification when the email changes", func() {
			user := newUser("old@example.com")
			Expect(store.Users().SetEmailVerified(ctx, user.ID, true, now)).To(Succeed())
			Expect(store.Users().UpdateEmail(ctx, user.ID, "new@example.com", now.Add(time.Minute))).To(Succeed())

			got, err := store.Users().GetByEmail(ctx, "new@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.EmailVerified).To(BeFalse())
			Expect(got.UpdatedAt).To(BeTemporally("==", now.Add(time.Minute)))
		})

		It("rejects an email change onto a taken address", func() {
			newUser("taken@example.com")
			user := newUser("mover@example.com")
			err := store.Users().UpdateEmail(ctx, user.ID, "taken@example.com", now)
			Expect(errors.Is(err, auth.ErrDuplicateEmail)).To(BeTrue())
		})

		It("clears the display name", func() {
			name := "Temp"
			user := newUser("name@example.com")
			Expect(store.Users().UpdateProfile(ctx, user.ID, &name, now)).To(Succeed())
			Expect(store.Users().UpdateProfile(ctx, user.ID, nil, now)).To(Succeed())
			got, err := store.Users().GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.DisplayName).To(BeNil())
		})

		It("reports missing users on update", func() {
			err := store.Users().UpdatePassword(ctx, 4242, "$2a$12$other", now)
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("refresh tokens", func() {
		var user *auth.User

		BeforeEach(func() {
			user = newUser("session@example.com")
		})

		create := func(hash string, expires time.Time) *auth.RefreshToken {
			token := &auth.RefreshToken{
				ID:        ulid.Make(),
				UserID:    user.ID,
				TokenHash: hash,
				ExpiresAt: expires,
				CreatedAt: now,
			}
			Expect(store.RefreshTokens().Create(ctx, token)).To(Succeed())
			return token
		}

		It("finds only valid tokens", func() {
			token := create("h1", now.Add(time.Hour))

			got, err := store.RefreshTokens().FindValid(ctx, "h1", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(token.ID))

			_, err = store.RefreshTokens().FindValid(ctx, "h1", now.Add(time.Hour))
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})

		It("revokes a token once", func() {
			token := create("h2", now.Add(time.Hour))

			ok, err := store.RefreshTokens().Revoke(ctx, token.ID, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = store.RefreshTokens().Revoke(ctx, token.ID, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			_, err = store.RefreshTokens().FindValid(ctx, "h2", now)
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})

		It("revokes all tokens of a user and purges", func() {
			create("a", now.Add(time.Hour))
			create("b", now.Add(time.Hour))
			create("c", now.Add(-time.Minute))

			n, err := store.RefreshTokens().RevokeAllByUser(ctx, user.ID, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeEquivalentTo(3))

			expired, err := store.RefreshTokens().DeleteExpired(ctx, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(expired).To(BeEquivalentTo(1))

			revoked, err := store.RefreshTokens().DeleteRevoked(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(revoked).To(BeEquivalentTo(2))
		})

		It("revokes by digest and ignores unknown digests", func() {
			create("by-hash", now.Add(time.Hour))
			ok, err := store.RefreshTokens().RevokeByHash(ctx, "by-hash", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = store.RefreshTokens().RevokeByHash(ctx, "unknown", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("single-use tokens", func() {
		var (
			user *auth.User
			repo auth.EphemeralTokenRepository
		)

		BeforeEach(func() {
			user = newUser("once@example.com")
			repo = store.EphemeralTokens(auth.KindPasswordReset)
		})

		create := func(hash string, expires time.Time) {
			Expect(repo.Create(ctx, &auth.EphemeralToken{
				ID:        ulid.Make(),
				Kind:      repo.Kind(),
				UserID:    user.ID,
				TokenHash: hash,
				ExpiresAt: expires,
				CreatedAt: now,
			})).To(Succeed())
		}

		It("consumes a token exactly once", func() {
			create("t1", now.Add(time.Hour))

			id, err := repo.Consume(ctx, "t1", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(user.ID))

			_, err = repo.Consume(ctx, "t1", now)
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})

		It("refuses an expired token", func() {
			create("t2", now)
			_, err := repo.Consume(ctx, "t2", now)
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})

		It("lets one of many concurrent consumers win", func() {
			create("race", now.Add(time.Hour))

			var (
				wg        sync.WaitGroup
				successes atomic.Int32
			)
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := repo.Consume(ctx, "race", now); err == nil {
						successes.Add(1)
					}
				}()
			}
			wg.Wait()
			Expect(successes.Load()).To(BeEquivalentTo(1))
		})

		It("keeps kinds in separate tables", func() {
			create("shared", now.Add(time.Hour))
			_, err := store.EphemeralTokens(auth.KindEmailVerification).Consume(ctx, "shared", now)
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})

		It("deletes unused tokens and purges spent ones", func() {
			create("used", now.Add(time.Hour))
			_, err := repo.Consume(ctx, "used", now)
			Expect(err).NotTo(HaveOccurred())
			create("unused", now.Add(time.Hour))
			create("stale", now.Add(-time.Hour))

			n, err := repo.DeleteUnusedByUser(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeEquivalentTo(2))

			n, err = repo.DeleteExpired(ctx, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeEquivalentTo(1))
		})

		It("rejects unknown kinds", func() {
			_, err := store.EphemeralTokens(auth.TokenKind("bogus")).Consume(ctx, "x", now)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("transactions", func() {
		It("rolls back on error", func() {
			boom := errors.New("boom")
			err := store.InTransaction(ctx, func(ctx context.Context) error {
				user, err := auth.NewUser("rollback@example.com", "$2a$12$hash", nil, now)
				Expect(err).NotTo(HaveOccurred())
				Expect(store.Users().Create(ctx, user)).To(Succeed())
				return boom
			})
			Expect(err).To(MatchError(boom))

			exists, err := store.Users().ExistsByEmail(ctx, "rollback@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())
		})

		It("joins an outer transaction", func() {
			err := store.InTransaction(ctx, func(outer context.Context) error {
				return store.InTransaction(outer, func(inner context.Context) error {
					user, err := auth.NewUser("nested@example.com", "$2a$12$hash", nil, now)
					if err != nil {
						return err
					}
					return store.Users().Create(inner, user)
				})
			})
			Expect(err).NotTo(HaveOccurred())
			exists, err := store.Users().ExistsByEmail(ctx, "nested@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue())
		})

		It("pings", func() {
			Expect(store.Ping(ctx)).To(Succeed())
		})
	})
})
