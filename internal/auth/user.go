// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Input constraints enforced at the edge of the engine.
const (
	MinPasswordLength    = 8
	MaxPasswordBytes     = 72 // bcrypt ignores anything longer
	MaxDisplayNameLength = 100
	MaxEmailLength       = 254
)

var emailRegex = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// User is an account identity.
//
// A nil PasswordHash means the account has no local password credential.
// A non-nil DeletedAt marks the row as soft deleted; repositories never
// return such rows.
type User struct {
	ID            int64
	Email         string
	PasswordHash  *string
	DisplayName   *string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// NewUser creates an unverified user with a local password credential.
// The ID is assigned by the repository on Create.
func NewUser(email, passwordHash string, displayName *string, now time.Time) (*User, error) {
	if email == "" {
		return nil, oops.Code("USER_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	return &User{
		Email:        email,
		PasswordHash: &passwordHash,
		DisplayName:  displayName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasLocalCredential reports whether the user can log in with a password.
func (u *User) HasLocalCredential() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// ValidateEmail checks the shape of an email address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code(CodeValidation).With("field", "email").Errorf("email is required")
	}
	if len(email) > MaxEmailLength || !emailRegex.MatchString(email) {
		return oops.Code(CodeValidation).With("field", "email").Errorf("email address is not valid")
	}
	return nil
}

// ValidatePassword checks password strength:
//   - at least MinPasswordLength characters
//   - at most MaxPasswordBytes bytes
//   - at least one lowercase letter, one uppercase letter and one digit
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return oops.Code(CodeValidation).
			With("field", "password").
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return oops.Code(CodeValidation).
			With("field", "password").
			Errorf("password must be at most %d bytes", MaxPasswordBytes)
	}
	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !lower || !upper || !digit {
		return oops.Code(CodeValidation).
			With("field", "password").
			Errorf("password must contain an uppercase letter, a lowercase letter and a digit")
	}
	return nil
}

// ValidateDisplayName checks an optional display name. Nil is accepted.
func ValidateDisplayName(name *string) error {
	if name == nil {
		return nil
	}
	n := utf8.RuneCountInString(strings.TrimSpace(*name))
	if n == 0 {
		return oops.Code(CodeValidation).With("field", "displayName").Errorf("display name cannot be blank")
	}
	if utf8.RuneCountInString(*name) > MaxDisplayNameLength {
		return oops.Code(CodeValidation).
			With("field", "displayName").
			Errorf("display name must be at most %d characters", MaxDisplayNameLength)
	}
	return nil
}

// UserRepository manages user persistence. Every lookup excludes soft-deleted
// rows, and email uniqueness only holds among non-deleted rows.
type UserRepository interface {
	// Create stores a new user and assigns its ID.
	// Returns ErrDuplicateEmail if the email is taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id int64) (*User, error)

	// GetByEmail retrieves a user by exact email. Returns ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// ExistsByEmail reports whether a non-deleted user holds the email.
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// UpdateProfile sets or clears the display name.
	UpdateProfile(ctx context.Context, id int64, displayName *string, now time.Time) error

	// UpdateEmail sets a new email and clears the verified flag.
	// Returns ErrDuplicateEmail if the email is taken.
	UpdateEmail(ctx context.Context, id int64, email string, now time.Time) error

	// SetEmailVerified sets the verified flag.
	SetEmailVerified(ctx context.Context, id int64, verified bool, now time.Time) error

	// UpdatePassword replaces the password hash.
	UpdatePassword(ctx context.Context, id int64, passwordHash string, now time.Time) error

	// SoftDelete marks the user deleted.
	SoftDelete(ctx context.Context, id int64, now time.Time) error
}
