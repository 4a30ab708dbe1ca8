// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// MinSigningSecretBytes is the shortest HS256 secret accepted.
const MinSigningSecretBytes = 32

// AccessClaims are the claims embedded in an access token. The subject is the
// decimal user ID.
type AccessClaims struct {
	Email         string  `json:"email"`
	DisplayName   *string `json:"displayName,omitempty"`
	EmailVerified bool    `json:"isEmailVerified"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *AccessClaims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, oops.Code(CodeUnauthorized).Errorf("invalid access token")
	}
	return id, nil
}

// AccessTokenIssuer signs and verifies HS256 access tokens. It holds only
// read-only configuration and is safe for concurrent use.
type AccessTokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

// NewAccessTokenIssuer validates the signing configuration.
func NewAccessTokenIssuer(secret, issuer, audience string, ttl time.Duration) (*AccessTokenIssuer, error) {
	if len(secret) < MinSigningSecretBytes {
		return nil, oops.Code("ACCESS_TOKEN_CONFIG_INVALID").
			With("min_bytes", MinSigningSecretBytes).
			Errorf("signing secret is too short")
	}
	if issuer == "" || audience == "" {
		return nil, oops.Code("ACCESS_TOKEN_CONFIG_INVALID").Errorf("issuer and audience are required")
	}
	if ttl <= 0 {
		return nil, oops.Code("ACCESS_TOKEN_CONFIG_INVALID").With("ttl", ttl).Errorf("ttl must be positive")
	}
	return &AccessTokenIssuer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (i *AccessTokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Sign mints an access token for user, valid from now until now+TTL.
func (i *AccessTokenIssuer) Sign(user *User, now time.Time) (string, error) {
	claims := AccessClaims{
		Email:         user.Email,
		DisplayName:   user.DisplayName,
		EmailVerified: user.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", oops.Code("ACCESS_TOKEN_SIGN_FAILED").With("user_id", user.ID).Wrap(err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer, audience and expiry against
// now. Every failure yields the same Unauthorized error.
func (i *AccessTokenIssuer) Verify(token string, now time.Time) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !parsed.Valid {
		return nil, oops.Code(CodeUnauthorized).Errorf("invalid access token")
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
