// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"github.com/samber/oops"
)

// Opaque token sizes in bytes.
const (
	EphemeralTokenBytes = 32 // 256 bits
	RefreshTokenBytes   = 64 // 512 bits
)

// RandomToken returns n bytes from crypto/rand encoded as unpadded base64url.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		return "", oops.Code("TOKEN_INVALID_LENGTH").With("requested_bytes", n).Errorf("token length must be positive")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", n).
			Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken returns the SHA-256 digest of a raw opaque token, encoded as
// unpadded base64url. Only digests are persisted.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// mintToken generates a raw token and its digest.
func mintToken(n int) (raw, hash string, err error) {
	raw, err = RandomToken(n)
	if err != nil {
		return "", "", err
	}
	return raw, HashToken(raw), nil
}
