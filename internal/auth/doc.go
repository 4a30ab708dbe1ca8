// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package auth is the credential and session lifecycle engine.
//
// # Domain Types
//
// User is an account identity; NewUser creates an unverified user with a
// local password. RefreshToken and EphemeralToken are persisted only as
// digests of their raw values (see HashToken).
//
// # Managers
//
//   - CredentialManager - registration, login verification, password rotation
//   - EphemeralTokenManager - issue/consume of single-use tokens, one kind each
//   - SessionManager - refresh token issue, rotation and revocation
//   - AccessTokenIssuer - HS256 access token signing and verification
//
// # Service
//
// Service composes the managers into the public flows (register, verify,
// login, refresh, logout, password reset and change, profile and account
// management). Errors carry a stable code; KindOf maps them to a Kind for
// the transport layer.
//
// Persistence is behind the Store interface, implemented by the postgres and
// sqlite subpackages.
package auth
