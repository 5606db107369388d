// Package auth implements credential verification, token issuance and the
// session lifecycle of a user: register, login, refresh and logout.
package auth

import "errors"

// Domain errors.  Their messages are part of the HTTP contract.
var (
	ErrInvalidCredentials = errors.New("Invalid credentials")
	ErrUserExists         = errors.New("User already exists")
	ErrUsernameTaken      = errors.New("Username already taken")
	ErrNotLoggedIn        = errors.New("You must log in first")
	ErrSessionNotFound    = errors.New("User not found or refresh token missing")
)

// Gate errors returned while authenticating a bearer token.
var (
	ErrAuthHeaderMissing = errors.New("Authorization header not found")
	ErrMalformedBearer   = errors.New("Bearer token malformed")
	ErrInvalidToken      = errors.New("Invalid token")
)

// ErrInvalidRole is returned before any write when a registration asks for
// a role outside the allowed set.
var ErrInvalidRole = errors.New("invalid role")

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// ErrPasswordTooLong is returned before any write for passwords bcrypt
// cannot hash.
var ErrPasswordTooLong = errors.New("password must be at most 72 bytes")

// ErrHash wraps failures of the password hasher.
var ErrHash = errors.New("password hashing failed")
