// Package id generates the credentials handed out by the simulator: user
// ids, pins, and authorization codes.
//
// Pins and codes only need to be unique for the lifetime of the process, but
// they are still drawn from crypto/rand so that values are not trivially
// predictable across runs.
package id

import (
	"crypto/rand"

	"github.com/google/uuid"
)

const (
	// PinLength is the length of a generated pin.
	PinLength = 16

	// AuthCodeLength is the length of a generated authorization code.
	AuthCodeLength = 24

	// RefreshTokenLength is the length of a generated refresh token.
	RefreshTokenLength = 64
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewUserID generates a stable user identifier (UUID v4).
func NewUserID() string {
	return uuid.NewString()
}

// NewPin generates a pin.
func NewPin() string {
	return randomString(PinLength)
}

// NewAuthCode generates an authorization code.
func NewAuthCode() string {
	return randomString(AuthCodeLength)
}

// NewRefreshToken generates an opaque refresh token.
func NewRefreshToken() string {
	return randomString(RefreshTokenLength)
}

// randomString returns a random alphanumeric string of length n.
func randomString(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = alphanumeric[int(b[i])%len(alphanumeric)]
	}
	return string(b)
}
