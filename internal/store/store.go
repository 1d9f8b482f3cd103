// Package store provides the in-memory identity record store.
//
// The store is the single shared mutable resource in the simulator. Every
// logical change is a single store method so all indices are updated
// atomically and readers never see a half-applied mutation.
package store

import (
	"errors"
	"time"
)

// Errors returned by store operations. The store reports absence and
// failure; translating these into protocol responses is the caller's job.
var (
	// ErrNotFound indicates a lookup by userId or email missed.
	ErrNotFound = errors.New("identity record not found")

	// ErrConflict indicates an insert would violate a uniqueness constraint.
	ErrConflict = errors.New("identity record already exists")

	// ErrInvalidCode indicates an authorization code is unknown, expired, or
	// already redeemed.
	ErrInvalidCode = errors.New("invalid authorization code")
)

// Store defines the identity record repository. All lookups return copies;
// mutations go through dedicated methods that keep every index consistent.
type Store interface {
	// Put inserts or updates a record keyed by UserID. Returns ErrConflict
	// if the record's email is already owned by a different user.
	Put(rec *IdentityRecord) error

	// GetByUserID retrieves a record by its stable user identifier.
	GetByUserID(userID string) (*IdentityRecord, bool)

	// GetByEmail retrieves a record by email.
	GetByEmail(email string) (*IdentityRecord, bool)

	// GetByPin retrieves a record by its unconsumed pin.
	GetByPin(pin string) (*IdentityRecord, bool)

	// GetByToken retrieves a record by a previously issued token. Both the
	// access token and the ID token values resolve.
	GetByToken(token string) (*IdentityRecord, bool)

	// GetByAuthCode retrieves a record by its unredeemed authorization code.
	GetByAuthCode(code string) (*IdentityRecord, bool)

	// Search matches a query string against roles, email, forename, and
	// surname. An empty query matches everything. Results are in insertion
	// order; a miss is an empty slice, never an error.
	Search(query string) []*IdentityRecord

	// AssignAuthCode sets the record's authorization code, replacing any
	// unredeemed code, and consumes the record's pin if one is set.
	AssignAuthCode(userID, code string, expiresAt time.Time) error

	// RedeemAuthCode atomically checks and clears the code. Exactly one of
	// any set of concurrent redeemers of the same code succeeds; the rest
	// get ErrInvalidCode.
	RedeemAuthCode(code string) (*IdentityRecord, error)

	// AttachTokens records a freshly minted token set on the record.
	AttachTokens(userID string, tokens TokenSet) error

	// SetAccessToken updates only the record's access token.
	SetAccessToken(userID, token string, issuedAt, expiresAt time.Time) error

	// Count returns the number of stored records.
	Count() int

	// Clear removes all records. Exposed to test-support callers only.
	Clear()
}
