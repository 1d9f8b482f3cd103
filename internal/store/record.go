package store

import "time"

// IdentityRecord is the simulated user/session entity. It is the unit of all
// lookups and mutations in the simulator: a record is created by test-data
// seeding or by pin issuance, then mutated in place as a grant flow moves it
// through pin, authorization code, and token issuance.
type IdentityRecord struct {
	UserID   string
	Email    string
	Forename string
	Surname  string
	Roles    []string

	// Pin is the short-lived credential handed out by the pin flow. It is
	// consumed when exchanged for an authorization code.
	Pin          string
	PinIssuedAt  time.Time
	PinExpiresAt time.Time

	// AuthCode is the record's single unredeemed authorization code.
	// Redeeming it clears the field; assigning a new one replaces it.
	AuthCode          string
	AuthCodeIssuedAt  time.Time
	AuthCodeExpiresAt time.Time

	// Tokens issued for this record. AccessToken and IDToken are both
	// resolvable through GetByToken.
	AccessToken    string
	IDToken        string
	RefreshToken   string
	TokenIssuedAt  time.Time
	TokenExpiresAt time.Time

	CreatedAt time.Time
}

// TokenSet is the result of redeeming an authorization code.
type TokenSet struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// Clone returns a deep copy of the record. The store hands out clones so
// callers never observe a record mid-mutation.
func (r *IdentityRecord) Clone() *IdentityRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Roles = append([]string(nil), r.Roles...)
	return &c
}
