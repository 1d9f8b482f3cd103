// Package idam implements the simulator's grant flows on top of the
// identity record store and the token issuer, together with the HTTP
// handlers that expose them.
//
// A record moves through pin issuance, authorization code assignment, and
// token issuance; tokenized records can re-enter token issuance any number
// of times, and pre-seeded records may skip the pin step entirely.
package idam

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/getmockd/idamsim/internal/id"
	"github.com/getmockd/idamsim/internal/store"
	"github.com/getmockd/idamsim/pkg/logging"
)

// ErrUnauthenticated indicates a bearer token that does not resolve to any
// identity record.
var ErrUnauthenticated = errors.New("bearer token does not resolve to an identity")

// Issuer is the token issuance surface the flows depend on.
// *token.Issuer implements it.
type Issuer interface {
	// Issue mints a fresh token for the triple and records it on the user.
	Issue(username, clientID, grantType string) (string, error)

	// IssueCached returns the still-valid token previously issued for the
	// triple, minting one only when the cache misses.
	IssueCached(username, clientID, grantType string) (string, error)

	// IssueID mints an ID token carrying the user's profile claims.
	IssueID(username, clientID string) (string, error)

	// IssueRefresh mints an opaque refresh token.
	IssueRefresh() string

	// IssueCode assigns a fresh authorization code to an existing identity.
	IssueCode(username string) (string, error)

	// ExchangeCode redeems a single-use authorization code for tokens.
	ExchangeCode(code, clientID, redirectURI string) (store.TokenSet, error)

	// UpdateTokenInUser records a token on the identity resolved by username.
	UpdateTokenInUser(username, token string) error

	// TokenExpiry is the access token validity window.
	TokenExpiry() time.Duration

	// CodeExpiry is the pin and authorization code validity window.
	CodeExpiry() time.Duration
}

// Service is the protocol flow controller.
type Service struct {
	store  store.Store
	issuer Issuer
	log    *slog.Logger
}

// NewService creates a Service. A nil logger disables logging.
func NewService(st store.Store, issuer Issuer, log *slog.Logger) *Service {
	if log == nil {
		log = logging.Nop()
	}
	return &Service{store: st, issuer: issuer, log: log}
}

// CreatePin runs the pin flow: it creates a fresh identity record holding
// the submitted attributes and a generated pin. Every call creates a new
// record; existing identities are never looked up.
func (s *Service) CreatePin(firstName, lastName string, roles []string) (PinResponse, error) {
	now := time.Now()
	rec := &store.IdentityRecord{
		UserID:       id.NewUserID(),
		Forename:     firstName,
		Surname:      lastName,
		Roles:        roles,
		Pin:          id.NewPin(),
		PinIssuedAt:  now,
		PinExpiresAt: now.Add(s.issuer.CodeExpiry()),
	}
	if err := s.store.Put(rec); err != nil {
		return PinResponse{}, fmt.Errorf("failed to store pin identity: %w", err)
	}
	s.log.Info("pin issued", "user_id", rec.UserID)
	return PinResponse{Pin: rec.Pin, UserID: rec.UserID}, nil
}

// Authorize runs the authorization redirect flow: it locates the identity by
// pin (creating a minimal one when the pin is absent or unknown), assigns an
// authorization code, and returns the redirect target carrying the code and
// the caller's state. No token is issued at this stage.
func (s *Service) Authorize(pin, clientID, redirectURI, state string) (string, error) {
	rec, ok := s.store.GetByPin(pin)
	if !ok {
		rec = &store.IdentityRecord{UserID: id.NewUserID()}
		if err := s.store.Put(rec); err != nil {
			return "", fmt.Errorf("failed to create identity: %w", err)
		}
	}

	code, err := s.issuer.IssueCode(rec.UserID)
	if err != nil {
		return "", err
	}

	target, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid redirect_uri: %w", err)
	}
	q := target.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	target.RawQuery = q.Encode()

	s.log.Info("authorization code issued", "user_id", rec.UserID, "client_id", clientID)
	return target.String(), nil
}

// LegacyAuthorize runs the legacy combined grant: it resolves the identity
// strictly by email and assigns an authorization code through the issuer's
// username-keyed path. It never creates a record.
func (s *Service) LegacyAuthorize(email string) (string, error) {
	if _, ok := s.store.GetByEmail(email); !ok {
		return "", fmt.Errorf("%w: no identity for email %q", store.ErrNotFound, email)
	}
	code, err := s.issuer.IssueCode(email)
	if err != nil {
		return "", err
	}
	s.log.Info("legacy authorization code issued", "email", email)
	return code, nil
}

// Exchange runs the authorization-code grant: the code is redeemed once and
// exchanged for a full token set.
func (s *Service) Exchange(code, clientID, redirectURI string) (TokenResponse, error) {
	tokens, err := s.issuer.ExchangeCode(code, clientID, redirectURI)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		AccessToken:  tokens.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.expiresIn(),
		IDToken:      tokens.IDToken,
		RefreshToken: tokens.RefreshToken,
	}, nil
}

// OpenIDToken runs the resource-owner grant posted to /o/token: one Issue
// call refreshes the user-bound token state, one IssueCached call produces
// the response token, and one UpdateTokenInUser call records it.
func (s *Service) OpenIDToken(username, clientID, grantType, scope string) (TokenResponse, error) {
	rec, ok := s.lookupUsername(username)
	if !ok {
		return TokenResponse{}, fmt.Errorf("%w: no identity for username %q", store.ErrNotFound, username)
	}

	if _, err := s.issuer.Issue(username, clientID, grantType); err != nil {
		return TokenResponse{}, err
	}
	access, err := s.issuer.IssueCached(username, clientID, grantType)
	if err != nil {
		return TokenResponse{}, err
	}
	idToken, err := s.issuer.IssueID(username, clientID)
	if err != nil {
		return TokenResponse{}, err
	}
	refresh := s.issuer.IssueRefresh()

	now := time.Now()
	err = s.store.AttachTokens(rec.UserID, store.TokenSet{
		AccessToken:  access,
		IDToken:      idToken,
		RefreshToken: refresh,
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.issuer.TokenExpiry()),
	})
	if err != nil {
		return TokenResponse{}, err
	}
	if err := s.issuer.UpdateTokenInUser(username, access); err != nil {
		return TokenResponse{}, err
	}

	s.log.Info("token issued", "username", username, "client_id", clientID, "grant_type", grantType)
	return TokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    s.expiresIn(),
		IDToken:      idToken,
		RefreshToken: refresh,
		Scope:        scope,
	}, nil
}

// UserInfoForToken resolves the bearer token to its record's OIDC userinfo.
func (s *Service) UserInfoForToken(token string) (UserInfo, error) {
	rec, ok := s.store.GetByToken(token)
	if !ok {
		return UserInfo{}, ErrUnauthenticated
	}
	return UserInfo{
		UID:        rec.UserID,
		Email:      rec.Email,
		GivenName:  rec.Forename,
		FamilyName: rec.Surname,
		Sub:        rec.Email,
		Roles:      rec.Roles,
	}, nil
}

// DetailsForToken resolves the bearer token to its record's details.
func (s *Service) DetailsForToken(token string) (UserDetails, error) {
	rec, ok := s.store.GetByToken(token)
	if !ok {
		return UserDetails{}, ErrUnauthenticated
	}
	return details(rec), nil
}

// Authenticate reports whether the bearer token resolves to a record.
func (s *Service) Authenticate(token string) bool {
	_, ok := s.store.GetByToken(token)
	return ok
}

// UserByID returns the details of the record with the given userId.
func (s *Service) UserByID(userID string) (UserDetails, error) {
	rec, ok := s.store.GetByUserID(userID)
	if !ok {
		return UserDetails{}, fmt.Errorf("%w: no identity for userId %q", store.ErrNotFound, userID)
	}
	return details(rec), nil
}

// SearchUsers runs a directory query. A miss is an empty result set.
func (s *Service) SearchUsers(query string) []UserDetails {
	recs := s.store.Search(query)
	result := make([]UserDetails, 0, len(recs))
	for _, rec := range recs {
		result = append(result, details(rec))
	}
	return result
}

// AccountByEmail returns the details of the record with the given email.
func (s *Service) AccountByEmail(email string) (UserDetails, error) {
	rec, ok := s.store.GetByEmail(email)
	if !ok {
		return UserDetails{}, fmt.Errorf("%w: no identity for email %q", store.ErrNotFound, email)
	}
	return details(rec), nil
}

// SeedAccount creates a record from explicit test data. A duplicate email
// fails with store.ErrConflict.
func (s *Service) SeedAccount(req AccountRequest) (UserDetails, error) {
	rec := &store.IdentityRecord{
		UserID:   id.NewUserID(),
		Email:    req.Email,
		Forename: req.Forename,
		Surname:  req.Surname,
		Roles:    req.Roles,
	}
	if err := s.store.Put(rec); err != nil {
		return UserDetails{}, err
	}
	s.log.Info("account seeded", "user_id", rec.UserID, "email", rec.Email)
	return details(rec), nil
}

// Reset clears all simulator state. Exposed to test-support callers only.
func (s *Service) Reset() {
	s.store.Clear()
	s.log.Info("simulator state reset")
}

func (s *Service) lookupUsername(username string) (*store.IdentityRecord, bool) {
	if rec, ok := s.store.GetByEmail(username); ok {
		return rec, true
	}
	return s.store.GetByUserID(username)
}

func (s *Service) expiresIn() string {
	return strconv.Itoa(int(s.issuer.TokenExpiry().Seconds()))
}

func details(rec *store.IdentityRecord) UserDetails {
	return UserDetails{
		ID:       rec.UserID,
		Email:    rec.Email,
		Forename: rec.Forename,
		Surname:  rec.Surname,
		Roles:    rec.Roles,
	}
}
