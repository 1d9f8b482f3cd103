// Package token mints and signs the simulator's access, ID, and refresh
// tokens, and performs the single-use authorization code exchange.
//
// Signing uses a simulator-local RSA key generated at startup. Tokens are
// verifiable against the published JWKS but carry no real trust.
package token

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/getmockd/idamsim/internal/id"
	"github.com/getmockd/idamsim/internal/store"
)

// ErrInvalidGrant indicates an authorization code that is unknown, expired,
// or already redeemed, or an identity that cannot be resolved for a grant.
var ErrInvalidGrant = errors.New("invalid grant")

// Config configures the Issuer.
type Config struct {
	// Issuer is the value of the iss claim and the base of the discovery
	// document endpoints.
	Issuer string

	// TokenExpiry is the validity window of access and ID tokens.
	TokenExpiry time.Duration

	// RefreshExpiry is the validity window of refresh tokens.
	RefreshExpiry time.Duration

	// CodeExpiry is the validity window of authorization codes.
	CodeExpiry time.Duration
}

// DefaultConfig returns the issuer defaults.
func DefaultConfig() Config {
	return Config{
		Issuer:        "http://localhost:5556/o",
		TokenExpiry:   8 * time.Hour,
		RefreshExpiry: 7 * 24 * time.Hour,
		CodeExpiry:    10 * time.Minute,
	}
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// Issuer mints signed tokens bound to a (username, clientId, grantType)
// triple and records them on the matching identity record. A token issued
// for a triple is cached for its validity window; the cached path returns it
// unchanged instead of re-minting.
type Issuer struct {
	store      store.Store
	cfg        Config
	privateKey *rsa.PrivateKey
	keyID      string
	log        *slog.Logger

	// cacheMu also serializes minting so concurrent callers of the cached
	// path cannot race a double issuance for the same triple.
	cacheMu sync.Mutex
	cache   map[string]cachedToken
}

// New creates an Issuer with a freshly generated RSA signing key.
func New(st store.Store, cfg Config, log *slog.Logger) (*Issuer, error) {
	if st == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultConfig().Issuer
	}
	if cfg.TokenExpiry <= 0 {
		cfg.TokenExpiry = DefaultConfig().TokenExpiry
	}
	if cfg.RefreshExpiry <= 0 {
		cfg.RefreshExpiry = DefaultConfig().RefreshExpiry
	}
	if cfg.CodeExpiry <= 0 {
		cfg.CodeExpiry = DefaultConfig().CodeExpiry
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	return &Issuer{
		store:      st,
		cfg:        cfg,
		privateKey: privateKey,
		keyID:      uuid.NewString(),
		log:        log,
		cache:      make(map[string]cachedToken),
	}, nil
}

// TokenExpiry returns the access token validity window.
func (i *Issuer) TokenExpiry() time.Duration {
	return i.cfg.TokenExpiry
}

// CodeExpiry returns the authorization code validity window.
func (i *Issuer) CodeExpiry() time.Duration {
	return i.cfg.CodeExpiry
}

// Issue mints a new access token for the triple and records it on the
// identity record resolved by username (email first, then userId).
func (i *Issuer) Issue(username, clientID, grantType string) (string, error) {
	return i.issue(username, clientID, grantType, false)
}

// IssueCached returns the token previously issued for the triple if it is
// still within its validity window; otherwise it mints one like Issue and
// populates the cache.
func (i *Issuer) IssueCached(username, clientID, grantType string) (string, error) {
	return i.issue(username, clientID, grantType, true)
}

// issue is the single issuance path. The cache check is gated by useCache;
// every successful mint refreshes the cache entry for its triple.
func (i *Issuer) issue(username, clientID, grantType string, useCache bool) (string, error) {
	key := username + "|" + clientID + "|" + grantType

	i.cacheMu.Lock()
	defer i.cacheMu.Unlock()

	if useCache {
		if entry, ok := i.cache[key]; ok && time.Now().Before(entry.expiresAt) {
			return entry.token, nil
		}
	}

	rec, err := i.resolve(username)
	if err != nil {
		return "", err
	}

	now := time.Now()
	expiresAt := now.Add(i.cfg.TokenExpiry)
	token, err := i.mintAccessToken(rec, clientID, now, expiresAt)
	if err != nil {
		return "", err
	}

	if err := i.store.SetAccessToken(rec.UserID, token, now, expiresAt); err != nil {
		return "", err
	}
	i.cache[key] = cachedToken{token: token, expiresAt: expiresAt}

	if i.log != nil {
		i.log.Debug("issued access token", "username", username, "client_id", clientID, "grant_type", grantType, "cached", false)
	}
	return token, nil
}

// IssueID mints an ID token carrying the record's profile claims.
func (i *Issuer) IssueID(username, clientID string) (string, error) {
	rec, err := i.resolve(username)
	if err != nil {
		return "", err
	}
	now := time.Now()
	return i.mintIDToken(rec, clientID, now, now.Add(i.cfg.TokenExpiry))
}

// IssueRefresh mints an opaque refresh token.
func (i *Issuer) IssueRefresh() string {
	return id.NewRefreshToken()
}

// IssueCode generates a fresh authorization code for the identity resolved
// by username and assigns it to the record, replacing any unredeemed code.
// It never creates a record.
func (i *Issuer) IssueCode(username string) (string, error) {
	rec, err := i.resolve(username)
	if err != nil {
		return "", err
	}
	code := id.NewAuthCode()
	if err := i.store.AssignAuthCode(rec.UserID, code, time.Now().Add(i.cfg.CodeExpiry)); err != nil {
		return "", err
	}
	return code, nil
}

// ExchangeCode redeems an authorization code for a full token set. The code
// must be the record's current unredeemed code; redemption clears it, so a
// second exchange with the same code fails with ErrInvalidGrant.
func (i *Issuer) ExchangeCode(code, clientID, redirectURI string) (store.TokenSet, error) {
	rec, err := i.store.RedeemAuthCode(code)
	if err != nil {
		return store.TokenSet{}, fmt.Errorf("%w: %s", ErrInvalidGrant, err)
	}

	now := time.Now()
	expiresAt := now.Add(i.cfg.TokenExpiry)

	access, err := i.mintAccessToken(rec, clientID, now, expiresAt)
	if err != nil {
		return store.TokenSet{}, err
	}
	idToken, err := i.mintIDToken(rec, clientID, now, expiresAt)
	if err != nil {
		return store.TokenSet{}, err
	}

	tokens := store.TokenSet{
		AccessToken:  access,
		IDToken:      idToken,
		RefreshToken: id.NewRefreshToken(),
		IssuedAt:     now,
		ExpiresAt:    expiresAt,
	}
	if err := i.store.AttachTokens(rec.UserID, tokens); err != nil {
		return store.TokenSet{}, err
	}

	if i.log != nil {
		i.log.Debug("exchanged authorization code", "user_id", rec.UserID, "client_id", clientID, "redirect_uri", redirectURI)
	}
	return tokens, nil
}

// UpdateTokenInUser records a token on the identity resolved by username.
func (i *Issuer) UpdateTokenInUser(username, token string) error {
	rec, err := i.resolve(username)
	if err != nil {
		return err
	}
	now := time.Now()
	return i.store.SetAccessToken(rec.UserID, token, now, now.Add(i.cfg.TokenExpiry))
}

// resolve locates the identity record for a username, trying email first and
// falling back to userId.
func (i *Issuer) resolve(username string) (*store.IdentityRecord, error) {
	if rec, ok := i.store.GetByEmail(username); ok {
		return rec, nil
	}
	if rec, ok := i.store.GetByUserID(username); ok {
		return rec, nil
	}
	return nil, fmt.Errorf("%w: no identity for username %q", store.ErrNotFound, username)
}

// subject returns the token subject for a record: email when present,
// otherwise the userId.
func subject(rec *store.IdentityRecord) string {
	if rec.Email != "" {
		return rec.Email
	}
	return rec.UserID
}

func (i *Issuer) mintAccessToken(rec *store.IdentityRecord, clientID string, issuedAt, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":       subject(rec),
		"iss":       i.cfg.Issuer,
		"iat":       issuedAt.Unix(),
		"exp":       expiresAt.Unix(),
		"jti":       uuid.NewString(),
		"tokenName": "access_token",
	}
	if clientID != "" {
		claims["aud"] = clientID
	}
	return i.sign(claims)
}

func (i *Issuer) mintIDToken(rec *store.IdentityRecord, clientID string, issuedAt, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":         subject(rec),
		"iss":         i.cfg.Issuer,
		"iat":         issuedAt.Unix(),
		"exp":         expiresAt.Unix(),
		"jti":         uuid.NewString(),
		"tokenName":   "id_token",
		"uid":         rec.UserID,
		"given_name":  rec.Forename,
		"family_name": rec.Surname,
		"roles":       rec.Roles,
	}
	if clientID != "" {
		claims["aud"] = clientID
	}
	return i.sign(claims)
}

func (i *Issuer) sign(claims jwt.MapClaims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = i.keyID
	signed, err := tok.SignedString(i.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// PublicKey returns the verification key for issued tokens.
func (i *Issuer) PublicKey() *rsa.PublicKey {
	return &i.privateKey.PublicKey
}
