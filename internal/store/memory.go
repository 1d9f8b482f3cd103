package store

import (
	"strings"
	"sync"
	"time"
)

// MemoryStore is a thread-safe in-memory implementation of Store. Parallel
// indices by email, pin, authorization code, and token all point back at the
// canonical record keyed by userId; a single mutex covers every index so a
// mutation is visible in full or not at all.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*IdentityRecord // userId -> record
	byEmail map[string]string          // email -> userId
	byPin   map[string]string          // pin -> userId
	byCode  map[string]string          // authorization code -> userId
	byToken map[string]string          // access or id token -> userId
	order   []string                   // userIds in insertion order
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.reset()
	return s
}

func (s *MemoryStore) reset() {
	s.records = make(map[string]*IdentityRecord)
	s.byEmail = make(map[string]string)
	s.byPin = make(map[string]string)
	s.byCode = make(map[string]string)
	s.byToken = make(map[string]string)
	s.order = nil
}

// Put inserts or updates a record keyed by UserID.
func (s *MemoryStore) Put(rec *IdentityRecord) error {
	if rec == nil || rec.UserID == "" {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Email != "" {
		if owner, ok := s.byEmail[rec.Email]; ok && owner != rec.UserID {
			return ErrConflict
		}
	}

	prev, exists := s.records[rec.UserID]
	if exists {
		s.dropIndexes(prev)
	} else {
		s.order = append(s.order, rec.UserID)
	}

	stored := rec.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.records[stored.UserID] = stored
	s.addIndexes(stored)
	return nil
}

// GetByUserID retrieves a record by its stable user identifier.
func (s *MemoryStore) GetByUserID(userID string) (*IdentityRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// GetByEmail retrieves a record by email.
func (s *MemoryStore) GetByEmail(email string) (*IdentityRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(s.byEmail, email)
}

// GetByPin retrieves a record by its unconsumed pin.
func (s *MemoryStore) GetByPin(pin string) (*IdentityRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(s.byPin, pin)
}

// GetByToken retrieves a record by a previously issued access or ID token.
func (s *MemoryStore) GetByToken(token string) (*IdentityRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(s.byToken, token)
}

// GetByAuthCode retrieves a record by its unredeemed authorization code.
func (s *MemoryStore) GetByAuthCode(code string) (*IdentityRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(s.byCode, code)
}

func (s *MemoryStore) lookupLocked(index map[string]string, key string) (*IdentityRecord, bool) {
	if key == "" {
		return nil, false
	}
	userID, ok := index[key]
	if !ok {
		return nil, false
	}
	return s.records[userID].Clone(), true
}

// Search matches a query string against roles, email, forename, and surname.
// Results are returned in insertion order.
func (s *MemoryStore) Search(query string) []*IdentityRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	result := make([]*IdentityRecord, 0, len(s.order))
	for _, userID := range s.order {
		rec := s.records[userID]
		if q == "" || matches(rec, q) {
			result = append(result, rec.Clone())
		}
	}
	return result
}

func matches(rec *IdentityRecord, q string) bool {
	if strings.Contains(strings.ToLower(rec.Email), q) ||
		strings.Contains(strings.ToLower(rec.Forename), q) ||
		strings.Contains(strings.ToLower(rec.Surname), q) {
		return true
	}
	for _, role := range rec.Roles {
		if strings.Contains(strings.ToLower(role), q) {
			return true
		}
	}
	return false
}

// AssignAuthCode sets the record's authorization code. Any previously
// assigned unredeemed code becomes invalid and the pin, if set, is consumed.
func (s *MemoryStore) AssignAuthCode(userID, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		return ErrNotFound
	}

	if rec.AuthCode != "" {
		delete(s.byCode, rec.AuthCode)
	}
	if rec.Pin != "" {
		delete(s.byPin, rec.Pin)
		rec.Pin = ""
	}

	now := time.Now()
	rec.AuthCode = code
	rec.AuthCodeIssuedAt = now
	rec.AuthCodeExpiresAt = expiresAt
	s.byCode[code] = userID
	return nil
}

// RedeemAuthCode atomically checks and clears an authorization code. The
// check-then-clear sequence runs under the write lock so exactly one of any
// set of racing redeemers succeeds.
func (s *MemoryStore) RedeemAuthCode(code string) (*IdentityRecord, error) {
	if code == "" {
		return nil, ErrInvalidCode
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.byCode[code]
	if !ok {
		return nil, ErrInvalidCode
	}
	rec := s.records[userID]

	delete(s.byCode, code)
	rec.AuthCode = ""

	if !rec.AuthCodeExpiresAt.IsZero() && time.Now().After(rec.AuthCodeExpiresAt) {
		return nil, ErrInvalidCode
	}
	return rec.Clone(), nil
}

// AttachTokens records a freshly minted token set on the record.
func (s *MemoryStore) AttachTokens(userID string, tokens TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		return ErrNotFound
	}

	s.dropTokenIndexes(rec)
	rec.AccessToken = tokens.AccessToken
	rec.IDToken = tokens.IDToken
	rec.RefreshToken = tokens.RefreshToken
	rec.TokenIssuedAt = tokens.IssuedAt
	rec.TokenExpiresAt = tokens.ExpiresAt
	s.addTokenIndexes(rec)
	return nil
}

// SetAccessToken updates only the record's access token.
func (s *MemoryStore) SetAccessToken(userID, token string, issuedAt, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		return ErrNotFound
	}

	if rec.AccessToken != "" {
		delete(s.byToken, rec.AccessToken)
	}
	rec.AccessToken = token
	rec.TokenIssuedAt = issuedAt
	rec.TokenExpiresAt = expiresAt
	if token != "" {
		s.byToken[token] = userID
	}
	return nil
}

// Count returns the number of stored records.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear removes all records and indices.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *MemoryStore) addIndexes(rec *IdentityRecord) {
	if rec.Email != "" {
		s.byEmail[rec.Email] = rec.UserID
	}
	if rec.Pin != "" {
		s.byPin[rec.Pin] = rec.UserID
	}
	if rec.AuthCode != "" {
		s.byCode[rec.AuthCode] = rec.UserID
	}
	s.addTokenIndexes(rec)
}

func (s *MemoryStore) addTokenIndexes(rec *IdentityRecord) {
	if rec.AccessToken != "" {
		s.byToken[rec.AccessToken] = rec.UserID
	}
	if rec.IDToken != "" {
		s.byToken[rec.IDToken] = rec.UserID
	}
}

func (s *MemoryStore) dropIndexes(rec *IdentityRecord) {
	delete(s.byEmail, rec.Email)
	delete(s.byPin, rec.Pin)
	delete(s.byCode, rec.AuthCode)
	s.dropTokenIndexes(rec)
}

func (s *MemoryStore) dropTokenIndexes(rec *IdentityRecord) {
	delete(s.byToken, rec.AccessToken)
	delete(s.byToken, rec.IDToken)
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
