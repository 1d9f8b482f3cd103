package idam

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/getmockd/idamsim/internal/store"
)

// fakeIssuer counts calls so the flow tests can assert exactly which
// issuance paths each grant takes.
type fakeIssuer struct {
	issueCalls       int
	cachedCalls      int
	idCalls          int
	refreshCalls     int
	codeCalls        int
	exchangeCalls    int
	updateCalls      int
	lastUpdatedToken string

	exchangeErr error
	codeErr     error
}

func (f *fakeIssuer) Issue(username, clientID, grantType string) (string, error) {
	f.issueCalls++
	return fmt.Sprintf("access-%d", f.issueCalls), nil
}

func (f *fakeIssuer) IssueCached(username, clientID, grantType string) (string, error) {
	f.cachedCalls++
	return "cached-access", nil
}

func (f *fakeIssuer) IssueID(username, clientID string) (string, error) {
	f.idCalls++
	return "id-token", nil
}

func (f *fakeIssuer) IssueRefresh() string {
	f.refreshCalls++
	return "refresh-token"
}

func (f *fakeIssuer) IssueCode(username string) (string, error) {
	f.codeCalls++
	if f.codeErr != nil {
		return "", f.codeErr
	}
	return "auth-code", nil
}

func (f *fakeIssuer) ExchangeCode(code, clientID, redirectURI string) (store.TokenSet, error) {
	f.exchangeCalls++
	if f.exchangeErr != nil {
		return store.TokenSet{}, f.exchangeErr
	}
	return store.TokenSet{
		AccessToken:  "exchanged-access",
		IDToken:      "exchanged-id",
		RefreshToken: "exchanged-refresh",
	}, nil
}

func (f *fakeIssuer) UpdateTokenInUser(username, token string) error {
	f.updateCalls++
	f.lastUpdatedToken = token
	return nil
}

func (f *fakeIssuer) TokenExpiry() time.Duration { return 8 * time.Hour }
func (f *fakeIssuer) CodeExpiry() time.Duration  { return 10 * time.Minute }

// countingStore wraps a Store and counts writes so flows that must not
// create records can be verified.
type countingStore struct {
	store.Store
	putCalls int
}

func (c *countingStore) Put(rec *store.IdentityRecord) error {
	c.putCalls++
	return c.Store.Put(rec)
}

func newTestService(t *testing.T) (*Service, *countingStore, *fakeIssuer) {
	t.Helper()
	st := &countingStore{Store: store.NewMemoryStore()}
	iss := &fakeIssuer{}
	return NewService(st, iss, nil), st, iss
}

func seedUser(t *testing.T, st store.Store) *store.IdentityRecord {
	t.Helper()
	rec := &store.IdentityRecord{
		UserID:   "user-1",
		Email:    "test-email@hmcts.net",
		Forename: "John",
		Surname:  "Smith",
		Roles:    []string{"role1", "role2"},
	}
	if err := st.Put(rec); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return rec
}

func TestCreatePin(t *testing.T) {
	svc, st, _ := newTestService(t)

	resp, err := svc.CreatePin("Jane", "Doe", []string{"role1", "role2"})
	if err != nil {
		t.Fatalf("CreatePin: %v", err)
	}
	if len(resp.Pin) != 16 {
		t.Errorf("pin length = %d, want 16", len(resp.Pin))
	}
	if resp.UserID == "" {
		t.Error("userId is empty")
	}

	rec, ok := st.GetByPin(resp.Pin)
	if !ok {
		t.Fatal("record not reachable by pin")
	}
	if rec.Forename != "Jane" || rec.Surname != "Doe" {
		t.Errorf("record name = %s %s, want Jane Doe", rec.Forename, rec.Surname)
	}

	byID, ok := st.GetByUserID(resp.UserID)
	if !ok {
		t.Fatal("record not reachable by userId")
	}
	if strings.Join(byID.Roles, ",") != "role1,role2" {
		t.Errorf("roles = %v, want submitted order [role1 role2]", byID.Roles)
	}

	again, err := svc.CreatePin("Jane", "Doe", nil)
	if err != nil {
		t.Fatalf("second CreatePin: %v", err)
	}
	if again.UserID == resp.UserID {
		t.Error("second pin reused the first record")
	}
}

func TestAuthorize(t *testing.T) {
	t.Run("known pin redirects with code and state", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		resp, err := svc.CreatePin("Jane", "Doe", nil)
		if err != nil {
			t.Fatalf("CreatePin: %v", err)
		}
		puts := st.putCalls

		target, err := svc.Authorize(resp.Pin, "client", "http://localhost/redirect", "state-123")
		if err != nil {
			t.Fatalf("Authorize: %v", err)
		}
		u, err := url.Parse(target)
		if err != nil {
			t.Fatalf("parse redirect: %v", err)
		}
		if u.Query().Get("code") != "auth-code" {
			t.Errorf("code = %q, want auth-code", u.Query().Get("code"))
		}
		if u.Query().Get("state") != "state-123" {
			t.Errorf("state = %q, want state-123", u.Query().Get("state"))
		}
		if st.putCalls != puts {
			t.Errorf("known pin caused %d extra puts", st.putCalls-puts)
		}
	})

	t.Run("unknown pin creates a minimal record", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		if _, err := svc.Authorize("no-such-pin", "client", "http://localhost/redirect", ""); err != nil {
			t.Fatalf("Authorize: %v", err)
		}
		if st.putCalls != 1 {
			t.Errorf("putCalls = %d, want 1", st.putCalls)
		}
	})
}

func TestLegacyAuthorize(t *testing.T) {
	t.Run("resolves strictly by email", func(t *testing.T) {
		svc, st, iss := newTestService(t)
		seedUser(t, st)

		code, err := svc.LegacyAuthorize("test-email@hmcts.net")
		if err != nil {
			t.Fatalf("LegacyAuthorize: %v", err)
		}
		if code != "auth-code" {
			t.Errorf("code = %q, want auth-code", code)
		}
		if iss.codeCalls != 1 {
			t.Errorf("codeCalls = %d, want 1", iss.codeCalls)
		}
		if st.putCalls != 1 { // the seed only
			t.Errorf("putCalls = %d, want 1", st.putCalls)
		}
	})

	t.Run("unknown email fails without side effects", func(t *testing.T) {
		svc, st, iss := newTestService(t)
		_, err := svc.LegacyAuthorize("nobody@hmcts.net")
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
		if iss.codeCalls != 0 || st.putCalls != 0 {
			t.Errorf("side effects: codeCalls=%d putCalls=%d", iss.codeCalls, st.putCalls)
		}
	})
}

func TestExchange(t *testing.T) {
	svc, _, iss := newTestService(t)

	resp, err := svc.Exchange("auth-code", "client", "http://localhost/redirect")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if resp.AccessToken != "exchanged-access" || resp.IDToken != "exchanged-id" || resp.RefreshToken != "exchanged-refresh" {
		t.Errorf("unexpected token set: %+v", resp)
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want Bearer", resp.TokenType)
	}
	if resp.ExpiresIn != "28800" {
		t.Errorf("expires_in = %q, want 28800", resp.ExpiresIn)
	}

	iss.exchangeErr = errors.New("code already redeemed")
	if _, err := svc.Exchange("auth-code", "client", "http://localhost/redirect"); err == nil {
		t.Error("second exchange succeeded, want error")
	}
}

func TestOpenIDToken(t *testing.T) {
	t.Run("combined grant issuance sequence", func(t *testing.T) {
		svc, st, iss := newTestService(t)
		seedUser(t, st)

		resp, err := svc.OpenIDToken("test-email@hmcts.net", "client", "password", "openid profile roles")
		if err != nil {
			t.Fatalf("OpenIDToken: %v", err)
		}

		if iss.issueCalls != 1 {
			t.Errorf("issueCalls = %d, want 1", iss.issueCalls)
		}
		if iss.cachedCalls != 1 {
			t.Errorf("cachedCalls = %d, want 1", iss.cachedCalls)
		}
		if iss.updateCalls != 1 {
			t.Errorf("updateCalls = %d, want 1", iss.updateCalls)
		}
		if iss.lastUpdatedToken != resp.AccessToken {
			t.Errorf("updated token %q does not match response token %q", iss.lastUpdatedToken, resp.AccessToken)
		}

		if resp.AccessToken != "cached-access" {
			t.Errorf("access_token = %q, want the cached issuance", resp.AccessToken)
		}
		if resp.TokenType != "Bearer" {
			t.Errorf("token_type = %q, want Bearer", resp.TokenType)
		}
		if resp.Scope != "openid profile roles" {
			t.Errorf("scope = %q, want echo of request scope", resp.Scope)
		}
		if resp.ExpiresIn != "28800" {
			t.Errorf("expires_in = %q, want 28800", resp.ExpiresIn)
		}

		rec, ok := st.GetByToken(resp.AccessToken)
		if !ok {
			t.Fatal("access token not resolvable after grant")
		}
		if rec.UserID != "user-1" {
			t.Errorf("token resolved to %q, want user-1", rec.UserID)
		}
	})

	t.Run("userId works as username", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		seedUser(t, st)
		if _, err := svc.OpenIDToken("user-1", "client", "password", ""); err != nil {
			t.Fatalf("OpenIDToken by userId: %v", err)
		}
	})

	t.Run("unknown username", func(t *testing.T) {
		svc, _, iss := newTestService(t)
		_, err := svc.OpenIDToken("nobody@hmcts.net", "client", "password", "")
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
		if iss.issueCalls != 0 || iss.cachedCalls != 0 {
			t.Error("issuance attempted for unknown username")
		}
	})
}

func TestUserInfoForToken(t *testing.T) {
	svc, st, _ := newTestService(t)
	rec := seedUser(t, st)
	if err := st.AttachTokens(rec.UserID, store.TokenSet{
		AccessToken: "bearer-1",
		IssuedAt:    time.Now(),
		ExpiresAt:   time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("AttachTokens: %v", err)
	}

	info, err := svc.UserInfoForToken("bearer-1")
	if err != nil {
		t.Fatalf("UserInfoForToken: %v", err)
	}
	if info.Sub != "test-email@hmcts.net" {
		t.Errorf("sub = %q, want the email", info.Sub)
	}
	if info.UID != "user-1" || info.GivenName != "John" || info.FamilyName != "Smith" {
		t.Errorf("unexpected userinfo: %+v", info)
	}
	if strings.Join(info.Roles, ",") != "role1,role2" {
		t.Errorf("roles = %v, want [role1 role2]", info.Roles)
	}

	if _, err := svc.UserInfoForToken("unknown"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestDirectoryLookups(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedUser(t, st)

	t.Run("by id", func(t *testing.T) {
		det, err := svc.UserByID("user-1")
		if err != nil {
			t.Fatalf("UserByID: %v", err)
		}
		if det.Email != "test-email@hmcts.net" {
			t.Errorf("email = %q", det.Email)
		}
		if _, err := svc.UserByID("missing"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("by email", func(t *testing.T) {
		det, err := svc.AccountByEmail("test-email@hmcts.net")
		if err != nil {
			t.Fatalf("AccountByEmail: %v", err)
		}
		if det.ID != "user-1" {
			t.Errorf("id = %q", det.ID)
		}
	})

	t.Run("search", func(t *testing.T) {
		hits := svc.SearchUsers("Smith")
		if len(hits) != 1 || hits[0].ID != "user-1" {
			t.Errorf("hits = %+v, want the seeded user", hits)
		}
		if misses := svc.SearchUsers("nobody"); len(misses) != 0 {
			t.Errorf("misses = %+v, want empty", misses)
		}
	})
}

func TestSeedAccount(t *testing.T) {
	svc, _, _ := newTestService(t)

	det, err := svc.SeedAccount(AccountRequest{
		Email:    "seed@hmcts.net",
		Forename: "Seed",
		Surname:  "User",
		Roles:    []string{"caseworker"},
	})
	if err != nil {
		t.Fatalf("SeedAccount: %v", err)
	}
	if det.ID == "" {
		t.Error("seeded account has no id")
	}

	_, err = svc.SeedAccount(AccountRequest{Email: "seed@hmcts.net"})
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestReset(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedUser(t, st)
	svc.Reset()
	if st.Count() != 0 {
		t.Errorf("Count = %d after reset, want 0", st.Count())
	}
}
