package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/getmockd/idamsim/pkg/config"
	"github.com/getmockd/idamsim/pkg/token"
)

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	s, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "UP" {
		t.Errorf("status = %q, want UP", body.Status)
	}
}

func TestDiscoveryAndJWKS(t *testing.T) {
	cfg := config.Default()
	cfg.Issuer = "http://idam.local/o"
	srv := newTestServer(t, cfg)

	resp, err := http.Get(srv.URL + "/o/.well-known/openid-configuration")
	if err != nil {
		t.Fatalf("GET discovery: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("discovery status = %d, want 200", resp.StatusCode)
	}
	var disc token.OpenIDConfiguration
	if err := json.NewDecoder(resp.Body).Decode(&disc); err != nil {
		t.Fatalf("decode discovery: %v", err)
	}
	resp.Body.Close()
	if disc.Issuer != "http://idam.local/o" {
		t.Errorf("issuer = %q", disc.Issuer)
	}
	if disc.JwksURI != "http://idam.local/o/jwks" {
		t.Errorf("jwks_uri = %q", disc.JwksURI)
	}

	resp, err = http.Get(srv.URL + "/o/jwks")
	if err != nil {
		t.Fatalf("GET jwks: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("jwks status = %d, want 200", resp.StatusCode)
	}
	var jwks token.JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		t.Fatalf("decode jwks: %v", err)
	}
	if len(jwks.Keys) != 1 {
		t.Fatalf("keys = %d, want 1", len(jwks.Keys))
	}
	key := jwks.Keys[0]
	if key.Kty != "RSA" || key.Alg != "RS256" || key.Use != "sig" {
		t.Errorf("unexpected key parameters: %+v", key)
	}
}

func TestSeededAccounts(t *testing.T) {
	cfg := config.Default()
	cfg.Accounts = []config.AccountConfig{
		{Email: "seed@hmcts.net", Forename: "Seed", Surname: "User", Roles: []string{"citizen"}},
	}
	srv := newTestServer(t, cfg)

	// Seeded accounts authenticate through the combined grant immediately.
	form := url.Values{
		"username":   {"seed@hmcts.net"},
		"password":   {"Password123"},
		"client_id":  {"test-client"},
		"grant_type": {"password"},
	}
	resp, err := http.Post(srv.URL+"/o/token", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("POST /o/token: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		t.Fatalf("decode: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/o/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	uiResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /o/userinfo: %v", err)
	}
	defer uiResp.Body.Close()
	var info struct {
		Sub   string   `json:"sub"`
		Roles []string `json:"roles"`
	}
	if err := json.NewDecoder(uiResp.Body).Decode(&info); err != nil {
		t.Fatalf("decode userinfo: %v", err)
	}
	if info.Sub != "seed@hmcts.net" {
		t.Errorf("sub = %q, want the seeded email", info.Sub)
	}
	if len(info.Roles) != 1 || info.Roles[0] != "citizen" {
		t.Errorf("roles = %v, want [citizen]", info.Roles)
	}
}

func TestSeedConflict(t *testing.T) {
	cfg := config.Default()
	cfg.Accounts = []config.AccountConfig{
		{Email: "dup@hmcts.net"},
		{Email: "dup@hmcts.net"},
	}
	if _, err := New(cfg, nil); err == nil {
		t.Error("New succeeded with duplicate seeded emails, want error")
	}
}
