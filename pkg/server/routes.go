package server

import (
	"net/http"
	"time"

	"github.com/getmockd/idamsim/pkg/httputil"
)

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health
	mux.HandleFunc("GET /health", s.handleHealth)

	// Pin flow
	mux.HandleFunc("POST /pin", s.handler.HandlePin)
	mux.HandleFunc("GET /pin", s.handler.HandleAuthorize)

	// Legacy OAuth2 endpoints
	mux.HandleFunc("POST /oauth2/authorize", s.handler.HandleLegacyAuthorize)
	mux.HandleFunc("POST /oauth2/token", s.handler.HandleToken)

	// OpenID Connect endpoints
	mux.HandleFunc("POST /o/token", s.handler.HandleOpenIDToken)
	mux.HandleFunc("GET /o/userinfo", s.handler.HandleUserInfo)
	mux.HandleFunc("GET /o/jwks", s.handleJWKS)
	mux.HandleFunc("GET /o/.well-known/openid-configuration", s.handleDiscovery)

	// User directory
	mux.HandleFunc("GET /details", s.handler.HandleDetails)
	mux.HandleFunc("GET /api/v1/users", s.handler.HandleSearchUsers)
	mux.HandleFunc("GET /api/v1/users/{id}", s.handler.HandleUserByID)

	// Test support
	mux.HandleFunc("GET /testing-support/accounts", s.handler.HandleAccountLookup)
	mux.HandleFunc("POST /testing-support/accounts", s.handler.HandleCreateAccount)
	mux.HandleFunc("DELETE /testing-support/accounts", s.handler.HandleReset)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Duration(0)
	if !s.startedAt.IsZero() {
		uptime = time.Since(s.startedAt)
	}
	httputil.WriteOK(w, map[string]any{
		"status":   "UP",
		"uptime":   uptime.Truncate(time.Second).String(),
		"accounts": s.store.Count(),
	})
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, s.issuer.JWKS())
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, s.issuer.Discovery())
}
