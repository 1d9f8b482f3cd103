// Package server wires the simulator's store, token issuer, and HTTP
// handlers into a single listening server.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getmockd/idamsim/internal/id"
	"github.com/getmockd/idamsim/internal/store"
	"github.com/getmockd/idamsim/pkg/config"
	"github.com/getmockd/idamsim/pkg/idam"
	"github.com/getmockd/idamsim/pkg/logging"
	"github.com/getmockd/idamsim/pkg/token"
)

// Server is the simulator HTTP server.
type Server struct {
	cfg        *config.Config
	store      store.Store
	issuer     *token.Issuer
	service    *idam.Service
	handler    *idam.Handler
	httpServer *http.Server
	log        *slog.Logger
	startedAt  time.Time
}

// New builds a Server from the configuration. Accounts listed in the
// configuration are seeded into the store before the server starts.
func New(cfg *config.Config, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = logging.Nop()
	}

	st := store.NewMemoryStore()
	iss, err := token.New(st, token.Config{
		Issuer:        cfg.IssuerURL(),
		TokenExpiry:   cfg.TokenExpiryDuration(),
		RefreshExpiry: cfg.RefreshExpiryDuration(),
		CodeExpiry:    cfg.CodeExpiryDuration(),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}

	svc := idam.NewService(st, iss, log)
	s := &Server{
		cfg:     cfg,
		store:   st,
		issuer:  iss,
		service: svc,
		handler: idam.NewHandler(svc, log),
		log:     log,
	}

	if err := s.seedAccounts(); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withLogging(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

// Start begins serving. It blocks until the listener fails or Stop is
// called.
func (s *Server) Start() error {
	s.startedAt = time.Now()
	s.log.Info("starting identity simulator", "port", s.cfg.Port, "issuer", s.cfg.IssuerURL())
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping identity simulator")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the fully routed HTTP handler, for tests that drive the
// server without a listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Service returns the flow controller, for embedding callers.
func (s *Server) Service() *idam.Service {
	return s.service
}

func (s *Server) seedAccounts() error {
	for _, acct := range s.cfg.Accounts {
		rec := &store.IdentityRecord{
			UserID:   id.NewUserID(),
			Email:    acct.Email,
			Forename: acct.Forename,
			Surname:  acct.Surname,
			Roles:    acct.Roles,
		}
		if err := s.store.Put(rec); err != nil {
			return fmt.Errorf("failed to seed account %q: %w", acct.Email, err)
		}
		s.log.Info("account seeded", "email", acct.Email, "user_id", rec.UserID)
	}
	return nil
}

func (s *Server) withLogging(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		handler.ServeHTTP(w, r)
		s.log.Debug("request handled", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
