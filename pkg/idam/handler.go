package idam

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getmockd/idamsim/internal/store"
	"github.com/getmockd/idamsim/pkg/httputil"
	"github.com/getmockd/idamsim/pkg/logging"
)

// Handler exposes the grant flows over HTTP. Exact status codes and field
// names are part of the simulator's contract with the services under test.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler creates a Handler. A nil logger disables logging.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{svc: svc, log: log}
}

// HandlePin handles POST /pin.
func (h *Handler) HandlePin(w http.ResponseWriter, r *http.Request) {
	if _, ok := bearerToken(r); !ok {
		httputil.WriteUnauthorized(w, ErrCodeUnauthorized, "missing bearer token")
		return
	}

	var req PinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.FirstName == "" || req.LastName == "" {
		httputil.WriteBadRequest(w, ErrCodeInvalidRequest, "firstName and lastName are required")
		return
	}

	resp, err := h.svc.CreatePin(req.FirstName, req.LastName, req.Roles)
	if err != nil {
		httputil.WriteInternalError(w, ErrCodeServerError, err.Error())
		return
	}
	httputil.WriteOK(w, resp)
}

// HandleAuthorize handles GET /pin, the authorization redirect flow. The pin
// arrives in the pin header; the response is a 302 whose Location carries
// the authorization code and the caller's state.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	clientID := params.Get("client_id")
	redirectURI := params.Get("redirect_uri")
	state := params.Get("state")

	if clientID == "" || redirectURI == "" {
		httputil.WriteBadRequest(w, ErrCodeInvalidRequest, "client_id and redirect_uri are required")
		return
	}

	target, err := h.svc.Authorize(r.Header.Get("pin"), clientID, redirectURI, state)
	if err != nil {
		httputil.WriteBadRequest(w, ErrCodeInvalidRequest, err.Error())
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleLegacyAuthorize handles POST /oauth2/authorize, the legacy combined
// grant: the basic-auth username is the email of an existing identity, and
// the response carries the authorization code directly instead of a
// redirect.
func (h *Handler) HandleLegacyAuthorize(w http.ResponseWriter, r *http.Request) {
	email, _, ok := r.BasicAuth()
	if !ok {
		httputil.WriteUnauthorized(w, ErrCodeUnauthorized, "basic authentication required")
		return
	}
	if err := r.ParseForm(); err != nil {
		httputil.WriteBadRequest(w, ErrCodeInvalidRequest, "failed to parse form")
		return
	}
	if r.FormValue("redirect_uri") == "" || r.FormValue("client_id") == "" {
		httputil.WriteBadRequest(w, ErrCodeInvalidRequest, "client_id and redirect_uri are required")
		return
	}
	if rt := r.FormValue("response_type"); rt != "code" {
		httputil.WriteBadRequest(w, ErrCodeInvalidRequest, "response_type must be code")
		return
	}

	code, err := h.svc.LegacyAuthorize(email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteNotFound(w, ErrCodeNotFound, "no account for the authenticated email")
			return
		}
		httputil.WriteInternalError(w, ErrCodeServerError, err.Error())
		return
	}
	httputil.WriteOK(w, CodeResponse{Code: code})
}

// HandleToken handles POST /oauth2/token, the authorization-code grant.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.WriteBadRequest(w, ErrCodeInvalidRequest, "failed to parse form")
		return
	}

	if gt := r.FormValue("grant_type"); gt != GrantTypeAuthorizationCode {
		httputil.WriteBadRequest(w, ErrCodeUnsupportedGrantType, "grant_type must be authorization_code")
		return
	}
	code := r.FormValue("code")
	if code == "" {
		httputil.WriteBadRequest(w, ErrCodeInvalidRequest, "code is required")
		return
	}

	clientID, _, ok := r.BasicAuth()
	if !ok {
		clientID = r.FormValue("client_id")
	}

	resp, err := h.svc.Exchange(code, clientID, r.FormValue("redirect_uri"))
	if err != nil {
		httputil.WriteBadRequest(w, ErrCodeInvalidGrant, err.Error())
		return
	}
	httputil.WriteOK(w, resp)
}

// HandleOpenIDToken handles POST /o/token, the combined resource-owner
// grant. The scope is echoed back and the token_type is always Bearer.
func (h *Handler) HandleOpenIDToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.WriteBadRequest(w, ErrCodeInvalidRequest, "failed to parse form")
		return
	}

	username := r.FormValue("username")
	clientID := r.FormValue("client_id")
	grantType := r.FormValue("grant_type")
	if username == "" || r.FormValue("password") == "" || clientID == "" || grantType == "" {
		httputil.WriteBadRequest(w, ErrCodeInvalidRequest, "username, password, client_id and grant_type are required")
		return
	}

	resp, err := h.svc.OpenIDToken(username, clientID, grantType, r.FormValue("scope"))
	if err != nil {
		httputil.WriteBadRequest(w, ErrCodeInvalidGrant, err.Error())
		return
	}
	httputil.WriteOK(w, resp)
}

// HandleUserInfo handles GET /o/userinfo.
func (h *Handler) HandleUserInfo(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		httputil.WriteUnauthorized(w, ErrCodeUnauthorized, "missing bearer token")
		return
	}
	info, err := h.svc.UserInfoForToken(token)
	if err != nil {
		httputil.WriteUnauthorized(w, ErrCodeUnauthorized, "bearer token is not recognised")
		return
	}
	httputil.WriteOK(w, info)
}

// HandleDetails handles GET /details, the self-details lookup.
func (h *Handler) HandleDetails(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		httputil.WriteUnauthorized(w, ErrCodeUnauthorized, "missing bearer token")
		return
	}
	det, err := h.svc.DetailsForToken(token)
	if err != nil {
		httputil.WriteUnauthorized(w, ErrCodeUnauthorized, "bearer token is not recognised")
		return
	}
	httputil.WriteOK(w, det)
}

// HandleUserByID handles GET /api/v1/users/{id}.
func (h *Handler) HandleUserByID(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}
	det, err := h.svc.UserByID(r.PathValue("id"))
	if err != nil {
		httputil.WriteNotFound(w, ErrCodeNotFound, "no user with that id")
		return
	}
	httputil.WriteOK(w, det)
}

// HandleSearchUsers handles GET /api/v1/users?query=.
func (h *Handler) HandleSearchUsers(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}
	httputil.WriteOK(w, h.svc.SearchUsers(r.URL.Query().Get("query")))
}

// HandleAccountLookup handles GET /testing-support/accounts?email=.
// Test-support endpoints are unauthenticated.
func (h *Handler) HandleAccountLookup(w http.ResponseWriter, r *http.Request) {
	det, err := h.svc.AccountByEmail(r.URL.Query().Get("email"))
	if err != nil {
		httputil.WriteNotFound(w, ErrCodeNotFound, "no account with that email")
		return
	}
	httputil.WriteOK(w, det)
}

// HandleCreateAccount handles POST /testing-support/accounts.
func (h *Handler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Email == "" {
		httputil.WriteBadRequest(w, ErrCodeInvalidRequest, "email is required")
		return
	}

	det, err := h.svc.SeedAccount(req)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			httputil.WriteConflict(w, ErrCodeConflict, "an account with that email already exists")
			return
		}
		httputil.WriteInternalError(w, ErrCodeServerError, err.Error())
		return
	}
	httputil.WriteCreated(w, det)
}

// HandleReset handles DELETE /testing-support/accounts.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.svc.Reset()
	httputil.WriteNoContent(w)
}

// authenticated enforces a resolvable bearer token for the directory
// endpoints, writing a 401 on failure.
func (h *Handler) authenticated(w http.ResponseWriter, r *http.Request) bool {
	token, ok := bearerToken(r)
	if !ok || !h.svc.Authenticate(token) {
		httputil.WriteUnauthorized(w, ErrCodeUnauthorized, "bearer token is not recognised")
		return false
	}
	return true
}

// bearerToken extracts the bearer token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
