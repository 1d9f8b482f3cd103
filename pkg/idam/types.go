package idam

// PinRequest is the body of POST /pin.
type PinRequest struct {
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Roles     []string `json:"roles"`
}

// PinResponse is the result of the pin flow.
type PinResponse struct {
	Pin    string `json:"pin"`
	UserID string `json:"userId"`
}

// CodeResponse is returned by the legacy combined grant.
type CodeResponse struct {
	Code string `json:"code"`
}

// TokenResponse is an OAuth token response. ExpiresIn is a string because
// the systems this simulator stands in for emit it that way.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    string `json:"expires_in"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// UserDetails is the user representation served by the details and
// directory endpoints.
type UserDetails struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Forename string   `json:"forename"`
	Surname  string   `json:"surname"`
	Roles    []string `json:"roles"`
}

// UserInfo is the OIDC userinfo response. Sub mirrors the email.
type UserInfo struct {
	UID        string   `json:"uid"`
	Email      string   `json:"email"`
	GivenName  string   `json:"given_name"`
	FamilyName string   `json:"family_name"`
	Sub        string   `json:"sub"`
	Roles      []string `json:"roles"`
}

// AccountRequest is the body of the test-support account seeding endpoint.
type AccountRequest struct {
	Email    string   `json:"email"`
	Forename string   `json:"forename"`
	Surname  string   `json:"surname"`
	Roles    []string `json:"roles"`
}

// Grant types accepted at the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
)

// OAuth error codes used in error responses.
const (
	ErrCodeInvalidRequest       = "invalid_request"
	ErrCodeInvalidGrant         = "invalid_grant"
	ErrCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrCodeUnauthorized         = "unauthorized"
	ErrCodeNotFound             = "not_found"
	ErrCodeConflict             = "conflict"
	ErrCodeServerError          = "server_error"
)
