package domain

import "time"

// Token type identifiers, also used as RFC 7009 / RFC 7662 token_type_hint values.
const (
	TokenTypeAccessToken  = "access_token"
	TokenTypeRefreshToken = "refresh_token"
	TokenTypeBearer       = "Bearer"
)

// AccessToken is an opaque bearer token issued by a grant.
type AccessToken struct {
	ID           string            `json:"id"`
	Value        string            `json:"value"`
	ClientID     string            `json:"client_id"`
	Subject      string            `json:"subject,omitempty"` // Empty for client_credentials
	Scopes       []string          `json:"scopes"`
	IssuedAt     time.Time         `json:"issued_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
	RefreshToken string            `json:"refresh_token,omitempty"` // Linked refresh token value
	Claims       map[string]string `json:"claims,omitempty"`
}

// Expired reports whether the token is past its expiration at now.
func (t *AccessToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// RefreshToken is a long-lived token used by the refresh_token grant.
type RefreshToken struct {
	ID          string    `json:"id"`
	Value       string    `json:"value"`
	ClientID    string    `json:"client_id"`
	Subject     string    `json:"subject,omitempty"`
	Scopes      []string  `json:"scopes"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	AccessToken string    `json:"access_token,omitempty"` // Most recent access token minted from it
}

// Expired reports whether the token is past its expiration at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// TokenResponse represents an OAuth 2.0 token response.
type TokenResponse struct {
	AccessToken  string            `json:"access_token"`
	TokenType    string            `json:"token_type"`
	ExpiresIn    int               `json:"expires_in"`
	Scope        string            `json:"scope,omitempty"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	Extra        map[string]string `json:"-"`
}

// TokenIntrospection represents the response format defined in RFC 7662.
//
//nolint:tagliatelle
type TokenIntrospection struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Jti       string `json:"jti,omitempty"`
}
