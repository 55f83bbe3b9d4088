package domain

import "time"

// PKCE code challenge methods.
const (
	CodeChallengePlain = "plain"
	CodeChallengeS256  = "S256"
)

// AuthCode represents an OAuth 2.0 authorization code.
type AuthCode struct {
	Code        string    `json:"code"`         // Opaque code value
	ClientID    string    `json:"client_id"`    // Client application ID
	Subject     string    `json:"subject"`      // User who approved the request
	RedirectURI string    `json:"redirect_uri"` // Client's callback URL from the authorize request
	State       string    `json:"state"`        // Opaque state from the authorize request
	Scopes      []string  `json:"scopes"`       // Scopes the subject approved
	ExpiresAt   time.Time `json:"expires_at"`   // Absolute expiration
	CreatedAt   time.Time `json:"created_at"`

	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

// PendingAuthorization is an authorize request that the subject has approved
// and that is waiting for a code to be issued.
type PendingAuthorization struct {
	ClientID            string
	Subject             string
	RedirectURI         string
	State               string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
}

// CodeExchange carries the parts of a token request that are checked against
// a consumed authorization code.
type CodeExchange struct {
	ClientID     string
	RedirectURI  string
	CodeVerifier string
}
