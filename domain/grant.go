package domain

// GrantType is the OAuth2 flow variant of a token request.
type GrantType string

const (
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	GrantTypeClientCredentials GrantType = "client_credentials"
	GrantTypePassword          GrantType = "password"
	GrantTypeRefreshToken      GrantType = "refresh_token"
)

// TokenRequest is the grant context of a single call to the token endpoint.
// Only the fields relevant to GrantType are set.
type TokenRequest struct {
	GrantType    GrantType
	ClientID     string
	ClientSecret string
	Scopes       []string

	// authorization_code
	Code         string
	RedirectURI  string
	CodeVerifier string

	// password
	Username string
	Password string

	// refresh_token
	RefreshToken string
}
