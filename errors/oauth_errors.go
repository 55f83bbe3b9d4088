package errors

import (
	"errors"
	"fmt"
)

// Core error taxonomy. Every error is terminal for the current request.
var (
	// Authorization code validation.
	ErrExpired          = errors.New("authorization code expired")
	ErrRedirectMismatch = errors.New("redirect_uri does not match the authorization request")
	ErrClientMismatch   = errors.New("client_id does not match the authorization request")
	ErrInvalidPKCE      = errors.New("code_verifier does not match the code challenge")

	// Grant outcomes.
	ErrInvalidGrant         = errors.New("invalid grant")
	ErrInvalidScope         = errors.New("invalid scope")
	ErrUnauthorizedClient   = errors.New("grant type not allowed for this client")
	ErrUnsupportedGrantType = errors.New("unsupported grant type")
	ErrInvalidRequest       = errors.New("invalid request")

	// ErrAuthFailure never reveals whether the client id exists.
	ErrAuthFailure = errors.New("client authentication failed")

	// Store outcomes.
	ErrNotFound   = errors.New("not found")
	ErrCodeExists = errors.New("authorization code already exists")
)

// OAuth2Error represents a standardized OAuth 2.0 error
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Standard OAuth2 error codes
const (
	InvalidRequest         = "invalid_request"
	UnauthorizedClient     = "unauthorized_client"
	AccessDenied           = "access_denied"
	UnsupportedGrantType   = "unsupported_grant_type"
	InvalidScope           = "invalid_scope"
	InvalidClient          = "invalid_client"
	InvalidGrant           = "invalid_grant"
	ServerError            = "server_error"
	TemporarilyUnavailable = "temporarily_unavailable"

	// InvalidToken is the bearer token error code of RFC 6750.
	InvalidToken = "invalid_token"
)

// Common error constructors
func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRequest,
		Description: description,
	}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidClient,
		Description: description,
	}
}

func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidGrant,
		Description: description,
	}
}

func NewInvalidScope(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidScope,
		Description: description,
	}
}

func NewUnauthorizedClient(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        UnauthorizedClient,
		Description: description,
	}
}

func NewUnsupportedGrantType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedGrantType,
		Description: "The authorization grant type is not supported",
	}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        ServerError,
		Description: description,
	}
}

// FromError translates a core error into its protocol form. Every code
// redemption failure maps to the same invalid_grant description so callers
// cannot tell a replayed code from an expired or mismatched one.
func FromError(err error) *OAuth2Error {
	var oauthErr *OAuth2Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAuthFailure):
		return NewInvalidClient("Client authentication failed")
	case errors.Is(err, ErrUnauthorizedClient):
		return NewUnauthorizedClient("The client is not authorized to use this grant type")
	case errors.Is(err, ErrUnsupportedGrantType):
		return NewUnsupportedGrantType()
	case errors.Is(err, ErrInvalidScope):
		return NewInvalidScope("The requested scope is invalid or exceeds the granted scope")
	case errors.Is(err, ErrInvalidRequest):
		return NewInvalidRequest(err.Error())
	case errors.Is(err, ErrInvalidGrant),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrRedirectMismatch),
		errors.Is(err, ErrClientMismatch),
		errors.Is(err, ErrInvalidPKCE):
		return NewInvalidGrant("The provided authorization grant is invalid, expired or revoked")
	default:
		return NewServerError("The authorization server encountered an unexpected condition")
	}
}
