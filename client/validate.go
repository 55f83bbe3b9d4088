package client

import (
	"fmt"

	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
)

// ValidateRedirectURI checks if a redirect URI is registered for the client.
func ValidateRedirectURI(c *domain.Client, redirectURI string) error {
	if !c.HasRedirectURI(redirectURI) {
		return fmt.Errorf("%w: redirect_uri not registered for client", serrors.ErrInvalidRequest)
	}

	return nil
}

// ValidateScope checks if requested scopes are allowed for a client.
func ValidateScope(c *domain.Client, requestedScopes []string) error {
	allowedScopes := make(map[string]bool, len(c.AllowedScopes))
	for _, scope := range c.AllowedScopes {
		allowedScopes[scope] = true
	}

	for _, scope := range requestedScopes {
		if !allowedScopes[scope] {
			return fmt.Errorf("%w: scope '%s' not allowed for client", serrors.ErrInvalidScope, scope)
		}
	}

	return nil
}

// ValidateGrantType checks if a grant type is allowed for a client.
func ValidateGrantType(c *domain.Client, grantType domain.GrantType) error {
	if !c.AllowsGrant(grantType) {
		return fmt.Errorf("%w: grant type '%s' not allowed for client", serrors.ErrUnauthorizedClient, grantType)
	}

	return nil
}
