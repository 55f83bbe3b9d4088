// Package client authenticates OAuth2 clients and checks their registration
// against incoming requests.
package client

import (
	"context"
	"errors"
	"fmt"

	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
	"go.pilab.hu/authcore/internal/metrics"
	"go.pilab.hu/authcore/log"
)

// dummySecretHash is a valid bcrypt hash verified when the client id is
// unknown, so the lookup miss costs about as much as a real comparison.
const dummySecretHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z3kG7fVJ6r9Nn4XuUjLaYZ1e"

// Authenticator authenticates clients at the token endpoint.
type Authenticator struct {
	clients  domain.ClientDirectory
	verifier domain.SecretVerifier
	logger   log.Logger
	metrics  *metrics.Metrics
}

// NewAuthenticator creates a new Authenticator instance
func NewAuthenticator(clients domain.ClientDirectory, verifier domain.SecretVerifier,
	logger log.Logger, m *metrics.Metrics,
) *Authenticator {
	if logger == nil {
		logger = log.Nop()
	}

	return &Authenticator{
		clients:  clients,
		verifier: verifier,
		logger:   logger,
		metrics:  m,
	}
}

// Authenticate validates client credentials and returns the client if valid.
// Unknown, inactive and wrong-secret clients all yield ErrAuthFailure.
func (a *Authenticator) Authenticate(ctx context.Context, clientID, secret string) (*domain.Client, error) {
	c, err := a.clients.FindClient(ctx, clientID)
	if err != nil {
		if !errors.Is(err, serrors.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up client: %w", err)
		}

		a.verifier.Matches(secret, dummySecretHash)
		return nil, a.fail(ctx, clientID, "unknown client")
	}

	if !a.verifier.Matches(secret, c.SecretHash) {
		return nil, a.fail(ctx, clientID, "secret mismatch")
	}

	if !c.Active {
		return nil, a.fail(ctx, clientID, "inactive client")
	}

	return c, nil
}

// ResolvePublic resolves a public client, which authenticates with its id
// alone. Confidential clients must go through Authenticate.
func (a *Authenticator) ResolvePublic(ctx context.Context, clientID string) (*domain.Client, error) {
	c, err := a.clients.FindClient(ctx, clientID)
	if err != nil {
		if !errors.Is(err, serrors.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up client: %w", err)
		}

		return nil, a.fail(ctx, clientID, "unknown client")
	}

	if !c.IsPublic() {
		return nil, a.fail(ctx, clientID, "confidential client without secret")
	}

	if !c.Active {
		return nil, a.fail(ctx, clientID, "inactive client")
	}

	return c, nil
}

func (a *Authenticator) fail(ctx context.Context, clientID, reason string) error {
	a.metrics.ClientAuthFailed()
	a.logger.Info(ctx, "client authentication failed", log.Fields{
		"client_id": clientID,
		"reason":    reason,
	})

	return serrors.ErrAuthFailure
}
