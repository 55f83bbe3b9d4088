package domain

import (
	"context"
	"time"
)

// AuthCodeStore persists authorization codes. ConsumeCode must be atomic per
// key: of two concurrent calls for the same code, at most one returns it.
type AuthCodeStore interface {
	// PutCode stores code until ttl elapses. It returns errors.ErrCodeExists
	// if the value is already taken.
	PutCode(ctx context.Context, code *AuthCode, ttl time.Duration) error
	// GetCode returns the record without consuming it.
	GetCode(ctx context.Context, code string) (*AuthCode, error)
	// ConsumeCode returns and removes the record in one step.
	ConsumeCode(ctx context.Context, code string) (*AuthCode, error)
	DeleteCode(ctx context.Context, code string) error
}

// TokenStore persists access and refresh tokens, keyed by token value.
type TokenStore interface {
	SaveAccessToken(ctx context.Context, token *AccessToken) error
	GetAccessToken(ctx context.Context, value string) (*AccessToken, error)
	DeleteAccessToken(ctx context.Context, value string) error

	SaveRefreshToken(ctx context.Context, token *RefreshToken) error
	GetRefreshToken(ctx context.Context, value string) (*RefreshToken, error)
	// ConsumeRefreshToken returns and removes the record in one step.
	ConsumeRefreshToken(ctx context.Context, value string) (*RefreshToken, error)
	// LinkRefreshToken points an existing refresh token at accessToken and
	// keeps its expiry. It returns errors.ErrNotFound, without writing, if the
	// token is gone.
	LinkRefreshToken(ctx context.Context, value, accessToken string) error
	DeleteRefreshToken(ctx context.Context, value string) error
}

// ClientDirectory resolves registered clients. A missing client is reported
// as errors.ErrNotFound.
type ClientDirectory interface {
	FindClient(ctx context.Context, clientID string) (*Client, error)
}

// UserDirectory resolves resource owners. A missing user is reported as
// errors.ErrNotFound.
type UserDirectory interface {
	FindUserByUsername(ctx context.Context, username string) (*User, error)
}

// ResourceDirectory lists every secured resource definition.
type ResourceDirectory interface {
	ListResources(ctx context.Context) ([]SecuredResource, error)
}

// SecretVerifier checks a raw secret against its stored encoding. Matches
// must run in time independent of where raw and encoded differ.
type SecretVerifier interface {
	Matches(raw, encoded string) bool
}

// UserAuthenticator authenticates a resource owner for the password grant.
type UserAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (*User, error)
}

// EventPublisher publishes commit events.
type EventPublisher interface {
	Publish(ctx context.Context, evt ResourceChanged) error
}

// EventHandler handles a commit event.
type EventHandler func(ctx context.Context, evt ResourceChanged)

// EventSubscriber registers commit event handlers. The returned function
// removes the handler.
type EventSubscriber interface {
	Subscribe(handler EventHandler) (unsubscribe func())
}
