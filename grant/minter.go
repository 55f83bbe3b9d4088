package grant

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.pilab.hu/authcore/domain"
	"go.pilab.hu/authcore/internal/random"
)

// Default token lifetimes, used when a client does not set its own.
const (
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Minter builds token records and persists them.
type Minter struct {
	store      domain.TokenStore
	gen        *random.Generator
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// MinterOption configures a Minter.
type MinterOption func(*Minter)

// WithTokenGenerator sets the token value generator.
func WithTokenGenerator(gen *random.Generator) MinterOption {
	return func(m *Minter) {
		if gen != nil {
			m.gen = gen
		}
	}
}

// WithDefaultTTLs sets the fallback lifetimes. Non-positive values are ignored.
func WithDefaultTTLs(access, refresh time.Duration) MinterOption {
	return func(m *Minter) {
		if access > 0 {
			m.accessTTL = access
		}
		if refresh > 0 {
			m.refreshTTL = refresh
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) MinterOption {
	return func(m *Minter) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMinter creates a Minter that persists into store.
func NewMinter(store domain.TokenStore, opts ...MinterOption) *Minter {
	m := &Minter{
		store:      store,
		gen:        random.New(random.DefaultTokenLength),
		accessTTL:  DefaultAccessTokenTTL,
		refreshTTL: DefaultRefreshTokenTTL,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Now returns the minter's current time.
func (m *Minter) Now() time.Time {
	return m.now()
}

// Access builds an unsaved access token for the client.
func (m *Minter) Access(c *domain.Client, subject string, scopes []string) *domain.AccessToken {
	now := m.now()
	ttl := c.AccessTokenTTL
	if ttl <= 0 {
		ttl = m.accessTTL
	}

	return &domain.AccessToken{
		ID:        uuid.NewString(),
		Value:     m.gen.Generate(),
		ClientID:  c.ID,
		Subject:   subject,
		Scopes:    append([]string(nil), scopes...),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl).Truncate(time.Second),
		Claims:    maps.Clone(c.Claims),
	}
}

// Refresh builds an unsaved refresh token for the client.
func (m *Minter) Refresh(c *domain.Client, subject string, scopes []string) *domain.RefreshToken {
	now := m.now()
	ttl := c.RefreshTokenTTL
	if ttl <= 0 {
		ttl = m.refreshTTL
	}

	return &domain.RefreshToken{
		ID:        uuid.NewString(),
		Value:     m.gen.Generate(),
		ClientID:  c.ID,
		Subject:   subject,
		Scopes:    append([]string(nil), scopes...),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl).Truncate(time.Second),
	}
}

// Pair builds linked access and refresh tokens and persists both.
func (m *Minter) Pair(ctx context.Context, c *domain.Client, subject string, scopes []string) (*Result, error) {
	res := &Result{
		Access:  m.Access(c, subject, scopes),
		Refresh: m.Refresh(c, subject, scopes),
	}
	link(res)

	if err := m.Persist(ctx, res); err != nil {
		return nil, err
	}

	return res, nil
}

// Persist saves the tokens in res. The refresh token goes first so an
// access token never references a refresh token that was not stored.
func (m *Minter) Persist(ctx context.Context, res *Result) error {
	if res.Refresh != nil {
		if err := m.store.SaveRefreshToken(ctx, res.Refresh); err != nil {
			return fmt.Errorf("failed to store refresh token: %w", err)
		}
	}

	if err := m.store.SaveAccessToken(ctx, res.Access); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}

	return nil
}

func link(res *Result) {
	if res.Refresh == nil {
		return
	}

	res.Access.RefreshToken = res.Refresh.Value
	res.Refresh.AccessToken = res.Access.Value
}
