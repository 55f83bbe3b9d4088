package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
)

// MemoryTokenStore implements domain.TokenStore using ttlcache.
type MemoryTokenStore struct {
	access  *ttlcache.Cache[string, domain.AccessToken]
	refresh *ttlcache.Cache[string, domain.RefreshToken]
	// refreshMu orders refresh token writes so a link never resurrects a
	// deleted token.
	refreshMu sync.Mutex
}

var _ domain.TokenStore = (*MemoryTokenStore)(nil)

// NewMemoryTokenStore creates a new in-memory token store with automatic cleanup.
func NewMemoryTokenStore() *MemoryTokenStore {
	access := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, domain.AccessToken](),
	)
	refresh := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, domain.RefreshToken](),
	)

	go access.Start()
	go refresh.Start()

	return &MemoryTokenStore{
		access:  access,
		refresh: refresh,
	}
}

// SaveAccessToken implements domain.TokenStore.
func (s *MemoryTokenStore) SaveAccessToken(_ context.Context, token *domain.AccessToken) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		// Already expired; a non-positive TTL would never expire in ttlcache.
		return nil
	}

	s.access.Set(HashToken(token.Value), *token, ttl)
	return nil
}

// GetAccessToken implements domain.TokenStore.
func (s *MemoryTokenStore) GetAccessToken(_ context.Context, value string) (*domain.AccessToken, error) {
	item := s.access.Get(HashToken(value))
	if item == nil {
		return nil, serrors.ErrNotFound
	}

	token := item.Value()
	return &token, nil
}

// DeleteAccessToken implements domain.TokenStore.
func (s *MemoryTokenStore) DeleteAccessToken(_ context.Context, value string) error {
	s.access.Delete(HashToken(value))
	return nil
}

// SaveRefreshToken implements domain.TokenStore.
func (s *MemoryTokenStore) SaveRefreshToken(_ context.Context, token *domain.RefreshToken) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.refresh.Set(HashToken(token.Value), *token, ttl)
	return nil
}

// GetRefreshToken implements domain.TokenStore.
func (s *MemoryTokenStore) GetRefreshToken(_ context.Context, value string) (*domain.RefreshToken, error) {
	item := s.refresh.Get(HashToken(value))
	if item == nil {
		return nil, serrors.ErrNotFound
	}

	token := item.Value()
	return &token, nil
}

// ConsumeRefreshToken implements domain.TokenStore.
func (s *MemoryTokenStore) ConsumeRefreshToken(_ context.Context, value string) (*domain.RefreshToken, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	item, ok := s.refresh.GetAndDelete(HashToken(value))
	if !ok {
		return nil, serrors.ErrNotFound
	}

	token := item.Value()
	return &token, nil
}

// LinkRefreshToken implements domain.TokenStore.
func (s *MemoryTokenStore) LinkRefreshToken(_ context.Context, value, accessToken string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	key := HashToken(value)
	item := s.refresh.Get(key)
	if item == nil {
		return serrors.ErrNotFound
	}

	ttl := time.Until(item.ExpiresAt())
	if ttl <= 0 {
		return serrors.ErrNotFound
	}

	token := item.Value()
	token.AccessToken = accessToken
	s.refresh.Set(key, token, ttl)

	return nil
}

// DeleteRefreshToken implements domain.TokenStore.
func (s *MemoryTokenStore) DeleteRefreshToken(_ context.Context, value string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.refresh.Delete(HashToken(value))
	return nil
}

// Count returns the number of live access and refresh tokens.
func (s *MemoryTokenStore) Count() (access, refresh int) {
	return s.access.Len(), s.refresh.Len()
}

// Close stops the cleanup goroutines.
func (s *MemoryTokenStore) Close() error {
	s.access.Stop()
	s.refresh.Stop()

	return nil
}
