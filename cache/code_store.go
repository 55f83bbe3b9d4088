package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
)

// MemoryCodeStore implements domain.AuthCodeStore using ttlcache. Entries
// expire on their own; ConsumeCode relies on ttlcache's GetAndDelete, which
// runs under the cache lock, so a code can be consumed at most once.
type MemoryCodeStore struct {
	cache *ttlcache.Cache[string, domain.AuthCode]
}

var _ domain.AuthCodeStore = (*MemoryCodeStore)(nil)

// NewMemoryCodeStore creates a new in-memory code store with automatic cleanup.
func NewMemoryCodeStore() *MemoryCodeStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, domain.AuthCode](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemoryCodeStore{cache: cache}
}

// PutCode implements domain.AuthCodeStore.
func (s *MemoryCodeStore) PutCode(_ context.Context, code *domain.AuthCode, ttl time.Duration) error {
	if ttl <= 0 {
		// ttlcache treats a non-positive TTL as "never expires".
		return fmt.Errorf("authorization code ttl must be positive, got %s", ttl)
	}

	_, exists := s.cache.GetOrSet(HashToken(code.Code), *code,
		ttlcache.WithTTL[string, domain.AuthCode](ttl))
	if exists {
		return serrors.ErrCodeExists
	}

	return nil
}

// GetCode implements domain.AuthCodeStore.
func (s *MemoryCodeStore) GetCode(_ context.Context, code string) (*domain.AuthCode, error) {
	item := s.cache.Get(HashToken(code))
	if item == nil {
		return nil, serrors.ErrNotFound
	}

	record := item.Value()
	return &record, nil
}

// ConsumeCode implements domain.AuthCodeStore.
func (s *MemoryCodeStore) ConsumeCode(_ context.Context, code string) (*domain.AuthCode, error) {
	item, ok := s.cache.GetAndDelete(HashToken(code))
	if !ok {
		return nil, serrors.ErrNotFound
	}

	record := item.Value()
	return &record, nil
}

// DeleteCode implements domain.AuthCodeStore.
func (s *MemoryCodeStore) DeleteCode(_ context.Context, code string) error {
	s.cache.Delete(HashToken(code))

	return nil
}

// Count returns the number of live codes.
func (s *MemoryCodeStore) Count() int {
	return s.cache.Len()
}

// Close stops the cleanup goroutine.
func (s *MemoryCodeStore) Close() error {
	s.cache.Stop()

	return nil
}
