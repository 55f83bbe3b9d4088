package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.pilab.hu/authcore/cache"
	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
)

// CodeStore implements domain.AuthCodeStore using Redis. Codes are stored as
// JSON under a hashed key; uniqueness relies on SETNX and single use on GETDEL.
type CodeStore struct {
	client redis.UniversalClient
	prefix string // Optional prefix for keys
}

var _ domain.AuthCodeStore = (*CodeStore)(nil)

// NewCodeStore creates a new [CodeStore] instance
func NewCodeStore(client redis.UniversalClient, prefix string) *CodeStore {
	return &CodeStore{
		client: client,
		prefix: prefix,
	}
}

// redisKey returns the Redis key for a given code
func (s *CodeStore) redisKey(code string) string {
	return fmt.Sprintf("%s:code:%s", s.prefix, cache.HashToken(code))
}

// PutCode stores the code with the given TTL unless the value is taken.
func (s *CodeStore) PutCode(ctx context.Context, code *domain.AuthCode, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("authorization code ttl must be positive, got %s", ttl)
	}

	payload, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.redisKey(code.Code), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store authorization code in Redis: %w", err)
	}

	if !ok {
		return serrors.ErrCodeExists
	}

	return nil
}

// GetCode reads the code without consuming it.
func (s *CodeStore) GetCode(ctx context.Context, code string) (*domain.AuthCode, error) {
	raw, err := s.client.Get(ctx, s.redisKey(code)).Bytes()
	if err != nil {
		return nil, notFound(err, "failed to get authorization code from Redis")
	}

	return decodeCode(raw)
}

// ConsumeCode atomically reads and removes the code with GETDEL.
func (s *CodeStore) ConsumeCode(ctx context.Context, code string) (*domain.AuthCode, error) {
	raw, err := s.client.GetDel(ctx, s.redisKey(code)).Bytes()
	if err != nil {
		return nil, notFound(err, "failed to consume authorization code from Redis")
	}

	return decodeCode(raw)
}

// DeleteCode removes the code.
func (s *CodeStore) DeleteCode(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, s.redisKey(code)).Err(); err != nil {
		return fmt.Errorf("failed to delete authorization code from Redis: %w", err)
	}

	return nil
}

func decodeCode(raw []byte) (*domain.AuthCode, error) {
	var code domain.AuthCode
	if err := json.Unmarshal(raw, &code); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", err)
	}

	return &code, nil
}

// notFound maps redis.Nil to ErrNotFound and wraps everything else.
func notFound(err error, msg string) error {
	if errors.Is(err, redis.Nil) {
		return serrors.ErrNotFound
	}

	return fmt.Errorf("%s: %w", msg, err)
}
