package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.pilab.hu/authcore/cache"
	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
)

// TokenStore implements domain.TokenStore using Redis. Each token is a JSON
// string key expiring together with the token.
type TokenStore struct {
	client redis.UniversalClient
	prefix string
}

var _ domain.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a new [TokenStore] instance
func NewTokenStore(client redis.UniversalClient, prefix string) *TokenStore {
	return &TokenStore{
		client: client,
		prefix: prefix,
	}
}

func (s *TokenStore) accessKey(value string) string {
	return fmt.Sprintf("%s:access:%s", s.prefix, cache.HashToken(value))
}

func (s *TokenStore) refreshKey(value string) string {
	return fmt.Sprintf("%s:refresh:%s", s.prefix, cache.HashToken(value))
}

func (s *TokenStore) set(ctx context.Context, key string, v any, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set token in Redis: %w", err)
	}

	return nil
}

// SaveAccessToken implements domain.TokenStore.
func (s *TokenStore) SaveAccessToken(ctx context.Context, token *domain.AccessToken) error {
	return s.set(ctx, s.accessKey(token.Value), token, token.ExpiresAt)
}

// GetAccessToken implements domain.TokenStore.
func (s *TokenStore) GetAccessToken(ctx context.Context, value string) (*domain.AccessToken, error) {
	raw, err := s.client.Get(ctx, s.accessKey(value)).Bytes()
	if err != nil {
		return nil, notFound(err, "failed to get access token from Redis")
	}

	var token domain.AccessToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal access token: %w", err)
	}

	return &token, nil
}

// DeleteAccessToken implements domain.TokenStore.
func (s *TokenStore) DeleteAccessToken(ctx context.Context, value string) error {
	if err := s.client.Del(ctx, s.accessKey(value)).Err(); err != nil {
		return fmt.Errorf("failed to delete access token from Redis: %w", err)
	}

	return nil
}

// SaveRefreshToken implements domain.TokenStore.
func (s *TokenStore) SaveRefreshToken(ctx context.Context, token *domain.RefreshToken) error {
	return s.set(ctx, s.refreshKey(token.Value), token, token.ExpiresAt)
}

// GetRefreshToken implements domain.TokenStore.
func (s *TokenStore) GetRefreshToken(ctx context.Context, value string) (*domain.RefreshToken, error) {
	raw, err := s.client.Get(ctx, s.refreshKey(value)).Bytes()
	if err != nil {
		return nil, notFound(err, "failed to get refresh token from Redis")
	}

	return decodeRefresh(raw)
}

// ConsumeRefreshToken atomically reads and removes the refresh token.
func (s *TokenStore) ConsumeRefreshToken(ctx context.Context, value string) (*domain.RefreshToken, error) {
	raw, err := s.client.GetDel(ctx, s.refreshKey(value)).Bytes()
	if err != nil {
		return nil, notFound(err, "failed to consume refresh token from Redis")
	}

	return decodeRefresh(raw)
}

// LinkRefreshToken rewrites the access token link with SET XX KEEPTTL, so a
// token deleted since the read is not recreated.
func (s *TokenStore) LinkRefreshToken(ctx context.Context, value, accessToken string) error {
	key := s.refreshKey(value)

	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return notFound(err, "failed to get refresh token from Redis")
	}

	token, err := decodeRefresh(raw)
	if err != nil {
		return err
	}
	token.AccessToken = accessToken

	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	ok, err := s.client.SetXX(ctx, key, payload, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to link refresh token in Redis: %w", err)
	}
	if !ok {
		return serrors.ErrNotFound
	}

	return nil
}

// DeleteRefreshToken implements domain.TokenStore.
func (s *TokenStore) DeleteRefreshToken(ctx context.Context, value string) error {
	if err := s.client.Del(ctx, s.refreshKey(value)).Err(); err != nil {
		return fmt.Errorf("failed to delete refresh token from Redis: %w", err)
	}

	return nil
}

// Count returns the number of stored tokens under the prefix.
func (s *TokenStore) Count(ctx context.Context) int {
	var count int
	for _, kind := range []string{"access", "refresh"} {
		pattern := fmt.Sprintf("%s:%s:*", s.prefix, kind)
		count += s.scanCount(ctx, pattern)
	}

	return count
}

func (s *TokenStore) scanCount(ctx context.Context, pattern string) int {
	var count int
	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			break
		}

		count += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return count
}

func decodeRefresh(raw []byte) (*domain.RefreshToken, error) {
	var token domain.RefreshToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}

	return &token, nil
}
