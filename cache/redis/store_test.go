package redis_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/authcore/cache/redis"
	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestCodeStore_SingleUse(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewCodeStore(client, "test")
	ctx := context.Background()

	code := &domain.AuthCode{Code: "abc123", ClientID: "C1", Subject: "alice", RedirectURI: "https://a/cb"}
	require.NoError(t, store.PutCode(ctx, code, time.Minute))
	assert.ErrorIs(t, store.PutCode(ctx, code, time.Minute), serrors.ErrCodeExists)

	peek, err := store.GetCode(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "alice", peek.Subject)

	got, err := store.ConsumeCode(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "https://a/cb", got.RedirectURI)

	_, err = store.ConsumeCode(ctx, "abc123")
	assert.ErrorIs(t, err, serrors.ErrNotFound)
}

func TestCodeStore_KeysAreHashed(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewCodeStore(client, "test")

	require.NoError(t, store.PutCode(context.Background(), &domain.AuthCode{Code: "plain"}, time.Minute))

	for _, key := range mr.Keys() {
		assert.NotContains(t, key, "plain")
	}
}

func TestCodeStore_Expiry(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewCodeStore(client, "test")
	ctx := context.Background()

	require.NoError(t, store.PutCode(ctx, &domain.AuthCode{Code: "short"}, time.Minute))
	mr.FastForward(61 * time.Second)

	_, err := store.ConsumeCode(ctx, "short")
	assert.ErrorIs(t, err, serrors.ErrNotFound)
}

func TestCodeStore_ConcurrentConsume(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewCodeStore(client, "test")
	ctx := context.Background()

	require.NoError(t, store.PutCode(ctx, &domain.AuthCode{Code: "race"}, time.Minute))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ConsumeCode(ctx, "race"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestTokenStore_AccessAndRefresh(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewTokenStore(client, "test")
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, store.SaveAccessToken(ctx, &domain.AccessToken{ID: "a1", Value: "acc", ClientID: "C1", ExpiresAt: exp}))
	require.NoError(t, store.SaveRefreshToken(ctx, &domain.RefreshToken{ID: "r1", Value: "ref", ClientID: "C1", AccessToken: "acc", ExpiresAt: exp}))
	assert.Equal(t, 2, store.Count(ctx))

	access, err := store.GetAccessToken(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, "a1", access.ID)

	refresh, err := store.ConsumeRefreshToken(ctx, "ref")
	require.NoError(t, err)
	assert.Equal(t, "acc", refresh.AccessToken)

	_, err = store.GetRefreshToken(ctx, "ref")
	assert.ErrorIs(t, err, serrors.ErrNotFound)

	require.NoError(t, store.DeleteAccessToken(ctx, "acc"))
	_, err = store.GetAccessToken(ctx, "acc")
	assert.ErrorIs(t, err, serrors.ErrNotFound)
	assert.Zero(t, store.Count(ctx))
}

func TestTokenStore_LinkRefreshToken(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewTokenStore(client, "test")
	ctx := context.Background()

	err := store.LinkRefreshToken(ctx, "ref", "acc")
	assert.ErrorIs(t, err, serrors.ErrNotFound)
	assert.Zero(t, store.Count(ctx))

	require.NoError(t, store.SaveRefreshToken(ctx, &domain.RefreshToken{
		ID: "r1", Value: "ref", ClientID: "C1", AccessToken: "acc", ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, store.LinkRefreshToken(ctx, "ref", "acc2"))

	got, err := store.GetRefreshToken(ctx, "ref")
	require.NoError(t, err)
	assert.Equal(t, "acc2", got.AccessToken)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Greater(t, mr.TTL(keys[0]), 59*time.Minute, "link keeps the expiry")

	require.NoError(t, store.DeleteRefreshToken(ctx, "ref"))
	err = store.LinkRefreshToken(ctx, "ref", "acc3")
	assert.ErrorIs(t, err, serrors.ErrNotFound)
	assert.Empty(t, mr.Keys(), "deleted token is not recreated")
}
