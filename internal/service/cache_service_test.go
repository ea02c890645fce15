package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"kivop-be/internal/domain"
	"kivop-be/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupCache(t *testing.T) (*miniredis.Miniredis, *CacheService) {
	mr := miniredis.RunT(t)

	client, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewCacheService(client, zap.NewNop(), time.Minute)
}

func cachedPositions(ids ...string) []domain.PosterPosition {
	out := make([]domain.PosterPosition, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.PosterPosition{
			ID:               id,
			PosterID:         "p1",
			Status:           domain.StatusHangs,
			ExpiresAt:        testNow,
			ResponsibleUsers: []string{},
		})
	}
	return out
}

func TestCacheService_PositionsCacheAside(t *testing.T) {
	mr, cache := setupCache(t)
	ctx := context.Background()

	calls := 0
	fallback := func(ctx context.Context, posterID string) ([]domain.PosterPosition, error) {
		calls++
		return cachedPositions("a", "b"), nil
	}

	first, err := cache.GetPositionsWithCache(ctx, "p1", fallback)
	require.NoError(t, err)
	assert.Len(t, first, 2)
	assert.Equal(t, 1, calls)
	assert.True(t, mr.Exists("test:posters:p1:positions"))
	assert.Equal(t, time.Minute, mr.TTL("test:posters:p1:positions"))

	second, err := cache.GetPositionsWithCache(ctx, "p1", fallback)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.Len(t, second, 2)
	assert.Equal(t, "b", second[1].ID)
	assert.True(t, second[1].ExpiresAt.Equal(testNow))
}

func TestCacheService_PhotosAreNotCached(t *testing.T) {
	mr, cache := setupCache(t)

	withPhoto := cachedPositions("a")
	withPhoto[0].Image = []byte("jpg")
	withPhoto[0].HasImage = true

	fresh, err := cache.GetPositionsWithCache(context.Background(), "p1", func(ctx context.Context, posterID string) ([]domain.PosterPosition, error) {
		return withPhoto, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("jpg"), fresh[0].Image)

	var stored []domain.PosterPosition
	raw, err := mr.Get("test:posters:p1:positions")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	require.Len(t, stored, 1)
	assert.Nil(t, stored[0].Image)
	assert.True(t, stored[0].HasImage)
}

func TestCacheService_FallbackErrorIsReturned(t *testing.T) {
	mr, cache := setupCache(t)
	boom := errors.New("boom")

	_, err := cache.GetPositionsWithCache(context.Background(), "p1", func(ctx context.Context, posterID string) ([]domain.PosterPosition, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("test:posters:p1:positions"))
}

func TestCacheService_CorruptEntryIsAMiss(t *testing.T) {
	mr, cache := setupCache(t)
	require.NoError(t, mr.Set("test:posters:p1:positions", "{not json"))

	positions, err := cache.GetPositionsWithCache(context.Background(), "p1", func(ctx context.Context, posterID string) ([]domain.PosterPosition, error) {
		return cachedPositions("a"), nil
	})
	require.NoError(t, err)
	assert.Len(t, positions, 1)
}

func TestCacheService_InvalidatePoster(t *testing.T) {
	mr, cache := setupCache(t)
	require.NoError(t, mr.Set("test:posters:p1:positions", "[]"))
	require.NoError(t, mr.Set("test:posters:p2:positions", "[]"))

	require.NoError(t, cache.InvalidatePoster(context.Background(), "p1"))

	assert.False(t, mr.Exists("test:posters:p1:positions"))
	assert.True(t, mr.Exists("test:posters:p2:positions"))
	gen, err := mr.Get("test:posters:p1:gen")
	require.NoError(t, err)
	assert.Equal(t, "1", gen)
}

func TestCacheService_WriteDuringLoadIsNotCached(t *testing.T) {
	mr, cache := setupCache(t)
	ctx := context.Background()

	// the read loads the old state, then a write commits and invalidates
	// before the read gets to store it
	stale, err := cache.GetPositionsWithCache(ctx, "p1", func(ctx context.Context, posterID string) ([]domain.PosterPosition, error) {
		old := cachedPositions("a")
		require.NoError(t, cache.InvalidatePoster(ctx, posterID))
		return old, nil
	})
	require.NoError(t, err)
	assert.Len(t, stale, 1)
	assert.False(t, mr.Exists("test:posters:p1:positions"))

	// the next read caches again
	_, err = cache.GetPositionsWithCache(ctx, "p1", func(ctx context.Context, posterID string) ([]domain.PosterPosition, error) {
		return cachedPositions("a"), nil
	})
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:posters:p1:positions"))
}

func TestCacheService_PositionLock(t *testing.T) {
	_, cache := setupCache(t)
	ctx := context.Background()

	token, ok, err := cache.TryPositionLock(ctx, "pos-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = cache.TryPositionLock(ctx, "pos-1")
	require.NoError(t, err)
	assert.False(t, ok)

	cache.ReleasePositionLock(ctx, "pos-1", token)

	_, ok, err = cache.TryPositionLock(ctx, "pos-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheService_ExpiredLockIsNotReleasedByFormerHolder(t *testing.T) {
	mr, cache := setupCache(t)
	ctx := context.Background()

	first, ok, err := cache.TryPositionLock(ctx, "pos-1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(redis.TTLPositionLock + time.Second)

	second, ok, err := cache.TryPositionLock(ctx, "pos-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, first, second)

	cache.ReleasePositionLock(ctx, "pos-1", first)

	held, err := mr.Get("test:posters:position:pos-1:lock")
	require.NoError(t, err)
	assert.Equal(t, second, held)

	_, ok, err = cache.TryPositionLock(ctx, "pos-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheService_Disabled(t *testing.T) {
	var cache *CacheService
	ctx := context.Background()

	calls := 0
	for i := 0; i < 2; i++ {
		_, err := cache.GetPositionsWithCache(ctx, "p1", func(ctx context.Context, posterID string) ([]domain.PosterPosition, error) {
			calls++
			return nil, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)

	token, ok, err := cache.TryPositionLock(ctx, "pos-1")
	require.NoError(t, err)
	assert.True(t, ok)
	cache.ReleasePositionLock(ctx, "pos-1", token)
	assert.NoError(t, cache.InvalidatePoster(ctx, "p1"))
	assert.NoError(t, cache.HealthCheck(ctx))
}

func TestCacheService_HealthCheck(t *testing.T) {
	mr, cache := setupCache(t)
	assert.NoError(t, cache.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, cache.HealthCheck(context.Background()))
}
