package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kivop-be/internal/domain"
	"kivop-be/pkg/redis"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CacheService caches the stored positions of posters in Redis. Anything
// derived from the clock is computed by the caller on every read. A nil
// *CacheService or one without a client is valid and simply never caches.
type CacheService struct {
	redis  *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewCacheService creates a new cache service. ttl <= 0 uses the default.
func NewCacheService(redisClient *redis.Client, logger *zap.Logger, ttl time.Duration) *CacheService {
	if ttl <= 0 {
		ttl = redis.TTLPosterPositions
	}
	return &CacheService{
		redis:  redisClient,
		logger: logger,
		ttl:    ttl,
	}
}

func (c *CacheService) enabled() bool {
	return c != nil && c.redis != nil
}

// GetPositionsWithCache returns the positions of a poster using the
// cache-aside pattern. Entries never carry photo bytes.
func (c *CacheService) GetPositionsWithCache(ctx context.Context, posterID string, fallback func(ctx context.Context, posterID string) ([]domain.PosterPosition, error)) ([]domain.PosterPosition, error) {
	if !c.enabled() {
		return fallback(ctx, posterID)
	}

	cacheKey := c.redis.KeyBuilder.KeyPosterPositions(posterID)
	var positions []domain.PosterPosition
	if c.lookup(ctx, cacheKey, &positions) {
		c.logger.Debug("Positions cache hit", zap.String("poster_id", posterID))
		return positions, nil
	}

	c.logger.Debug("Positions cache miss", zap.String("poster_id", posterID))

	// Read before the database so a write that lands meanwhile turns the
	// store below into a no-op.
	genKey := c.redis.KeyBuilder.KeyPosterGeneration(posterID)
	gen, genErr := c.redis.Generation(ctx, genKey)

	fresh, err := fallback(ctx, posterID)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		c.logger.Warn("Cache error, not storing positions", zap.Error(genErr))
		return fresh, nil
	}

	stripped := make([]domain.PosterPosition, len(fresh))
	for i, pos := range fresh {
		pos.Image = nil
		stripped[i] = pos
	}
	c.store(ctx, cacheKey, genKey, gen, stripped)
	return fresh, nil
}

// InvalidatePoster drops the cached positions of a poster and fences off
// reads that started before the write
func (c *CacheService) InvalidatePoster(ctx context.Context, posterID string) error {
	if !c.enabled() {
		return nil
	}

	kb := c.redis.KeyBuilder
	if err := c.redis.BumpGeneration(ctx, kb.KeyPosterGeneration(posterID), redis.TTLPosterGeneration, kb.KeyPosterPositions(posterID)); err != nil {
		c.logger.Error("Failed to invalidate poster caches",
			zap.String("poster_id", posterID),
			zap.Error(err))
		return fmt.Errorf("invalidate positions: %w", err)
	}
	c.logger.Debug("Poster caches invalidated", zap.String("poster_id", posterID))
	return nil
}

// TryPositionLock guards a position against overlapping submissions. The
// returned token identifies this holder to ReleasePositionLock. Without
// Redis every attempt succeeds.
func (c *CacheService) TryPositionLock(ctx context.Context, positionID string) (string, bool, error) {
	token := uuid.NewString()
	if !c.enabled() {
		return token, true, nil
	}
	ok, err := c.redis.SetNX(ctx, c.redis.KeyBuilder.KeyPositionLock(positionID), token, redis.TTLPositionLock)
	return token, ok, err
}

// ReleasePositionLock removes the lock if token still owns it. A lock that
// expired and was taken by another request is left alone.
func (c *CacheService) ReleasePositionLock(ctx context.Context, positionID, token string) {
	if !c.enabled() {
		return
	}
	released, err := c.redis.DeleteIfValue(ctx, c.redis.KeyBuilder.KeyPositionLock(positionID), token)
	if err != nil {
		c.logger.Warn("Failed to release position lock",
			zap.String("position_id", positionID),
			zap.Error(err))
		return
	}
	if !released {
		c.logger.Warn("Position lock expired before release",
			zap.String("position_id", positionID),
			zap.Duration("lock_ttl", redis.TTLPositionLock))
	}
}

// HealthCheck performs a health check on the cache system
func (c *CacheService) HealthCheck(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	start := time.Now()
	err := c.redis.Health(ctx)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("Cache health check failed",
			zap.Duration("duration", duration),
			zap.Error(err))
		return err
	}

	c.logger.Debug("Cache health check passed", zap.Duration("duration", duration))
	return nil
}

// lookup decodes a cached value into dst. Corrupt entries count as misses.
func (c *CacheService) lookup(ctx context.Context, key string, dst interface{}) bool {
	cached, err := c.redis.Get(ctx, key)
	if err != nil {
		if !redis.IsMiss(err) {
			c.logger.Warn("Cache error, falling back to database", zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal([]byte(cached), dst); err != nil {
		c.logger.Warn("Cache entry corrupted, falling back to database", zap.Error(err))
		return false
	}
	return true
}

// store caches value unless genKey moved past gen in the meantime
func (c *CacheService) store(ctx context.Context, key, genKey, gen string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("Failed to marshal value for caching", zap.Error(err))
		return
	}
	stored, err := c.redis.SetIfGeneration(ctx, key, genKey, gen, string(data), c.ttl)
	if err != nil {
		c.logger.Error("Failed to cache value", zap.Error(err))
		return
	}
	if !stored {
		c.logger.Debug("Positions changed while loading, not cached", zap.String("key", key))
	}
}
