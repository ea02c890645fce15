package container

import (
	"context"
	"testing"

	"kivop-be/internal/config"
	"kivop-be/internal/domain"
	"kivop-be/internal/service"
	"kivop-be/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emptyRepo is a PosterRepository without any data
type emptyRepo struct{}

func (emptyRepo) CreatePoster(ctx context.Context, p *domain.Poster, positions []domain.PosterPosition) error {
	return nil
}
func (emptyRepo) GetPoster(ctx context.Context, id string) (*domain.Poster, error) { return nil, nil }
func (emptyRepo) ListPosters(ctx context.Context) ([]domain.Poster, error)       { return nil, nil }
func (emptyRepo) ListPositions(ctx context.Context, posterID string) ([]domain.PosterPosition, error) {
	return nil, nil
}
func (emptyRepo) GetPosition(ctx context.Context, id string) (*domain.PosterPosition, error) {
	return nil, nil
}
func (emptyRepo) UpdatePosition(ctx context.Context, pos domain.PosterPosition, expected domain.PositionStatus) error {
	return nil
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name        string
		redisURL    string
		expectRedis bool
	}{
		{
			name:        "Container with Redis configured",
			redisURL:    "redis://" + mr.Addr(),
			expectRedis: true,
		},
		{
			name:        "Container without Redis configured",
			redisURL:    "",
			expectRedis: false,
		},
		{
			name:        "Container with invalid Redis URL",
			redisURL:    "invalid://redis-url",
			expectRedis: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Environment:            "test",
				RedisURL:               tt.redisURL,
				JWTSecret:              "secret",
				PosterFetchConcurrency: 2,
			}
			testLogger := logger.NewNop()

			c, err := New(cfg, testLogger, emptyRepo{})
			require.NoError(t, err)
			require.NotNil(t, c)
			if c.RedisClient != nil {
				t.Cleanup(func() { _ = c.RedisClient.Close() })
			}

			assert.Equal(t, cfg, c.GetConfig())
			assert.Equal(t, testLogger, c.GetLogger())
			assert.Equal(t, tt.expectRedis, c.HasRedis())
			assert.NotNil(t, c.GetPosterService())
			assert.NotNil(t, c.GetCacheService())
			assert.Implements(t, (*service.AuthService)(nil), c.GetAuthService())
		})
	}
}

func TestNew_ServicesWorkWithoutRedis(t *testing.T) {
	c, err := New(&config.Config{Environment: "test"}, logger.NewNop(), emptyRepo{})
	require.NoError(t, err)

	overviews, err := c.GetPosterService().ListOverviews(context.Background(), service.ViewCurrent)
	require.NoError(t, err)
	assert.Empty(t, overviews)
	assert.NoError(t, c.GetCacheService().HealthCheck(context.Background()))
}
