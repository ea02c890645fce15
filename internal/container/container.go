package container

import (
	"kivop-be/internal/config"
	"kivop-be/internal/repository"
	"kivop-be/internal/service"
	"kivop-be/internal/service/auth"
	"kivop-be/pkg/logger"
	"kivop-be/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	RedisClient *redis.Client
	Services    *service.Services
}

// New creates a new dependency injection container. Redis is optional:
// without it the services run uncached.
func New(cfg *config.Config, log *logger.Logger, posters repository.PosterRepository) (*Container, error) {
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Logger)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching")
		} else {
			redisClient = client
			log.Info("Redis client initialized successfully")
		}
	} else {
		log.Info("Redis URL not configured, proceeding without caching")
	}

	cache := service.NewCacheService(redisClient, log.Logger, cfg.PositionCacheTTL)

	services := &service.Services{
		Auth:    auth.NewService(cfg.JWTSecret, cfg.JWTIssuer, log),
		Posters: service.NewPosterService(posters, cache, log.Logger, cfg.PosterFetchConcurrency),
		Cache:   cache,
	}

	return &Container{
		Config:      cfg,
		Logger:      log,
		RedisClient: redisClient,
		Services:    services,
	}, nil
}

// GetAuthService returns the auth service
func (c *Container) GetAuthService() service.AuthService {
	return c.Services.Auth
}

// GetPosterService returns the poster service
func (c *Container) GetPosterService() *service.PosterService {
	return c.Services.Posters
}

// GetCacheService returns the cache service; it is a no-op without Redis
func (c *Container) GetCacheService() *service.CacheService {
	return c.Services.Cache
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}
