package service

import (
	"context"

	"kivop-be/internal/domain"
)

// AuthService defines the interface for authentication operations
type AuthService interface {
	// ValidateToken validates a bearer token and returns the member behind it
	ValidateToken(ctx context.Context, token string) (*domain.UserProfile, error)
}

// Services aggregates all services
type Services struct {
	Auth    AuthService
	Posters *PosterService
	Cache   *CacheService
}
