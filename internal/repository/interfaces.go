package repository

import (
	"context"
	"errors"

	"kivop-be/internal/domain"
)

// ErrStaleWrite is returned when a position changed between read and write
var ErrStaleWrite = errors.New("position was modified concurrently")

// PosterRepository defines the persistence operations for poster campaigns
type PosterRepository interface {
	// CreatePoster stores a poster and its initial positions atomically
	CreatePoster(ctx context.Context, poster *domain.Poster, positions []domain.PosterPosition) error

	// GetPoster retrieves a poster by ID, nil if it does not exist
	GetPoster(ctx context.Context, id string) (*domain.Poster, error)

	// ListPosters retrieves every poster
	ListPosters(ctx context.Context) ([]domain.Poster, error)

	// ListPositions retrieves the positions of one poster
	ListPositions(ctx context.Context, posterID string) ([]domain.PosterPosition, error)

	// GetPosition retrieves a position by ID, nil if it does not exist
	GetPosition(ctx context.Context, id string) (*domain.PosterPosition, error)

	// UpdatePosition writes pos if the stored status still equals expected.
	// Returns ErrStaleWrite otherwise.
	UpdatePosition(ctx context.Context, pos domain.PosterPosition, expected domain.PositionStatus) error
}
