package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kivop-be/internal/domain"
	"kivop-be/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PostgresPosterRepository struct {
	db *database.PostgresDB
}

func NewPosterRepository(db *database.PostgresDB) *PostgresPosterRepository {
	return &PostgresPosterRepository{db: db}
}

// positionColumns selects everything but the photo; listings only learn
// whether one exists.
const positionColumns = `
	id::text, poster_id::text, latitude, longitude, status, image IS NOT NULL,
	posted_at, posted_by, removed_at, removed_by, expires_at, responsible_users`

// positionColumnsWithImage additionally loads the photo bytes
const positionColumnsWithImage = positionColumns + `, image`

// positionRow mirrors a poster_positions row including its nullable columns
type positionRow struct {
	ID               string
	PosterID         *string
	Latitude         *float64
	Longitude        *float64
	Status           string
	HasImage         bool
	Image            []byte
	PostedAt         *time.Time
	PostedBy         string
	RemovedAt        *time.Time
	RemovedBy        string
	ExpiresAt        *time.Time
	ResponsibleUsers []string
}

func (r *positionRow) scanTargets(withImage bool) []any {
	targets := []any{
		&r.ID, &r.PosterID, &r.Latitude, &r.Longitude, &r.Status, &r.HasImage,
		&r.PostedAt, &r.PostedBy, &r.RemovedAt, &r.RemovedBy, &r.ExpiresAt, &r.ResponsibleUsers,
	}
	if withImage {
		targets = append(targets, &r.Image)
	}
	return targets
}

// toDomain converts the row. Missing poster ids and deadlines become zero
// values; aggregation reports them as data quality issues.
func (r *positionRow) toDomain() domain.PosterPosition {
	pos := domain.PosterPosition{
		ID:               r.ID,
		Status:           domain.PositionStatus(r.Status),
		Image:            r.Image,
		HasImage:         r.HasImage || len(r.Image) > 0,
		PostedAt:         r.PostedAt,
		PostedBy:         r.PostedBy,
		RemovedAt:        r.RemovedAt,
		RemovedBy:        r.RemovedBy,
		ResponsibleUsers: r.ResponsibleUsers,
	}
	if r.PosterID != nil {
		pos.PosterID = *r.PosterID
	}
	if r.Latitude != nil && r.Longitude != nil {
		pos.Coordinates = &domain.Coordinates{Latitude: *r.Latitude, Longitude: *r.Longitude}
	}
	if r.ExpiresAt != nil {
		pos.ExpiresAt = r.ExpiresAt.UTC()
	}
	if pos.ResponsibleUsers == nil {
		pos.ResponsibleUsers = []string{}
	}
	return pos
}

func coordinateArgs(c *domain.Coordinates) (*float64, *float64) {
	if c == nil {
		return nil, nil
	}
	lat, lng := c.Latitude, c.Longitude
	return &lat, &lng
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// CreatePoster inserts the poster and its positions in one transaction
func (r *PostgresPosterRepository) CreatePoster(ctx context.Context, poster *domain.Poster, positions []domain.PosterPosition) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO posters (id, name, description, image_url)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		poster.ID, poster.Name, poster.Description, poster.ImageURL,
	).Scan(&poster.CreatedAt, &poster.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create poster: %w", err)
	}

	batch := &pgx.Batch{}
	for _, pos := range positions {
		lat, lng := coordinateArgs(pos.Coordinates)
		batch.Queue(`
			INSERT INTO poster_positions (id, poster_id, latitude, longitude, status, expires_at, responsible_users)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			pos.ID, poster.ID, lat, lng, string(pos.Status), nullableTime(pos.ExpiresAt), pos.ResponsibleUsers,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to create positions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit poster: %w", err)
	}
	return nil
}

// validID reports whether id can match a UUID primary key. Anything else
// is treated as a missing row instead of a query error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// GetPoster gets a poster by ID
func (r *PostgresPosterRepository) GetPoster(ctx context.Context, id string) (*domain.Poster, error) {
	if !validID(id) {
		return nil, nil
	}
	var poster domain.Poster
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id::text, name, description, image_url, created_at, updated_at
		FROM posters
		WHERE id = $1`, id,
	).Scan(&poster.ID, &poster.Name, &poster.Description, &poster.ImageURL, &poster.CreatedAt, &poster.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get poster: %w", err)
	}
	return &poster, nil
}

// ListPosters gets every poster ordered by name
func (r *PostgresPosterRepository) ListPosters(ctx context.Context) ([]domain.Poster, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id::text, name, description, image_url, created_at, updated_at
		FROM posters
		ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list posters: %w", err)
	}
	defer rows.Close()

	var posters []domain.Poster
	for rows.Next() {
		var p domain.Poster
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan poster: %w", err)
		}
		posters = append(posters, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posters: %w", err)
	}
	return posters, nil
}

// ListPositions gets the positions of a poster without their photos
func (r *PostgresPosterRepository) ListPositions(ctx context.Context, posterID string) ([]domain.PosterPosition, error) {
	if !validID(posterID) {
		return []domain.PosterPosition{}, nil
	}
	rows, err := r.db.Pool.Query(ctx, `SELECT `+positionColumns+`
		FROM poster_positions
		WHERE poster_id = $1
		ORDER BY expires_at ASC NULLS LAST, id ASC`, posterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	positions := []domain.PosterPosition{}
	for rows.Next() {
		var row positionRow
		if err := rows.Scan(row.scanTargets(false)...); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate positions: %w", err)
	}
	return positions, nil
}

// GetPosition gets a position by ID including its photo
func (r *PostgresPosterRepository) GetPosition(ctx context.Context, id string) (*domain.PosterPosition, error) {
	if !validID(id) {
		return nil, nil
	}
	var row positionRow
	err := r.db.Pool.QueryRow(ctx, `SELECT `+positionColumnsWithImage+`
		FROM poster_positions
		WHERE id = $1`, id,
	).Scan(row.scanTargets(true)...)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	pos := row.toDomain()
	return &pos, nil
}

// UpdatePosition writes the mutable columns of pos guarded by its previous status.
// expires_at is set once at creation and never written here.
func (r *PostgresPosterRepository) UpdatePosition(ctx context.Context, pos domain.PosterPosition, expected domain.PositionStatus) error {
	if !pos.Status.IsStored() {
		return fmt.Errorf("refusing to store derived status %q", pos.Status)
	}

	lat, lng := coordinateArgs(pos.Coordinates)
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE poster_positions
		SET latitude = $2, longitude = $3, status = $4, image = $5,
		    posted_at = $6, posted_by = $7, removed_at = $8, removed_by = $9,
		    updated_at = NOW()
		WHERE id = $1 AND status = $10`,
		pos.ID, lat, lng, string(pos.Status), pos.Image,
		pos.PostedAt, pos.PostedBy, pos.RemovedAt, pos.RemovedBy,
		string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleWrite
	}
	return nil
}
