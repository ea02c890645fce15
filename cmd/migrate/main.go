package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

const usage = "Usage: go run ./cmd/migrate [drop|up|seed]"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "drop":
		if err := execAll(ctx, conn, dropStatements); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("All tables dropped")

	case "up":
		if err := execAll(ctx, conn, createStatements); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("All tables created")

	case "seed":
		if err := seedData(ctx, conn, time.Now().UTC()); err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
		fmt.Println("Data seeded")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

var dropStatements = []string{
	`DROP TABLE IF EXISTS poster_positions CASCADE`,
	`DROP TABLE IF EXISTS posters CASCADE`,
}

// overdue is derived at read time and never stored
var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS posters (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS poster_positions (
		id UUID PRIMARY KEY,
		poster_id UUID REFERENCES posters(id) ON DELETE CASCADE,
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		status VARCHAR(16) NOT NULL DEFAULT 'toHang'
			CHECK (status IN ('toHang', 'hangs', 'takenDown', 'damaged')),
		image BYTEA,
		posted_at TIMESTAMPTZ,
		posted_by VARCHAR(255) NOT NULL DEFAULT '',
		removed_at TIMESTAMPTZ,
		removed_by VARCHAR(255) NOT NULL DEFAULT '',
		expires_at TIMESTAMPTZ,
		responsible_users TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK ((latitude IS NULL) = (longitude IS NULL))
	)`,

	`CREATE INDEX IF NOT EXISTS idx_poster_positions_poster_id ON poster_positions(poster_id)`,
	`CREATE INDEX IF NOT EXISTS idx_poster_positions_expires_at ON poster_positions(expires_at)`,
}

func execAll(ctx context.Context, conn *pgx.Conn, statements []string) error {
	for _, query := range statements {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
		fmt.Printf("  %s\n", shorten(query))
	}
	return nil
}

// seedData creates one campaign with a hanging, a pending and a removed position
func seedData(ctx context.Context, conn *pgx.Conn, now time.Time) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	posterID := uuid.New()
	if _, err := tx.Exec(ctx,
		`INSERT INTO posters (id, name, description) VALUES ($1, $2, $3)`,
		posterID, "Sommerfest", "Plakate für das Sommerfest des Vereins",
	); err != nil {
		return fmt.Errorf("failed to seed poster: %w", err)
	}

	day := 24 * time.Hour
	positions := []struct {
		status    string
		lat, lng  *float64
		postedAt  *time.Time
		removedAt *time.Time
		expiresAt time.Time
	}{
		{"hangs", ptr(51.9607), ptr(7.6261), ptr(now.Add(-day)), nil, now.Add(2 * day)},
		{"toHang", nil, nil, nil, nil, now.Add(7 * day)},
		{"takenDown", ptr(51.9566), ptr(7.6353), ptr(now.Add(-20 * day)), ptr(now.Add(-11 * day)), now.Add(-10 * day)},
	}

	for _, p := range positions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO poster_positions
				(id, poster_id, latitude, longitude, status, posted_at, removed_at, expires_at, responsible_users)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			uuid.New(), posterID, p.lat, p.lng, p.status, p.postedAt, p.removedAt, p.expiresAt, []string{"seed"},
		); err != nil {
			return fmt.Errorf("failed to seed position: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}

	fmt.Printf("  Seeded poster %s with %d positions\n", posterID, len(positions))
	return nil
}

func ptr[T any](v T) *T {
	return &v
}

func shorten(query string) string {
	if len(query) > 50 {
		return query[:50] + "..."
	}
	return query
}
