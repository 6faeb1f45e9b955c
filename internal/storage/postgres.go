package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v4/stdlib" // Import the driver

	"marketplace-scraper/pkg/models"
)

const listingsSchema = `
	CREATE TABLE IF NOT EXISTS listings (
		url          TEXT PRIMARY KEY,
		title        TEXT NOT NULL,
		price        TEXT,
		location     TEXT,
		image_url    TEXT,
		search_query TEXT NOT NULL,
		condition    TEXT NOT NULL,
		scraped_at   TIMESTAMPTZ NOT NULL
	)`

const insertListing = `
	INSERT INTO listings (url, title, price, location, image_url, search_query, condition, scraped_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (url) DO NOTHING`

// Storage writes listings to Postgres, one statement per record. A listing
// seen in an earlier run keeps its first row.
type Storage struct {
	db *sql.DB
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, listingsSchema); err != nil {
		return fmt.Errorf("create listings table: %w", err)
	}
	return nil
}

func (s *Storage) Write(ctx context.Context, rec models.OutputRecord) error {
	_, err := s.db.ExecContext(ctx, insertListing,
		rec.URL,
		rec.Title,
		nullString(rec.Price),
		nullString(rec.Location),
		nullString(rec.ImageURL),
		rec.SearchQuery,
		string(rec.Condition),
		rec.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Fields the page did not show are stored as NULL rather than "".
func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
