package readings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"pathlet/internal/database"
)

// ErrReadingNotFound is returned when a reading does not exist.
var ErrReadingNotFound = errors.New("reading not found")

// Repository handles all database operations for readings
type Repository struct {
	db     database.Service
	logger *slog.Logger
}

// NewRepository creates a new readings repository
func NewRepository(db database.Service, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

// Create inserts r, filling in ID and CreatedAt
func (r *Repository) Create(ctx context.Context, reading *Reading) error {
	details, err := json.Marshal(reading.BirthDetails)
	if err != nil {
		return fmt.Errorf("failed to encode birth details: %w", err)
	}
	ins, err := json.Marshal(reading.Insights)
	if err != nil {
		return fmt.Errorf("failed to encode insights: %w", err)
	}
	if reading.ID == uuid.Nil {
		reading.ID = uuid.New()
	}

	query := `
		INSERT INTO readings (id, user_id, birth_details, insights, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING created_at
	`
	if err := r.db.QueryRow(ctx, query, reading.ID, reading.UserID, details, ins).Scan(&reading.CreatedAt); err != nil {
		r.logger.Error("Error creating reading", "user_id", reading.UserID, "error", err)
		return fmt.Errorf("failed to create reading: %w", err)
	}
	return nil
}

// Get retrieves a single reading by ID
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Reading, error) {
	query := `
		SELECT id, user_id, birth_details, insights, created_at
		FROM readings
		WHERE id = $1
	`
	reading, err := scanReading(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReadingNotFound
	}
	if err != nil {
		r.logger.Error("Error getting reading", "reading_id", id, "error", err)
		return nil, fmt.Errorf("failed to get reading: %w", err)
	}
	return reading, nil
}

// ListByUser returns a user's readings, newest first
func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]Reading, error) {
	limit = ListLimit(limit)

	query := `
		SELECT id, user_id, birth_details, insights, created_at
		FROM readings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	defer rows.Close()

	out := make([]Reading, 0)
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		out = append(out, *reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}
	return out, nil
}

func scanReading(row pgx.Row) (*Reading, error) {
	var (
		reading      Reading
		details, ins []byte
	)
	if err := row.Scan(&reading.ID, &reading.UserID, &details, &ins, &reading.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(details, &reading.BirthDetails); err != nil {
		return nil, fmt.Errorf("failed to decode birth details: %w", err)
	}
	if err := json.Unmarshal(ins, &reading.Insights); err != nil {
		return nil, fmt.Errorf("failed to decode insights: %w", err)
	}
	return &reading, nil
}
