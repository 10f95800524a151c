// Package database owns the Postgres connection pool.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaFS embed.FS

// ErrNoURL is returned by New when no connection string is configured.
var ErrNoURL = errors.New("database url is empty")

// Service is the query surface repositories depend on.
type Service interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	// Health returns a map of health status information.
	Health() map[string]string
	Migrate(ctx context.Context) error
	Close()
}

type service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects a pool to url and pings it.
func New(ctx context.Context, url string, logger *slog.Logger) (Service, error) {
	if url == "" {
		return nil, ErrNoURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database", "host", cfg.ConnConfig.Host, "database", cfg.ConnConfig.Database)
	return &service{pool: pool, logger: logger}, nil
}

func (s *service) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return s.pool.QueryRow(ctx, sql, args...)
}

func (s *service) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return s.pool.Query(ctx, sql, args...)
}

func (s *service) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return s.pool.Exec(ctx, sql, args...)
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *service) Migrate(ctx context.Context) error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := s.pool.Exec(ctx, string(schema)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	s.logger.Info("Database schema applied")
	return nil
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		s.logger.Error("Database health check failed", "error", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	ps := s.pool.Stat()
	stats["open_connections"] = strconv.Itoa(int(ps.TotalConns()))
	stats["in_use"] = strconv.Itoa(int(ps.AcquiredConns()))
	stats["idle"] = strconv.Itoa(int(ps.IdleConns()))
	stats["wait_count"] = strconv.FormatInt(ps.EmptyAcquireCount(), 10)
	stats["wait_duration"] = ps.AcquireDuration().String()

	if ps.TotalConns() > 8 {
		stats["message"] = "The database is experiencing heavy load."
	}
	return stats
}

func (s *service) Close() {
	s.logger.Info("Disconnected from database")
	s.pool.Close()
}
