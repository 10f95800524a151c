// Package readings generates, stores and serves insight readings.
package readings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pathlet/internal/insights"
)

// ErrForbidden is returned when a user asks for someone else's reading.
var ErrForbidden = errors.New("reading belongs to another user")

// ErrExportDisabled is returned by Export when no archive is configured.
var ErrExportDisabled = errors.New("reading export is not configured")

// List sizes. A limit outside [1, MaxListLimit] means DefaultListLimit.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ListLimit normalises a requested list size.
func ListLimit(n int) int {
	if n < 1 || n > MaxListLimit {
		return DefaultListLimit
	}
	return n
}

// ExportTTL is how long an export download link stays valid.
const ExportTTL = 15 * time.Minute

// Store is the persistence the service needs.
type Store interface {
	Create(ctx context.Context, reading *Reading) error
	Get(ctx context.Context, id uuid.UUID) (*Reading, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Reading, error)
}

// Publisher sends events to whoever listens for them.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Archive stores exported readings and signs links to them.
type Archive interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
	DownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

// Service orchestrates reading creation
type Service struct {
	store     Store
	generator insights.Generator
	publisher Publisher
	archive   Archive
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a Service. A nil publisher means events are not published.
func NewService(store Store, generator insights.Generator, publisher Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		generator: generator,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// WithArchive enables Export.
func (s *Service) WithArchive(a Archive) *Service {
	s.archive = a
	return s
}

// Owner is the user a reading is created for.
type Owner struct {
	ID    string
	Email string
}

// Create generates insights for details, stores the reading and announces it.
// A failed announcement is logged but does not fail the call.
func (s *Service) Create(ctx context.Context, owner Owner, details insights.BirthDetails) (*Reading, error) {
	userID := owner.ID
	generated, err := s.generator.Generate(ctx, &details)
	if err != nil {
		return nil, fmt.Errorf("failed to generate insights: %w", err)
	}

	reading := &Reading{
		UserID:       userID,
		BirthDetails: details,
		Insights:     *generated,
	}
	if err := s.store.Create(ctx, reading); err != nil {
		return nil, err
	}

	ev := Event{
		Type:       EventReadingCreated,
		ReadingID:  reading.ID,
		UserID:     userID,
		Email:      owner.Email,
		SunSign:    reading.Insights.Astrology.SunSign,
		EnergyType: reading.Insights.HumanDesign.EnergyType,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, userID, ev); err != nil {
		s.logger.Warn("Failed to publish reading event", "reading_id", reading.ID, "error", err)
	}

	s.logger.Info("Reading created", "reading_id", reading.ID, "user_id", userID)
	return reading, nil
}

// Get returns a reading owned by userID.
func (s *Service) Get(ctx context.Context, userID string, id uuid.UUID) (*Reading, error) {
	reading, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if reading.UserID != userID {
		return nil, ErrForbidden
	}
	return reading, nil
}

// List returns the user's most recent readings.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]Reading, error) {
	return s.store.ListByUser(ctx, userID, ListLimit(limit))
}

// Latest returns the user's most recent reading.
func (s *Service) Latest(ctx context.Context, userID string) (*Reading, error) {
	list, err := s.store.ListByUser(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrReadingNotFound
	}
	return &list[0], nil
}

// Export uploads the reading as JSON and returns a short-lived link to it.
func (s *Service) Export(ctx context.Context, userID string, id uuid.UUID) (*Export, error) {
	if s.archive == nil {
		return nil, ErrExportDisabled
	}
	reading, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	body, err := json.MarshalIndent(reading, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode reading: %w", err)
	}
	key := ExportKey(userID, id)
	if err := s.archive.Put(ctx, key, "application/json", body); err != nil {
		return nil, err
	}
	url, err := s.archive.DownloadURL(ctx, key, ExportTTL)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Reading exported", "reading_id", id, "user_id", userID)
	return &Export{ReadingID: id, URL: url, ExpiresAt: s.now().Add(ExportTTL).UTC()}, nil
}

// ExportKey is the object key an export of reading id is stored under.
func ExportKey(userID string, id uuid.UUID) string {
	return fmt.Sprintf("readings/%s/%s.json", userID, id)
}
