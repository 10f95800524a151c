package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pathlet/internal/store"
)

const dedupPrefix = "pathlet:notified:"

// Dedup remembers which notifications went out so redelivered events are not
// emailed twice.
type Dedup struct {
	store  store.Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewDedup creates a Dedup keeping records for a day.
func NewDedup(s store.Store, logger *slog.Logger) *Dedup {
	return &Dedup{store: s, ttl: 24 * time.Hour, logger: logger}
}

// IsProcessed checks if a notification has already been sent
func (d *Dedup) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	_, err := d.store.Get(ctx, dedupPrefix+messageID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check if message is processed: %w", err)
	}
	return true, nil
}

// MarkProcessed records n as sent. It reports false when another consumer got there first.
func (d *Dedup) MarkProcessed(ctx context.Context, n Notification, sentAt time.Time) (bool, error) {
	data, err := json.Marshal(Record{SentAt: sentAt, Recipient: n.Recipient, ReadingID: n.ReadingID})
	if err != nil {
		return false, fmt.Errorf("failed to marshal record: %w", err)
	}

	ok, err := d.store.SetNX(ctx, dedupPrefix+n.MessageID, string(data), d.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to mark message as processed: %w", err)
	}
	if !ok {
		d.logger.Warn("Notification already recorded by another consumer", "message_id", n.MessageID)
	}
	return ok, nil
}

// Lookup returns the record of a sent notification.
func (d *Dedup) Lookup(ctx context.Context, messageID string) (*Record, error) {
	data, err := d.store.Get(ctx, dedupPrefix+messageID)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}
