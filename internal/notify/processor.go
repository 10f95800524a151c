package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"pathlet/internal/readings"
)

// Outcome says what happened to one consumed event.
type Outcome int

const (
	Skipped Outcome = iota
	Duplicate
	Delivered
	DeadLettered
)

func (o Outcome) String() string {
	switch o {
	case Duplicate:
		return "duplicate"
	case Delivered:
		return "delivered"
	case DeadLettered:
		return "dead-lettered"
	default:
		return "skipped"
	}
}

// Publisher sends a value to a topic. kafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Stats counts outcomes since start.
type Stats struct {
	Skipped      int64 `json:"skipped"`
	Duplicates   int64 `json:"duplicates"`
	Delivered    int64 `json:"delivered"`
	DeadLettered int64 `json:"dead_lettered"`
}

// Processor turns reading events into emails, at most once per reading.
type Processor struct {
	sender     Sender
	dedup      *Dedup
	dlq        Publisher
	group      string
	maxRetries int
	backoff    func(attempt int) time.Duration
	logger     *slog.Logger
	now        func() time.Time

	skipped, duplicates, delivered, deadLettered atomic.Int64
}

// NewProcessor creates a processor. Undeliverable notifications go to dlq.
func NewProcessor(sender Sender, dedup *Dedup, dlq Publisher, cfg *Config, logger *slog.Logger) *Processor {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Processor{
		sender:     sender,
		dedup:      dedup,
		dlq:        dlq,
		group:      cfg.ConsumerGroup,
		maxRetries: retries,
		backoff:    func(attempt int) time.Duration { return time.Duration(attempt) * time.Second },
		logger:     logger,
		now:        time.Now,
	}
}

// Stats returns the outcome counters.
func (p *Processor) Stats() Stats {
	return Stats{
		Skipped:      p.skipped.Load(),
		Duplicates:   p.duplicates.Load(),
		Delivered:    p.delivered.Load(),
		DeadLettered: p.deadLettered.Load(),
	}
}

// Handle processes one raw event. A non-nil error means the event was not
// handled and must be consumed again; every outcome is final.
func (p *Processor) Handle(ctx context.Context, value []byte) (Outcome, error) {
	var ev readings.Event
	if err := json.Unmarshal(value, &ev); err != nil {
		p.logger.Error("Failed to parse reading event", "error", err, "raw_value", string(value))
		p.skipped.Add(1)
		return Skipped, nil
	}
	if ev.Type != readings.EventReadingCreated || ev.Email == "" {
		p.logger.Debug("Ignoring reading event", "type", ev.Type, "reading_id", ev.ReadingID)
		p.skipped.Add(1)
		return Skipped, nil
	}

	n := Notification{
		MessageID:  ev.ReadingID.String(),
		ReadingID:  ev.ReadingID,
		Recipient:  ev.Email,
		SunSign:    ev.SunSign,
		EnergyType: ev.EnergyType,
	}

	done, err := p.dedup.IsProcessed(ctx, n.MessageID)
	if err != nil {
		return Skipped, err
	}
	if done {
		p.logger.Warn("Duplicate reading event, skipping", "message_id", n.MessageID)
		p.duplicates.Add(1)
		return Duplicate, nil
	}

	if err := p.sendWithRetry(ctx, n); err != nil {
		if ctx.Err() != nil {
			return Skipped, ctx.Err()
		}
		p.logger.Error("Failed to deliver notification after retries", "message_id", n.MessageID, "error", err)
		p.deadLetter(ctx, n, err)
		p.deadLettered.Add(1)
		return DeadLettered, nil
	}

	if _, err := p.dedup.MarkProcessed(ctx, n, p.now()); err != nil {
		// Sent but not recorded; a redelivery may email twice.
		p.logger.Error("Failed to record notification", "message_id", n.MessageID, "error", err)
	}
	p.delivered.Add(1)
	p.logger.Info("Notification delivered", "message_id", n.MessageID, "recipient", n.Recipient)
	return Delivered, nil
}

func (p *Processor) sendWithRetry(ctx context.Context, n Notification) error {
	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		err := p.sender.Send(ctx, n)
		if err == nil {
			if attempt > 1 {
				p.logger.Info("Notification sent after retry", "message_id", n.MessageID, "attempt", attempt)
			}
			return nil
		}
		lastErr = err
		p.logger.Warn("Failed to send notification, will retry",
			"message_id", n.MessageID,
			"attempt", attempt,
			"max_retries", p.maxRetries,
			"error", err)

		if attempt < p.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.backoff(attempt)):
			}
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (p *Processor) deadLetter(ctx context.Context, n Notification, cause error) {
	if p.dlq == nil {
		return
	}
	dl := DeadLetter{
		ReadingID: n.ReadingID,
		Recipient: n.Recipient,
		Error:     cause.Error(),
		FailedAt:  p.now().UTC(),
		Group:     p.group,
	}
	if err := p.dlq.Publish(ctx, n.MessageID, dl); err != nil {
		p.logger.Error("Failed to send to DLQ", "message_id", n.MessageID, "error", err)
		return
	}
	p.logger.Warn("Notification sent to DLQ", "message_id", n.MessageID, "recipient", n.Recipient)
}
