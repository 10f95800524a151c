package notify

import (
	"time"

	"github.com/google/uuid"
)

// Notification is one "your reading is ready" email.
type Notification struct {
	// MessageID deduplicates deliveries; it is the reading's id.
	MessageID  string
	ReadingID  uuid.UUID
	Recipient  string
	SunSign    string
	EnergyType string
}

// Record is what is kept per delivered notification.
type Record struct {
	SentAt    time.Time `json:"sent_at"`
	Recipient string    `json:"recipient"`
	ReadingID uuid.UUID `json:"reading_id"`
}

// DeadLetter wraps a notification that could not be delivered.
type DeadLetter struct {
	ReadingID uuid.UUID `json:"reading_id"`
	Recipient string    `json:"recipient"`
	Error     string    `json:"error"`
	FailedAt  time.Time `json:"failed_at"`
	Group     string    `json:"consumer_group"`
}
