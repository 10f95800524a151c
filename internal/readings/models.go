package readings

import (
	"time"

	"github.com/google/uuid"

	"pathlet/internal/insights"
)

// Reading is a stored insights reading
type Reading struct {
	ID           uuid.UUID             `json:"id"`
	UserID       string                `json:"user_id"`
	BirthDetails insights.BirthDetails `json:"birth_details"`
	Insights     insights.Insights     `json:"insights"`
	CreatedAt    time.Time             `json:"created_at"`
}

// EventReadingCreated is the type of the event published after a reading is stored.
const EventReadingCreated = "reading.created"

// Event is the payload published for reading lifecycle changes
type Event struct {
	Type       string    `json:"type"`
	ReadingID  uuid.UUID `json:"reading_id"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email,omitempty"`
	SunSign    string    `json:"sun_sign"`
	EnergyType string    `json:"energy_type"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ListResponse is the payload of GET /api/readings
type ListResponse struct {
	Readings []Reading `json:"readings"`
	Count    int       `json:"count"`
}

// Export is the payload of GET /api/readings/:id/export
type Export struct {
	ReadingID uuid.UUID `json:"reading_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
