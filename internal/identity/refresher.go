package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Refresher keeps tracked clients' sessions fresh on a schedule, so tokens are
// renewed (and TOKEN_REFRESHED pushed) without waiting for the next GetSession.
type Refresher struct {
	scheduler *gocron.Scheduler
	interval  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewRefresher creates a refresher that checks tracked clients every interval.
func NewRefresher(interval time.Duration, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		scheduler: gocron.NewScheduler(time.UTC),
		interval:  interval,
		logger:    logger,
		clients:   make(map[*Client]struct{}),
	}
}

// Track adds a client to the refresh set.
func (r *Refresher) Track(c *Client) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()
}

// Untrack removes a client from the refresh set.
func (r *Refresher) Untrack(c *Client) {
	r.mu.Lock()
	delete(r.clients, c)
	r.mu.Unlock()
}

// Start schedules the refresh job. The first run happens one interval from now.
func (r *Refresher) Start() error {
	_, err := r.scheduler.Every(r.interval).WaitForSchedule().SingletonMode().Do(r.RunOnce)
	if err != nil {
		return fmt.Errorf("failed to schedule token refresh: %w", err)
	}
	r.scheduler.StartAsync()
	return nil
}

// RunOnce refreshes every tracked client that is close to expiry.
func (r *Refresher) RunOnce() {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	for _, c := range clients {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		if err := c.RefreshIfNeeded(ctx); err != nil {
			r.logger.Warn("Token refresh failed", "storage_key", c.opts.StorageKey, "error", err)
		}
		cancel()
	}
}

// Stop halts the scheduler.
func (r *Refresher) Stop() {
	r.scheduler.Stop()
}
