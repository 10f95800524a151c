package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Entry is one client's identity handle and the guard watching it.
type Entry[C Source] struct {
	ID     string
	Client C
	Guard  *Guard

	mu       sync.Mutex
	lastSeen time.Time

	// life orders the guard's initialisation against its release.
	life     sync.Mutex
	released bool
}

func (e *Entry[C]) touch(now time.Time) {
	e.mu.Lock()
	e.lastSeen = now
	e.mu.Unlock()
}

// LastSeen reports when the entry was last handed out.
func (e *Entry[C]) LastSeen() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeen
}

// RegistryOptions configures a Registry.
type RegistryOptions[C Source] struct {
	// IdleTTL evicts entries not used for this long. Zero disables eviction.
	IdleTTL time.Duration
	// SweepInterval is how often idle entries are looked for.
	SweepInterval time.Duration
	// OnCreate and OnEvict run when an entry enters or leaves the registry.
	OnCreate func(C)
	OnEvict  func(C)
	Logger   *slog.Logger
}

// Registry keeps one initialised guard per client for servers that act on behalf
// of many clients at once.
type Registry[C Source] struct {
	newClient func(id string) C
	opts      RegistryOptions[C]
	logger    *slog.Logger
	scheduler *gocron.Scheduler
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry[C]
}

// NewRegistry creates a registry building clients with newClient.
func NewRegistry[C Source](newClient func(id string) C, opts RegistryOptions[C]) *Registry[C] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry[C]{
		newClient: newClient,
		opts:      opts,
		logger:    logger,
		scheduler: gocron.NewScheduler(time.UTC),
		now:       time.Now,
		entries:   make(map[string]*Entry[C]),
	}
}

// Get returns the entry for id, creating and initialising it on first use.
func (r *Registry[C]) Get(id string) *Entry[C] {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		client := r.newClient(id)
		e = &Entry[C]{
			ID:     id,
			Client: client,
			Guard:  New(client, WithLogger(r.logger.With("client_id", id))),
		}
		r.entries[id] = e
	}
	r.mu.Unlock()

	e.touch(r.now())
	if !ok {
		if r.opts.OnCreate != nil {
			r.opts.OnCreate(e.Client)
		}
		r.initialize(e)
	}
	return e
}

// initialize starts e's guard unless e was evicted since it was published.
func (r *Registry[C]) initialize(e *Entry[C]) {
	e.life.Lock()
	defer e.life.Unlock()
	if e.released {
		r.logger.Debug("Client evicted before its guard started", "client_id", e.ID)
		return
	}
	// The guard outlives the request that created it.
	e.Guard.Initialize(context.Background())
	r.logger.Debug("Client session guard created", "client_id", e.ID)
}

// Len returns the number of live entries.
func (r *Registry[C]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Evict tears down and forgets the entry for id, if present.
func (r *Registry[C]) Evict(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok {
		r.release(e)
	}
}

func (r *Registry[C]) release(e *Entry[C]) {
	e.life.Lock()
	e.released = true
	e.Guard.Teardown()
	e.life.Unlock()

	if r.opts.OnEvict != nil {
		r.opts.OnEvict(e.Client)
	}
}

// EvictIdle removes entries unused for longer than IdleTTL and returns how many went.
func (r *Registry[C]) EvictIdle() int {
	if r.opts.IdleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.opts.IdleTTL)

	r.mu.Lock()
	var stale []*Entry[C]
	for id, e := range r.entries {
		if e.LastSeen().Before(cutoff) {
			stale = append(stale, e)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, e := range stale {
		r.release(e)
	}
	if len(stale) > 0 {
		r.logger.Info("Evicted idle client sessions", "count", len(stale))
	}
	return len(stale)
}

// Start schedules idle eviction.
func (r *Registry[C]) Start() error {
	if r.opts.IdleTTL <= 0 || r.opts.SweepInterval <= 0 {
		return nil
	}
	_, err := r.scheduler.Every(r.opts.SweepInterval).WaitForSchedule().SingletonMode().Do(func() {
		r.EvictIdle()
	})
	if err != nil {
		return fmt.Errorf("failed to schedule idle eviction: %w", err)
	}
	r.scheduler.StartAsync()
	return nil
}

// Close stops eviction and tears down every entry.
func (r *Registry[C]) Close() {
	r.scheduler.Stop()

	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Entry[C])
	r.mu.Unlock()

	for _, e := range entries {
		r.release(e)
	}
}
