// Package session owns the client's knowledge of who is signed in.
//
// A Guard adapts the identity collaborator's asynchronous world (a one-shot session
// query racing a stream of change notifications) into a synchronous State that
// access-controlled boundaries can branch on, and decides when those boundaries
// should send the user back to the entry screen.
package session

import (
	"context"
	"log/slog"
	"sync"

	"pathlet/internal/identity"
)

// Source is the part of the identity collaborator the guard consumes.
type Source interface {
	GetSession(ctx context.Context) (*identity.Session, error)
	OnSessionChange(fn func(identity.Event)) identity.Subscription
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the guard's logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// WithListener registers fn to be called with the current state after every applied
// update and after teardown. Calls are serialised.
func WithListener(fn func(State)) Option {
	return func(g *Guard) { g.listeners = append(g.listeners, fn) }
}

// Guard is the single writer of a client's session State.
type Guard struct {
	source    Source
	logger    *slog.Logger
	listeners []func(State)
	publishMu sync.Mutex
	// initMu serialises Initialize calls.
	initMu sync.Mutex

	mu     sync.Mutex
	state  State
	active bool
	// gen changes on every teardown; async results carrying an older gen are dropped.
	gen uint64
	// seq numbers every state-producing event when it is issued; applied is the
	// seq of the update currently reflected in state.
	seq     uint64
	applied uint64
	sub     identity.Subscription
	cancel  context.CancelFunc

	ready       chan struct{}
	readyClosed bool
	redirected  bool
}

// New creates a guard in the Unknown state. Nothing happens until Initialize.
func New(source Source, opts ...Option) *Guard {
	g := &Guard{
		source: source,
		logger: slog.Default(),
		state:  unknownState(),
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Initialize starts resolving the session: one GetSession query in the background
// and one change subscription. Whichever answers first ends the loading state.
// A guard that is already initialised is torn down first, so at most one
// subscription is ever open.
func (g *Guard) Initialize(ctx context.Context) {
	g.initMu.Lock()
	defer g.initMu.Unlock()

	g.Teardown()

	g.mu.Lock()
	gen := g.gen
	g.active = true
	g.seq++
	querySeq := g.seq
	queryCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.mu.Unlock()

	sub := g.source.OnSessionChange(func(ev identity.Event) {
		g.notify(gen, ev)
	})

	g.mu.Lock()
	if g.gen != gen {
		// Torn down while subscribing.
		g.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	g.sub = sub
	g.mu.Unlock()

	go g.query(queryCtx, gen, querySeq)
}

func (g *Guard) query(ctx context.Context, gen, seq uint64) {
	s, err := g.source.GetSession(ctx)
	if err != nil {
		g.logger.Warn("Initial session query failed, treating client as signed out", "error", err)
		s = nil
	}

	g.mu.Lock()
	switch {
	case gen != g.gen:
		g.mu.Unlock()
		g.logger.Debug("Discarding session query result after teardown")
		return
	case seq <= g.applied:
		g.mu.Unlock()
		g.logger.Debug("Discarding session query result superseded by a notification",
			"query_seq", seq, "applied_seq", g.applied)
		return
	}
	g.applyLocked(seq, s.Principal())
	g.mu.Unlock()

	g.publish()
}

func (g *Guard) notify(gen uint64, ev identity.Event) {
	g.mu.Lock()
	if gen != g.gen || !g.active {
		g.mu.Unlock()
		return
	}
	g.seq++
	g.applyLocked(g.seq, ev.Session.Principal())
	g.mu.Unlock()

	g.logger.Debug("Session change applied", "event", ev.Type, "authenticated", ev.Session.Principal() != nil)
	g.publish()
}

func (g *Guard) applyLocked(seq uint64, p *identity.Principal) {
	g.applied = seq
	g.state = resolvedState(p)
	if p != nil {
		// A new anonymous period after this one gets its own redirect.
		g.redirected = false
	}
	if !g.readyClosed {
		close(g.ready)
		g.readyClosed = true
	}
}

func (g *Guard) publish() {
	if len(g.listeners) == 0 {
		return
	}
	g.publishMu.Lock()
	defer g.publishMu.Unlock()

	st := g.State()
	for _, fn := range g.listeners {
		fn(st)
	}
}

// State returns a snapshot of the session belief. It has no side effects.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Ready returns a channel closed once the current initialisation has resolved
// (or has been torn down).
func (g *Guard) Ready() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

// Check evaluates the guard. While loading it returns Pending. When resolved and
// anonymous it runs redirect the first time in each continuous anonymous period
// (returning Redirected) and returns Denied afterwards. Otherwise Allowed.
// redirect runs on the caller's goroutine, outside the guard's lock.
func (g *Guard) Check(redirect func()) Decision {
	g.mu.Lock()
	switch Decide(g.state.IsLoading, g.state.IsAuthenticated) {
	case OutcomePending:
		g.mu.Unlock()
		return Pending
	case OutcomeAllow:
		g.mu.Unlock()
		return Allowed
	}
	if g.redirected {
		g.mu.Unlock()
		return Denied
	}
	g.redirected = true
	g.mu.Unlock()

	if redirect != nil {
		redirect()
	}
	return Redirected
}

// Teardown closes the subscription, abandons any in-flight query and resets the
// state to Unknown. It is a no-op on a guard that was never initialised.
func (g *Guard) Teardown() {
	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		return
	}
	sub, cancel := g.sub, g.cancel
	g.sub, g.cancel = nil, nil
	g.active = false
	g.gen++
	g.state = unknownState()
	g.applied = 0
	g.redirected = false
	if !g.readyClosed {
		close(g.ready)
	}
	g.ready = make(chan struct{})
	g.readyClosed = false
	g.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	g.publish()
}
