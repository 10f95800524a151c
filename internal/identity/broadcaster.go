package identity

import (
	"sort"
	"sync"
)

// Subscription is a handle on an OnSessionChange registration.
type Subscription interface {
	// Unsubscribe stops delivery. Calling it more than once is a no-op.
	Unsubscribe()
}

type subscription struct {
	once sync.Once
	stop func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.stop)
}

// Broadcaster fans session events out to subscribers in emission order.
// Callbacks run synchronously on the emitting goroutine and must not emit.
type Broadcaster struct {
	mu     sync.Mutex
	next   uint64
	subs   map[uint64]func(Event)
	emitMu sync.Mutex
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]func(Event))}
}

// Subscribe registers fn until the returned subscription is cancelled.
func (b *Broadcaster) Subscribe(fn func(Event)) Subscription {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = fn
	b.mu.Unlock()

	return &subscription{stop: func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}}
}

// Emit delivers ev to every current subscriber, oldest subscription first.
func (b *Broadcaster) Emit(ev Event) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Len returns the number of live subscriptions.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
