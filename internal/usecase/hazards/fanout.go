package hazards

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/errs"
)

// Listener receives every delivered batch. Apply is always called from the
// fan-out actor, never concurrently with another Apply on the same Fanout.
type Listener interface {
	Apply(events []hazard.ChangeEvent)
}

type ListenerFunc func(events []hazard.ChangeEvent)

func (f ListenerFunc) Apply(events []hazard.ChangeEvent) { f(events) }

// Subscription identifies one registration. The zero value is never issued.
type Subscription struct {
	id uint64
}

func (s Subscription) Valid() bool { return s.id != 0 }

// Fanout hands published batches to a single reconciliation actor which
// delivers each batch, in publish order, to the listeners registered at
// delivery time. Listeners see a batch in registration order.
type Fanout struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]Listener

	queue     *batchQueue
	deliverMu sync.Mutex
}

func NewFanout() *Fanout {
	return &Fanout{
		listeners: make(map[uint64]Listener),
		queue:     newBatchQueue(),
	}
}

func (f *Fanout) Register(listener Listener) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	f.listeners[f.nextID] = listener
	return Subscription{id: f.nextID}
}

// Deregister reports whether sub was registered. A listener deregistered
// while a batch is being delivered is skipped for the rest of that batch.
func (f *Fanout) Deregister(sub Subscription) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.listeners[sub.id]; !ok {
		return false
	}
	delete(f.listeners, sub.id)
	return true
}

func (f *Fanout) Listeners() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.listeners)
}

// Publish queues a copy of events for delivery and reports whether it was
// queued. Empty batches, batches published while nobody listens, and
// batches published after Close are dropped.
func (f *Fanout) Publish(events []hazard.ChangeEvent) bool {
	if len(events) == 0 || f.Listeners() == 0 {
		return false
	}
	batch := make([]hazard.ChangeEvent, len(events))
	copy(batch, events)
	return f.queue.enqueue(batch)
}

// Drain delivers every queued batch on the calling goroutine and returns
// how many were delivered.
func (f *Fanout) Drain() int {
	delivered := 0
	for {
		batch, ok := f.queue.tryDequeue()
		if !ok {
			return delivered
		}
		f.deliver(batch)
		delivered++
	}
}

// Run is the reconciliation actor. It returns when ctx is done or the
// Fanout is closed, after delivering whatever was already queued.
func (f *Fanout) Run(ctx context.Context) error {
	for {
		f.Drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-f.queue.wait():
			if !ok {
				f.Drain()
				return nil
			}
		}
	}
}

func (f *Fanout) Close() {
	f.queue.close()
}

func (f *Fanout) deliver(batch []hazard.ChangeEvent) {
	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()

	f.mu.RLock()
	ids := make([]uint64, 0, len(f.listeners))
	for id := range f.listeners {
		ids = append(ids, id)
	}
	f.mu.RUnlock()
	slices.Sort(ids)

	for _, id := range ids {
		f.mu.RLock()
		listener, ok := f.listeners[id]
		f.mu.RUnlock()
		if !ok {
			continue
		}
		events := make([]hazard.ChangeEvent, len(batch))
		copy(events, batch)
		applySafely(listener, events)
	}
}

// seededListener holds batches delivered before its target is built and
// replays them, in order, once attach is called.
type seededListener struct {
	mu      sync.Mutex
	target  Listener
	pending [][]hazard.ChangeEvent
}

func (l *seededListener) Apply(events []hazard.ChangeEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.target == nil {
		l.pending = append(l.pending, events)
		return
	}
	l.target.Apply(events)
}

// attach replays the held batches onto target and forwards every later
// batch to it. It returns the number of batches replayed.
func (l *seededListener) attach(target Listener) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	replayed := len(l.pending)
	for _, events := range l.pending {
		applySafely(target, events)
	}
	l.pending = nil
	l.target = target
	return replayed
}

// applySafely keeps one broken listener from taking the actor down with it.
func applySafely(listener Listener, events []hazard.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			err := errs.WithStack(fmt.Errorf("listener panicked: %v", r))
			logging.Error(logging.WithComponent(context.Background(), "hazards.fanout"), "listener apply failed",
				slog.Int("events", len(events)),
				slog.Any("err", errs.Loggable(err)),
			)
		}
	}()
	listener.Apply(events)
}
