package notify

import (
	"context"
	"errors"
	"sync"

	"hazardsync/internal/errs"
	"hazardsync/internal/ports"
)

// Broadcaster is an in-process ChangeSignals. Each subscriber owns a
// one-slot channel, so a burst of notifications collapses into one wakeup.
type Broadcaster struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan struct{}
	closed bool
}

var _ ports.ChangeSignals = (*Broadcaster)(nil)

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]chan struct{})}
}

func (b *Broadcaster) Notify(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan struct{}, func(), error) {
	if ctx == nil {
		return nil, nil, errors.New("context is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, errors.New("change signals closed")
	}

	id := b.nextID
	b.nextID++
	ch := make(chan struct{}, 1)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel, nil
}

// Close ends every subscription. Subscribers observe a closed channel.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	return nil
}

func (b *Broadcaster) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
