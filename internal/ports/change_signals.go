package ports

import "context"

// ChangeSignals is the "something changed remotely" push channel. Signals
// carry no payload and may be coalesced; receivers respond by fetching.
type ChangeSignals interface {
	Notify(ctx context.Context) error
	// Subscribe returns a channel that receives a value after one or more
	// remote changes, and a func that cancels the subscription.
	Subscribe(ctx context.Context) (<-chan struct{}, func(), error)
}
