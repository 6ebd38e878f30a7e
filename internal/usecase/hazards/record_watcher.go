package hazards

import (
	"sync"

	"hazardsync/internal/domain/hazard"
)

// RecordWatcher follows a single report, as a details screen does.
type RecordWatcher struct {
	id hazard.Identity

	mu      sync.RWMutex
	current hazard.Record
	gone    bool
	changed chan struct{}
}

var _ Listener = (*RecordWatcher)(nil)

func NewRecordWatcher(initial hazard.Record) *RecordWatcher {
	return &RecordWatcher{
		id:      initial.ID,
		current: initial.Clone(),
		changed: make(chan struct{}, 1),
	}
}

func (w *RecordWatcher) ID() hazard.Identity { return w.id }

func (w *RecordWatcher) Apply(events []hazard.ChangeEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	touched := false
	for _, event := range events {
		if w.gone || event.ID() != w.id {
			continue
		}
		if event.Kind() == hazard.KindDeleted {
			w.gone = true
			touched = true
			continue
		}
		if rec, ok := event.Record(); ok {
			w.current = rec
			touched = true
		}
	}

	if touched {
		select {
		case w.changed <- struct{}{}:
		default:
		}
	}
}

// Current returns the latest known state, or false once the report has
// been deleted.
func (w *RecordWatcher) Current() (hazard.Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.gone {
		return hazard.Record{}, false
	}
	return w.current.Clone(), true
}

func (w *RecordWatcher) Changed() <-chan struct{} { return w.changed }
