package hazards

import (
	"sync"

	"hazardsync/internal/domain/hazard"
)

// View is one live, ordered projection of hazard reports. It is a fan-out
// Listener; readers take point-in-time snapshots.
type View struct {
	reconciler hazard.Reconciler

	mu        sync.RWMutex
	records   []hazard.Record
	version   uint64
	watchers  map[uint64]chan struct{}
	nextWatch uint64
}

var _ Listener = (*View)(nil)

func NewView(spec hazard.ViewSpec, initial []hazard.Record) *View {
	reconciler := hazard.NewReconciler(spec)
	return &View{
		reconciler: reconciler,
		records:    reconciler.Seed(initial),
		watchers:   make(map[uint64]chan struct{}),
	}
}

func (v *View) Name() string { return v.reconciler.Spec().Name }

func (v *View) Spec() hazard.ViewSpec { return v.reconciler.Spec() }

func (v *View) Apply(events []hazard.ChangeEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.records = v.reconciler.Apply(v.records, events)
	v.version++
	for _, ch := range v.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (v *View) Snapshot() []hazard.Record {
	records, _ := v.VersionedSnapshot()
	return records
}

// VersionedSnapshot returns a deep copy of the view and the number of
// batches applied so far.
func (v *View) VersionedSnapshot() ([]hazard.Record, uint64) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]hazard.Record, 0, len(v.records))
	for _, rec := range v.records {
		out = append(out, rec.Clone())
	}
	return out, v.version
}

func (v *View) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.records)
}

// Watch returns a channel that receives after each applied batch. Wakeups
// coalesce; call the returned func to stop watching.
func (v *View) Watch() (<-chan struct{}, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.nextWatch++
	id := v.nextWatch
	ch := make(chan struct{}, 1)
	v.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			delete(v.watchers, id)
		})
	}
}
