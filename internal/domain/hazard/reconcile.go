package hazard

import "slices"

// Reconciler applies change batches to one view. It is a pure function of
// its inputs and is total: every event is either applied or ignored.
type Reconciler struct {
	spec ViewSpec
}

func NewReconciler(spec ViewSpec) Reconciler {
	return Reconciler{spec: spec}
}

func (r Reconciler) Spec() ViewSpec { return r.spec }

// Apply returns the view obtained by applying events in order to view.
// The input slice is not modified. The result is sorted once, after the
// whole batch.
func (r Reconciler) Apply(view []Record, events []ChangeEvent) []Record {
	out := make([]Record, len(view), len(view)+len(events))
	copy(out, view)

	index := make(map[Identity]int, len(out))
	for i, rec := range out {
		index[rec.ID] = i
	}

	remove := func(id Identity) {
		pos, ok := index[id]
		if !ok {
			return
		}
		last := len(out) - 1
		out[pos] = out[last]
		index[out[pos].ID] = pos
		out = out[:last]
		delete(index, id)
	}

	upsert := func(rec Record) {
		if pos, ok := index[rec.ID]; ok {
			out[pos] = rec
			return
		}
		out = append(out, rec)
		index[rec.ID] = len(out) - 1
	}

	for _, event := range events {
		switch event.Kind() {
		case KindCreated:
			rec, _ := event.Record()
			if !r.spec.Filter(rec) {
				continue
			}
			// A duplicate creation notice for a present id is an update.
			upsert(rec)
		case KindUpdated:
			rec, _ := event.Record()
			if r.spec.Filter(rec) {
				upsert(rec)
			} else {
				remove(rec.ID)
			}
		case KindDeleted:
			remove(event.ID())
		}
	}

	slices.SortFunc(out, r.spec.Compare)
	return out
}

// Seed builds a view from an unordered record set, such as the result of
// the initial remote query.
func (r Reconciler) Seed(records []Record) []Record {
	events := make([]ChangeEvent, 0, len(records))
	for _, rec := range records {
		events = append(events, Created(rec))
	}
	return r.Apply(nil, events)
}
