package hazards

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hazardsync/internal/domain/hazard"
)

func TestViewSnapshotIsPointInTimeCopy(t *testing.T) {
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	view := NewView(hazard.ActiveView(), []hazard.Record{
		{ID: "r2", Description: "second", CreatedAt: created.Add(time.Minute)},
		{ID: "r1", Description: "first", CreatedAt: created, Location: &hazard.GeoPoint{Latitude: 1}},
		{ID: "rx", Description: "closed", CreatedAt: created, IsResolved: true},
	})

	snapshot, version := view.VersionedSnapshot()
	require.Equal(t, []hazard.Identity{"r1", "r2"}, recordIDs(snapshot))
	assert.Zero(t, version)

	snapshot[0].Location.Latitude = 99
	view.Apply([]hazard.ChangeEvent{hazard.Deleted("r2")})

	assert.Equal(t, []hazard.Identity{"r1", "r2"}, recordIDs(snapshot))
	current := view.Snapshot()
	assert.Equal(t, []hazard.Identity{"r1"}, recordIDs(current))
	assert.Equal(t, 1.0, current[0].Location.Latitude)
	assert.Equal(t, uint64(1), view.Version())
}

func TestViewWatchSignalsAfterApply(t *testing.T) {
	view := NewView(hazard.ResolvedView(), nil)
	changed, stop := view.Watch()
	defer stop()

	view.Apply([]hazard.ChangeEvent{hazard.Updated(hazard.Record{ID: "r1", Description: "x", IsResolved: true})})

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatalf("Watch() did not signal")
	}
	assert.Equal(t, 1, view.Len())
	assert.Equal(t, hazard.ViewResolved, view.Name())
}

func TestRecordWatcherFollowsUpdatesUntilDeleted(t *testing.T) {
	watcher := NewRecordWatcher(hazard.Record{ID: "r1", Description: "before"})

	watcher.Apply([]hazard.ChangeEvent{
		hazard.Updated(hazard.Record{ID: "other", Description: "ignored"}),
		hazard.Updated(hazard.Record{ID: "r1", Description: "after"}),
	})
	current, ok := watcher.Current()
	require.True(t, ok)
	assert.Equal(t, "after", current.Description)

	select {
	case <-watcher.Changed():
	default:
		t.Fatalf("Changed() not signalled")
	}

	watcher.Apply([]hazard.ChangeEvent{hazard.Deleted("r1")})
	_, ok = watcher.Current()
	assert.False(t, ok)

	watcher.Apply([]hazard.ChangeEvent{hazard.Updated(hazard.Record{ID: "r1", Description: "late"})})
	_, ok = watcher.Current()
	assert.False(t, ok)
}
