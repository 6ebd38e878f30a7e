package hazards

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/errs"
	"hazardsync/internal/infrastructure/notify"
	"hazardsync/internal/ports"
)

func newSQLiteService(t *testing.T, store sqliteStore, tokens ports.TokenStore, signals ports.ChangeSignals) *Service {
	t.Helper()
	return NewService(store.remote, tokens, signals, store.unit, NewFanout())
}

func TestLocalMutationsReachBothViews(t *testing.T) {
	store := newSQLiteStore(t)
	svc := newSQLiteService(t, store, store.tokens, nil)
	ctx := context.Background()

	active, activeSub, err := svc.RegisterView(ctx, hazard.ActiveView())
	require.NoError(t, err)
	defer svc.Deregister(activeSub)
	resolved, resolvedSub, err := svc.RegisterView(ctx, hazard.ResolvedView())
	require.NoError(t, err)
	defer svc.Deregister(resolvedSub)

	first, err := svc.CreateReport(ctx, ReportInput{Description: "Spilled solvent", IsEmergency: true})
	require.NoError(t, err)
	second, err := svc.CreateReport(ctx, ReportInput{Description: "Missing guard rail"})
	require.NoError(t, err)
	svc.Fanout().Drain()

	assert.Equal(t, []hazard.Identity{first.ID, second.ID}, recordIDs(svc.Snapshot(active)))
	assert.Empty(t, svc.Snapshot(resolved))

	_, err = svc.ResolveReport(ctx, first.ID, ResolveInput{StaffMemberName: "M. Chen", Description: "Absorbed and disposed"})
	require.NoError(t, err)
	svc.Fanout().Drain()

	assert.Equal(t, []hazard.Identity{second.ID}, recordIDs(svc.Snapshot(active)))
	resolvedNow := svc.Snapshot(resolved)
	require.Equal(t, []hazard.Identity{first.ID}, recordIDs(resolvedNow))
	assert.True(t, resolvedNow[0].IsResolved)

	description := "Missing guard rail on mezzanine"
	updated, err := svc.UpdateReport(ctx, second.ID, ReportPatch{Description: &description})
	require.NoError(t, err)
	assert.True(t, updated.ModifiedAt.After(second.ModifiedAt))

	require.NoError(t, svc.DeleteReport(ctx, first.ID))
	svc.Fanout().Drain()

	activeNow := svc.Snapshot(active)
	require.Len(t, activeNow, 1)
	assert.Equal(t, description, activeNow[0].Description)
	assert.Empty(t, svc.Snapshot(resolved))
}

func TestResolveTwiceIsRejected(t *testing.T) {
	store := newSQLiteStore(t)
	svc := newSQLiteService(t, store, store.tokens, nil)
	ctx := context.Background()

	rec, err := svc.CreateReport(ctx, ReportInput{Description: "Trip hazard"})
	require.NoError(t, err)
	input := ResolveInput{StaffMemberName: "R. Singh", Description: "Taped down"}
	_, err = svc.ResolveReport(ctx, rec.ID, input)
	require.NoError(t, err)

	_, err = svc.ResolveReport(ctx, rec.ID, input)
	assert.ErrorIs(t, err, hazard.ErrAlreadyResolved)

	resolutions, err := svc.ListResolutions(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, resolutions, 1)
	assert.Equal(t, "R. Singh", resolutions[0].StaffMemberName)
	assert.Equal(t, rec.ID, resolutions[0].Owner)

	_, err = svc.ListResolutions(ctx, "")
	assert.ErrorIs(t, err, hazard.ErrIdentityRequired)
}

func TestFailedMutationPublishesNothing(t *testing.T) {
	testCases := []struct {
		name   string
		remote *fakeRemote
	}{
		{
			name:   "item rejected",
			remote: &fakeRemote{itemErr: errors.New("quota exceeded")},
		},
		{
			name:   "batch call failed",
			remote: &fakeRemote{submitErr: errs.Mark(errors.New("unreachable"), errs.ErrTransport)},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			listener := &recordingListener{}
			fanout := NewFanout()
			fanout.Register(listener)
			svc := NewService(testCase.remote, &memoryTokens{}, nil, noopUnitOfWork{}, fanout)

			_, err := svc.CreateReport(context.Background(), ReportInput{Description: "Broken glass"})
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrMutationFailed)

			err = svc.DeleteReport(context.Background(), "r1")
			assert.ErrorIs(t, err, errs.ErrMutationFailed)

			assert.Zero(t, fanout.Drain())
			assert.Empty(t, listener.delivered())
		})
	}
}

func TestDeleteUnknownReportIsMutationFailure(t *testing.T) {
	store := newSQLiteStore(t)
	svc := newSQLiteService(t, store, store.tokens, nil)

	err := svc.DeleteReport(context.Background(), "6f9619ff-8b86-d011-b42d-00c04fc964ff")

	assert.ErrorIs(t, err, errs.ErrMutationFailed)
	assert.ErrorIs(t, err, ports.ErrRecordNotFound)
}

func TestValidationFailsBeforeSubmitting(t *testing.T) {
	remote := &fakeRemote{}
	svc := NewService(remote, &memoryTokens{}, nil, noopUnitOfWork{}, NewFanout())

	_, err := svc.CreateReport(context.Background(), ReportInput{Description: "  "})
	assert.ErrorIs(t, err, hazard.ErrDescriptionRequired)

	_, err = svc.ResolveReport(context.Background(), "r1", ResolveInput{Description: "done"})
	assert.ErrorIs(t, err, hazard.ErrStaffMemberRequired)

	assert.Empty(t, remote.submitted)
}

// Two installations share one remote store but keep their own tokens.
func TestSyncMirrorsRemoteChangesIntoViews(t *testing.T) {
	store := newSQLiteStore(t)
	writer := newSQLiteService(t, store, store.tokens, nil)
	readerTokens := &memoryTokens{}
	reader := newSQLiteService(t, store, readerTokens, nil)
	ctx := context.Background()

	active, sub, err := reader.RegisterView(ctx, hazard.ActiveView())
	require.NoError(t, err)
	defer reader.Deregister(sub)
	resolved, resolvedSub, err := reader.RegisterView(ctx, hazard.ResolvedView())
	require.NoError(t, err)
	defer reader.Deregister(resolvedSub)

	rec, err := writer.CreateReport(ctx, ReportInput{Description: "Gas smell near boiler", IsEmergency: true})
	require.NoError(t, err)

	result, err := reader.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"created(" + rec.ID.String() + ")"}, eventStrings(result.Events))
	reader.Fanout().Drain()
	assert.Equal(t, []hazard.Identity{rec.ID}, recordIDs(active.Snapshot()))

	_, err = writer.ResolveReport(ctx, rec.ID, ResolveInput{StaffMemberName: "Facilities", Description: "Valve replaced"})
	require.NoError(t, err)
	_, err = reader.SyncOnce(ctx)
	require.NoError(t, err)
	reader.Fanout().Drain()
	assert.Empty(t, active.Snapshot())
	assert.Equal(t, []hazard.Identity{rec.ID}, recordIDs(resolved.Snapshot()))

	require.NoError(t, writer.DeleteReport(ctx, rec.ID))
	_, err = reader.SyncOnce(ctx)
	require.NoError(t, err)
	reader.Fanout().Drain()
	assert.Empty(t, resolved.Snapshot())

	tokenBefore := readerTokens.current()
	result, err = reader.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Events)
	assert.Equal(t, tokenBefore, readerTokens.current())
}

func TestRegisterViewKeepsChangesSyncedDuringInitialLoad(t *testing.T) {
	store := newSQLiteStore(t)
	remote := &interleavingRemote{RemoteDatabase: store.remote}
	svc := NewService(remote, store.tokens, nil, store.unit, NewFanout())
	writer := newSQLiteService(t, store, &memoryTokens{}, nil)
	ctx := context.Background()

	var created hazard.Record
	remote.afterQuery = func() {
		var err error
		created, err = writer.CreateReport(ctx, ReportInput{Description: "Exposed wiring in stairwell"})
		require.NoError(t, err)
		_, err = svc.SyncOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, svc.Fanout().Drain())
	}

	active, sub, err := svc.RegisterView(ctx, hazard.ActiveView())
	require.NoError(t, err)
	defer svc.Deregister(sub)
	require.NotEmpty(t, created.ID)

	svc.Fanout().Drain()
	assert.Equal(t, []hazard.Identity{created.ID}, recordIDs(active.Snapshot()))

	result, err := svc.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Events)
	svc.Fanout().Drain()
	assert.Equal(t, []hazard.Identity{created.ID}, recordIDs(active.Snapshot()))
}

func TestRegisterViewFailureLeavesNoListener(t *testing.T) {
	remote := &fakeRemote{queryErr: errors.New("offline")}
	svc := NewService(remote, &memoryTokens{}, nil, noopUnitOfWork{}, NewFanout())

	_, sub, err := svc.RegisterView(context.Background(), hazard.ActiveView())
	require.Error(t, err)
	assert.False(t, sub.Valid())
	assert.Zero(t, svc.Fanout().Listeners())
}

func TestSyncWithoutListenersStillAdvancesToken(t *testing.T) {
	store := newSQLiteStore(t)
	writer := newSQLiteService(t, store, &memoryTokens{}, nil)
	reader := newSQLiteService(t, store, store.tokens, nil)
	ctx := context.Background()

	_, err := writer.CreateReport(ctx, ReportInput{Description: "Wobbly scaffold"})
	require.NoError(t, err)

	_, err = reader.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, reader.Fanout().Drain())

	token, err := store.tokens.Get(ctx)
	require.NoError(t, err)
	assert.False(t, token.IsEmpty())

	result, err := reader.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Events)
}

func TestLocalAndRemoteCopiesOfSameChangeConverge(t *testing.T) {
	store := newSQLiteStore(t)
	svc := newSQLiteService(t, store, store.tokens, nil)
	ctx := context.Background()

	active, sub, err := svc.RegisterView(ctx, hazard.ActiveView())
	require.NoError(t, err)
	defer svc.Deregister(sub)

	rec, err := svc.CreateReport(ctx, ReportInput{Description: "Icy walkway"})
	require.NoError(t, err)
	_, err = svc.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, svc.Fanout().Drain())

	assert.Equal(t, []hazard.Identity{rec.ID}, recordIDs(active.Snapshot()))
}

func TestWatchRecordTracksOneReport(t *testing.T) {
	store := newSQLiteStore(t)
	svc := newSQLiteService(t, store, store.tokens, nil)
	ctx := context.Background()

	rec, err := svc.CreateReport(ctx, ReportInput{Description: "Loose tile"})
	require.NoError(t, err)
	watcher, sub, err := svc.WatchRecord(ctx, rec.ID)
	require.NoError(t, err)
	defer svc.Deregister(sub)

	emergency := true
	_, err = svc.UpdateReport(ctx, rec.ID, ReportPatch{IsEmergency: &emergency})
	require.NoError(t, err)
	svc.Fanout().Drain()
	current, ok := watcher.Current()
	require.True(t, ok)
	assert.True(t, current.IsEmergency)

	require.NoError(t, svc.DeleteReport(ctx, rec.ID))
	svc.Fanout().Drain()
	_, ok = watcher.Current()
	assert.False(t, ok)

	_, _, err = svc.WatchRecord(ctx, rec.ID)
	assert.ErrorIs(t, err, ports.ErrRecordNotFound)
}

func TestWatchRecordKeepsChangesSyncedDuringInitialLoad(t *testing.T) {
	store := newSQLiteStore(t)
	remote := &interleavingRemote{RemoteDatabase: store.remote}
	svc := NewService(remote, store.tokens, nil, store.unit, NewFanout())
	writer := newSQLiteService(t, store, &memoryTokens{}, nil)
	ctx := context.Background()

	rec, err := writer.CreateReport(ctx, ReportInput{Description: "Blocked fire exit"})
	require.NoError(t, err)

	remote.afterFetch = func() {
		emergency := true
		_, err := writer.UpdateReport(ctx, rec.ID, ReportPatch{IsEmergency: &emergency})
		require.NoError(t, err)
		_, err = svc.SyncOnce(ctx)
		require.NoError(t, err)
		svc.Fanout().Drain()
	}

	watcher, sub, err := svc.WatchRecord(ctx, rec.ID)
	require.NoError(t, err)
	defer svc.Deregister(sub)

	current, ok := watcher.Current()
	require.True(t, ok)
	assert.True(t, current.IsEmergency)
}

func TestImportReportsPublishesAfterCommit(t *testing.T) {
	store := newSQLiteStore(t)
	svc := newSQLiteService(t, store, store.tokens, nil)
	ctx := context.Background()

	active, sub, err := svc.RegisterView(ctx, hazard.ActiveView())
	require.NoError(t, err)
	defer svc.Deregister(sub)

	inputs, err := ParseSeed([]byte(seedTOML))
	require.NoError(t, err)
	saved, err := svc.ImportReports(ctx, inputs)
	require.NoError(t, err)
	require.Len(t, saved, 2)

	assert.Equal(t, 1, svc.Fanout().Drain())
	assert.Equal(t, recordIDs(saved), recordIDs(active.Snapshot()))
}

func TestSignalsNotifiedAfterLocalMutation(t *testing.T) {
	store := newSQLiteStore(t)
	signals := notify.NewBroadcaster()
	defer signals.Close()
	svc := newSQLiteService(t, store, store.tokens, signals)
	ctx := context.Background()

	wake, cancel, err := signals.Subscribe(ctx)
	require.NoError(t, err)
	defer cancel()

	_, err = svc.CreateReport(ctx, ReportInput{Description: "Sharp edge on shelving"})
	require.NoError(t, err)

	select {
	case <-wake:
	default:
		t.Fatalf("no change signal after create")
	}
}
