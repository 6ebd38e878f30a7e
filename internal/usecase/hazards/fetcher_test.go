package hazards

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/errs"
)

func TestFetchChangesDropsMissingPayloadAndPersistsToken(t *testing.T) {
	remote := &fakeRemote{
		notices: []hazard.ChangeNotice{
			{ID: "idA", Reason: hazard.ReasonDeleted},
			{ID: "idB", Reason: hazard.ReasonCreated},
		},
		next:    hazard.Token("t1"),
		records: map[hazard.Identity]hazard.Record{},
	}
	tokens := &memoryTokens{}

	events, token, err := NewChangeFetcher(remote, tokens).FetchChanges(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"deleted(idA)"}, eventStrings(events))
	assert.Equal(t, hazard.Token("t1"), token)
	assert.Equal(t, hazard.Token("t1"), tokens.current())
}

func TestFetchChangesTransportFailureKeepsToken(t *testing.T) {
	remote := &fakeRemote{
		listErr: errs.Mark(errors.New("connection refused"), errs.ErrTransport),
	}
	tokens := &memoryTokens{token: hazard.Token("t0")}

	events, token, err := NewChangeFetcher(remote, tokens).FetchChanges(context.Background())

	require.Error(t, err)
	assert.True(t, errs.IsRetryable(err))
	assert.ErrorIs(t, err, errs.ErrTransport)
	assert.Nil(t, events)
	assert.Nil(t, token)
	assert.Equal(t, hazard.Token("t0"), tokens.current())
	assert.Zero(t, tokens.sets)
	assert.Equal(t, []hazard.Token{hazard.Token("t0")}, remote.sinceSeen)
}

func TestFetchChangesWholeFetchFailureDiscardsDeletes(t *testing.T) {
	remote := &fakeRemote{
		notices: []hazard.ChangeNotice{
			{ID: "idA", Reason: hazard.ReasonDeleted},
			{ID: "idB", Reason: hazard.ReasonUpdated},
		},
		next:     hazard.Token("t1"),
		fetchErr: errs.Mark(errors.New("timeout"), errs.ErrTransport),
	}
	tokens := &memoryTokens{token: hazard.Token("t0")}

	events, _, err := NewChangeFetcher(remote, tokens).FetchChanges(context.Background())

	require.Error(t, err)
	assert.Empty(t, events)
	assert.Equal(t, hazard.Token("t0"), tokens.current())
}

func TestFetchChangesEmptyFeedLeavesTokenUnpersisted(t *testing.T) {
	remote := &fakeRemote{next: hazard.Token("t9")}
	tokens := &memoryTokens{token: hazard.Token("t0")}

	events, token, err := NewChangeFetcher(remote, tokens).FetchChanges(context.Background())

	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, hazard.Token("t0"), token)
	assert.Zero(t, tokens.sets)
}

func TestFetchChangesTokenWriteFailureReturnsNoEvents(t *testing.T) {
	remote := &fakeRemote{
		notices: []hazard.ChangeNotice{{ID: "idA", Reason: hazard.ReasonDeleted}},
		next:    hazard.Token("t1"),
	}
	tokens := &memoryTokens{setErr: errors.New("disk full")}

	events, token, err := NewChangeFetcher(remote, tokens).FetchChanges(context.Background())

	require.Error(t, err)
	assert.Nil(t, events)
	assert.Nil(t, token)
}

func TestFetchChangesOrdersDeletesFirstAndKeepsFeedOrder(t *testing.T) {
	remote := &fakeRemote{
		notices: []hazard.ChangeNotice{
			{ID: "c", Reason: hazard.ReasonUpdated},
			{ID: "a", Reason: hazard.ReasonCreated},
			{ID: "x", Reason: hazard.ReasonDeleted},
			{ID: "b", Reason: hazard.ReasonCreated},
			{ID: "b", Reason: hazard.ReasonUpdated},
		},
		next: hazard.Token("t1"),
		records: map[hazard.Identity]hazard.Record{
			"a": {ID: "a", Description: "a"},
			"b": {ID: "b", Description: "b"},
			"c": {ID: "c", Description: "c"},
		},
	}

	events, _, err := NewChangeFetcher(remote, &memoryTokens{}).FetchChanges(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"deleted(x)", "updated(c)", "created(a)", "updated(b)"}, eventStrings(events))
}

func TestFetchChangesAuthFailureIsNotRetryable(t *testing.T) {
	remote := &fakeRemote{listErr: errs.Mark(errors.New("token revoked"), errs.ErrAuth)}

	_, _, err := NewChangeFetcher(remote, &memoryTokens{}).FetchChanges(context.Background())

	require.Error(t, err)
	assert.False(t, errs.IsRetryable(err))
}
