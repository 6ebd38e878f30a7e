package ports

import (
	"context"
	"errors"

	"hazardsync/internal/domain/hazard"
)

var ErrRecordNotFound = errors.New("hazard report not found")

// Batch is one atomic-per-item write submitted to the remote store. Items
// are applied in the order saves, resolutions, deletes.
type Batch struct {
	Saves       []hazard.Record
	Resolutions []hazard.Resolution
	Deletes     []hazard.Identity
}

// SaveResult holds the record as stored by the remote side, including the
// assigned identity, timestamps and a fresh handle.
type SaveResult struct {
	Record hazard.Record
	Err    error
}

type ResolutionResult struct {
	Owner hazard.Identity
	Err   error
}

type DeleteResult struct {
	ID  hazard.Identity
	Err error
}

// BatchResult reports per-item outcomes in submission order.
type BatchResult struct {
	Saved    []SaveResult
	Resolved []ResolutionResult
	Deleted  []DeleteResult
}

// FirstError returns the first per-item failure, or nil if every item
// succeeded.
func (r BatchResult) FirstError() error {
	for _, item := range r.Saved {
		if item.Err != nil {
			return item.Err
		}
	}
	for _, item := range r.Resolved {
		if item.Err != nil {
			return item.Err
		}
	}
	for _, item := range r.Deleted {
		if item.Err != nil {
			return item.Err
		}
	}
	return nil
}

// RemoteDatabase is the shared record store with a change feed.
type RemoteDatabase interface {
	// ListChangedIdentities returns, with one entry per identity, every
	// identity changed after since and the token to resume from.
	ListChangedIdentities(ctx context.Context, since hazard.Token) ([]hazard.ChangeNotice, hazard.Token, error)
	// FetchRecords returns the current state of ids. Identities that no
	// longer exist or fail to decode are absent from the map.
	FetchRecords(ctx context.Context, ids []hazard.Identity) (map[hazard.Identity]hazard.Record, error)
	SubmitBatch(ctx context.Context, batch Batch) (BatchResult, error)
	QueryRecords(ctx context.Context, query hazard.RecordQuery) ([]hazard.Record, error)
	// ListResolutions returns the resolutions recorded for id, oldest first.
	ListResolutions(ctx context.Context, id hazard.Identity) ([]hazard.Resolution, error)
}
