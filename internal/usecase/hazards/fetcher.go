package hazards

import (
	"context"
	"errors"
	"log/slog"

	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/errs"
	"hazardsync/internal/ports"
)

// ChangeFetcher turns the remote change feed into typed events. It is the
// only writer of the token store.
type ChangeFetcher struct {
	remote ports.RemoteDatabase
	tokens ports.TokenStore
}

func NewChangeFetcher(remote ports.RemoteDatabase, tokens ports.TokenStore) *ChangeFetcher {
	return &ChangeFetcher{remote: remote, tokens: tokens}
}

// FetchChanges returns the events since the stored token, deletions first,
// and the token it persisted. On error no events are returned and the
// stored token is unchanged, so the next call retries the same window.
// Callers must not run two fetches concurrently.
func (f *ChangeFetcher) FetchChanges(ctx context.Context) ([]hazard.ChangeEvent, hazard.Token, error) {
	if ctx == nil {
		return nil, nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, errs.Wrap(err, "check context")
	}

	since, err := f.tokens.Get(ctx)
	if err != nil {
		return nil, nil, errs.Wrap(err, "read change token")
	}

	notices, next, err := f.remote.ListChangedIdentities(ctx, since)
	if err != nil {
		return nil, nil, errs.Wrap(err, "list changed identities")
	}
	if len(notices) == 0 {
		return nil, since, nil
	}

	var (
		deletedIDs []hazard.Identity
		fetchIDs   []hazard.Identity
		reasons    = make(map[hazard.Identity]hazard.ChangeReason, len(notices))
		order      = make([]hazard.Identity, 0, len(notices))
	)
	for _, notice := range notices {
		if _, seen := reasons[notice.ID]; !seen {
			order = append(order, notice.ID)
		}
		reasons[notice.ID] = notice.Reason
	}
	for _, id := range order {
		if reasons[id] == hazard.ReasonDeleted {
			deletedIDs = append(deletedIDs, id)
		} else {
			fetchIDs = append(fetchIDs, id)
		}
	}

	events := make([]hazard.ChangeEvent, 0, len(order))
	for _, id := range deletedIDs {
		events = append(events, hazard.Deleted(id))
	}

	if len(fetchIDs) > 0 {
		payloads, err := f.remote.FetchRecords(ctx, fetchIDs)
		if err != nil {
			return nil, nil, errs.Wrap(err, "fetch changed records")
		}

		for _, id := range fetchIDs {
			rec, ok := payloads[id]
			if !ok {
				dropped := errs.Mark(errors.New("payload missing for changed record"), errs.ErrPartialFetch)
				logging.Warn(ctx, "drop change without payload",
					slog.String("report_id", id.String()),
					slog.String("reason", string(reasons[id])),
					slog.Any("err", errs.Loggable(dropped)),
				)
				continue
			}
			if reasons[id] == hazard.ReasonCreated {
				events = append(events, hazard.Created(rec))
			} else {
				events = append(events, hazard.Updated(rec))
			}
		}
	}

	if err := f.tokens.Set(ctx, next); err != nil {
		return nil, nil, errs.Wrap(err, "persist change token")
	}

	logging.Debug(ctx, "fetched remote changes",
		slog.Int("notices", len(notices)),
		slog.Int("events", len(events)),
	)
	return events, next.Clone(), nil
}
