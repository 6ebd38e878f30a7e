package hazards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/errs"
	"hazardsync/internal/ports"
)

var ErrEmptyPatch = errors.New("nothing to update")

// Service is the entry point for views and mutations. Local mutations are
// published to the fan-out only after the remote store accepted them.
type Service struct {
	remote  ports.RemoteDatabase
	fetcher *ChangeFetcher
	signals ports.ChangeSignals
	uow     ports.UnitOfWork
	fanout  *Fanout

	fetchMu sync.Mutex
}

// NewService wires the sync engine. signals may be nil, in which case
// changes are only discovered by polling.
func NewService(remote ports.RemoteDatabase, tokens ports.TokenStore, signals ports.ChangeSignals, uow ports.UnitOfWork, fanout *Fanout) *Service {
	return &Service{
		remote:  remote,
		fetcher: NewChangeFetcher(remote, tokens),
		signals: signals,
		uow:     uow,
		fanout:  fanout,
	}
}

// ReportInput holds the user-editable fields of a new report.
type ReportInput struct {
	Description string
	Location    *hazard.GeoPoint
	Photo       *hazard.AssetRef
	IsEmergency bool
}

func (in ReportInput) record() hazard.Record {
	rec := hazard.Record{
		Description: strings.TrimSpace(in.Description),
		Location:    in.Location,
		Photo:       in.Photo,
		IsEmergency: in.IsEmergency,
	}
	return rec.Clone()
}

// ReportPatch changes only the fields that are set.
type ReportPatch struct {
	Description *string
	Location    *hazard.GeoPoint
	Photo       *hazard.AssetRef
	IsEmergency *bool
}

func (p ReportPatch) empty() bool {
	return p.Description == nil && p.Location == nil && p.Photo == nil && p.IsEmergency == nil
}

type ResolveInput struct {
	StaffMemberName string
	Description     string
}

type SyncResult struct {
	Events []hazard.ChangeEvent
	Token  hazard.Token
}

func (s *Service) Fanout() *Fanout { return s.fanout }

func (s *Service) CreateReport(ctx context.Context, input ReportInput) (hazard.Record, error) {
	if err := checkContext(ctx); err != nil {
		return hazard.Record{}, err
	}
	rec := input.record()
	if err := rec.ValidateContent(); err != nil {
		return hazard.Record{}, err
	}

	result, err := s.submit(ctx, "create report", ports.Batch{Saves: []hazard.Record{rec}})
	if err != nil {
		return hazard.Record{}, err
	}
	saved := result.Saved[0].Record

	s.publishLocal(ctx, hazard.Created(saved))
	return saved, nil
}

func (s *Service) UpdateReport(ctx context.Context, id hazard.Identity, patch ReportPatch) (hazard.Record, error) {
	if err := checkContext(ctx); err != nil {
		return hazard.Record{}, err
	}
	if patch.empty() {
		return hazard.Record{}, ErrEmptyPatch
	}

	rec, err := s.GetReport(ctx, id)
	if err != nil {
		return hazard.Record{}, err
	}
	if patch.Description != nil {
		rec.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Location != nil {
		loc := *patch.Location
		rec.Location = &loc
	}
	if patch.Photo != nil {
		photo := *patch.Photo
		rec.Photo = &photo
	}
	if patch.IsEmergency != nil {
		rec.IsEmergency = *patch.IsEmergency
	}
	if err := rec.ValidateContent(); err != nil {
		return hazard.Record{}, err
	}

	result, err := s.submit(ctx, "update report", ports.Batch{Saves: []hazard.Record{rec}})
	if err != nil {
		return hazard.Record{}, err
	}
	saved := result.Saved[0].Record

	s.publishLocal(ctx, hazard.Updated(saved))
	return saved, nil
}

func (s *Service) DeleteReport(ctx context.Context, id hazard.Identity) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(id.String()) == "" {
		return hazard.ErrIdentityRequired
	}

	if _, err := s.submit(ctx, "delete report", ports.Batch{Deletes: []hazard.Identity{id}}); err != nil {
		return err
	}

	s.publishLocal(ctx, hazard.Deleted(id))
	return nil
}

// ResolveReport marks the report resolved and records who resolved it, in
// one batch. Only the report update is published; resolutions have no
// view of their own.
func (s *Service) ResolveReport(ctx context.Context, id hazard.Identity, input ResolveInput) (hazard.Record, error) {
	if err := checkContext(ctx); err != nil {
		return hazard.Record{}, err
	}

	resolution := hazard.Resolution{
		Description:     strings.TrimSpace(input.Description),
		StaffMemberName: strings.TrimSpace(input.StaffMemberName),
		Owner:           id,
	}
	if err := resolution.Validate(); err != nil {
		return hazard.Record{}, err
	}

	rec, err := s.GetReport(ctx, id)
	if err != nil {
		return hazard.Record{}, err
	}
	if rec.IsResolved {
		return hazard.Record{}, fmt.Errorf("%w: %s", hazard.ErrAlreadyResolved, id)
	}
	rec.IsResolved = true

	result, err := s.submit(ctx, "resolve report", ports.Batch{
		Saves:       []hazard.Record{rec},
		Resolutions: []hazard.Resolution{resolution},
	})
	if err != nil {
		return hazard.Record{}, err
	}
	saved := result.Saved[0].Record

	s.publishLocal(ctx, hazard.Updated(saved))
	return saved, nil
}

// ImportReports creates all reports or none.
func (s *Service) ImportReports(ctx context.Context, inputs []ReportInput) ([]hazard.Record, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	batch := ports.Batch{Saves: make([]hazard.Record, 0, len(inputs))}
	for i, input := range inputs {
		rec := input.record()
		if err := rec.ValidateContent(); err != nil {
			return nil, errs.Wrapf(err, "report %d", i+1)
		}
		batch.Saves = append(batch.Saves, rec)
	}

	var saved []hazard.Record
	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		result, err := s.remote.SubmitBatch(txCtx, batch)
		if err != nil {
			return err
		}
		if err := result.FirstError(); err != nil {
			return err
		}
		saved = make([]hazard.Record, 0, len(result.Saved))
		for _, item := range result.Saved {
			saved = append(saved, item.Record)
		}
		return nil
	})
	if err != nil {
		return nil, errs.Mark(errs.Wrap(err, "import reports"), errs.ErrMutationFailed)
	}

	events := make([]hazard.ChangeEvent, 0, len(saved))
	for _, rec := range saved {
		events = append(events, hazard.Created(rec))
	}
	s.publishLocal(ctx, events...)
	return saved, nil
}

func (s *Service) GetReport(ctx context.Context, id hazard.Identity) (hazard.Record, error) {
	if err := checkContext(ctx); err != nil {
		return hazard.Record{}, err
	}
	if strings.TrimSpace(id.String()) == "" {
		return hazard.Record{}, hazard.ErrIdentityRequired
	}

	records, err := s.remote.FetchRecords(ctx, []hazard.Identity{id})
	if err != nil {
		return hazard.Record{}, errs.Wrap(err, "fetch report")
	}
	rec, ok := records[id]
	if !ok {
		return hazard.Record{}, fmt.Errorf("%w: %s", ports.ErrRecordNotFound, id)
	}
	return rec, nil
}

// ListResolutions returns the resolution history of one report.
func (s *Service) ListResolutions(ctx context.Context, id hazard.Identity) ([]hazard.Resolution, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id.String()) == "" {
		return nil, hazard.ErrIdentityRequired
	}

	resolutions, err := s.remote.ListResolutions(ctx, id)
	if err != nil {
		return nil, errs.Wrapf(err, "list resolutions of %s", id)
	}
	return resolutions, nil
}

// ListReports loads a view's contents straight from the remote store,
// without registering anything.
func (s *Service) ListReports(ctx context.Context, spec hazard.ViewSpec) ([]hazard.Record, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	records, err := s.remote.QueryRecords(ctx, spec.Query)
	if err != nil {
		return nil, errs.Wrapf(err, "query %s reports", spec.Name)
	}
	return hazard.NewReconciler(spec).Seed(records), nil
}

// RegisterView loads the view's initial contents and subscribes it to the
// fan-out. The subscription is taken before the load so batches delivered
// meanwhile are replayed onto the loaded contents. Callers must Deregister
// the subscription on teardown.
func (s *Service) RegisterView(ctx context.Context, spec hazard.ViewSpec) (*View, Subscription, error) {
	pending := &seededListener{}
	sub := s.fanout.Register(pending)

	records, err := s.ListReports(ctx, spec)
	if err != nil {
		s.fanout.Deregister(sub)
		return nil, Subscription{}, err
	}
	view := NewView(spec, records)
	replayed := pending.attach(view)

	logging.Debug(ctx, "view registered",
		slog.String("view", spec.Name),
		slog.Int("records", view.Len()),
		slog.Int("replayed_batches", replayed),
	)
	return view, sub, nil
}

func (s *Service) WatchRecord(ctx context.Context, id hazard.Identity) (*RecordWatcher, Subscription, error) {
	pending := &seededListener{}
	sub := s.fanout.Register(pending)

	rec, err := s.GetReport(ctx, id)
	if err != nil {
		s.fanout.Deregister(sub)
		return nil, Subscription{}, err
	}
	watcher := NewRecordWatcher(rec)
	pending.attach(watcher)
	return watcher, sub, nil
}

func (s *Service) Deregister(sub Subscription) bool {
	return s.fanout.Deregister(sub)
}

func (s *Service) Snapshot(view *View) []hazard.Record {
	return view.Snapshot()
}

// SyncOnce fetches remote changes and hands them to the fan-out. Calls are
// serialized so only one fetch commits a token at a time.
func (s *Service) SyncOnce(ctx context.Context) (SyncResult, error) {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	events, token, err := s.fetcher.FetchChanges(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	if len(events) > 0 && !s.fanout.Publish(events) {
		logging.Debug(ctx, "no listeners, dropped fetched batch", slog.Int("events", len(events)))
	}
	return SyncResult{Events: events, Token: token}, nil
}

func (s *Service) submit(ctx context.Context, op string, batch ports.Batch) (ports.BatchResult, error) {
	result, err := s.remote.SubmitBatch(ctx, batch)
	if err == nil {
		err = result.FirstError()
	}
	if err != nil {
		failed := errs.Mark(errs.Wrap(err, op), errs.ErrMutationFailed)
		logging.Warn(ctx, "mutation failed",
			slog.String("op", op),
			slog.Any("err", errs.Loggable(failed)),
		)
		return ports.BatchResult{}, failed
	}
	return result, nil
}

func (s *Service) publishLocal(ctx context.Context, events ...hazard.ChangeEvent) {
	s.fanout.Publish(events)
	if s.signals == nil {
		return
	}
	if err := s.signals.Notify(ctx); err != nil {
		logging.Warn(ctx, "notify change signal failed", slog.Any("err", errs.Loggable(err)))
	}
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	return nil
}
