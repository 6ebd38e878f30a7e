package hazards

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/infrastructure/cache"
	"hazardsync/internal/infrastructure/persistence/sqlite/model"
	"hazardsync/internal/infrastructure/persistence/sqlite/repository"
	"hazardsync/internal/infrastructure/persistence/sqlite/uow"
	"hazardsync/internal/infrastructure/tokenstore"
	"hazardsync/internal/ports"
)

type fakeRemote struct {
	mu sync.Mutex

	notices  []hazard.ChangeNotice
	next     hazard.Token
	listErr  error
	records  map[hazard.Identity]hazard.Record
	fetchErr error
	queryErr error

	submitErr error
	itemErr   error
	submitted []ports.Batch
	sinceSeen []hazard.Token
}

var _ ports.RemoteDatabase = (*fakeRemote)(nil)

func (f *fakeRemote) ListChangedIdentities(_ context.Context, since hazard.Token) ([]hazard.ChangeNotice, hazard.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinceSeen = append(f.sinceSeen, since.Clone())
	if f.listErr != nil {
		return nil, nil, f.listErr
	}
	return append([]hazard.ChangeNotice(nil), f.notices...), f.next.Clone(), nil
}

func (f *fakeRemote) FetchRecords(_ context.Context, ids []hazard.Identity) (map[hazard.Identity]hazard.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make(map[hazard.Identity]hazard.Record, len(ids))
	for _, id := range ids {
		if rec, ok := f.records[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func (f *fakeRemote) SubmitBatch(_ context.Context, batch ports.Batch) (ports.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, batch)
	if f.submitErr != nil {
		return ports.BatchResult{}, f.submitErr
	}
	var result ports.BatchResult
	for _, rec := range batch.Saves {
		result.Saved = append(result.Saved, ports.SaveResult{Record: rec, Err: f.itemErr})
	}
	for _, resolution := range batch.Resolutions {
		result.Resolved = append(result.Resolved, ports.ResolutionResult{Owner: resolution.Owner, Err: f.itemErr})
	}
	for _, id := range batch.Deletes {
		result.Deleted = append(result.Deleted, ports.DeleteResult{ID: id, Err: f.itemErr})
	}
	return result, nil
}

func (f *fakeRemote) QueryRecords(_ context.Context, _ hazard.RecordQuery) ([]hazard.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := make([]hazard.Record, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeRemote) ListResolutions(_ context.Context, id hazard.Identity) ([]hazard.Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []hazard.Resolution
	for _, batch := range f.submitted {
		for _, resolution := range batch.Resolutions {
			if resolution.Owner == id {
				out = append(out, resolution)
			}
		}
	}
	return out, nil
}

// interleavingRemote runs a one-shot hook after a read returns and before
// the caller sees the result.
type interleavingRemote struct {
	ports.RemoteDatabase

	mu         sync.Mutex
	afterQuery func()
	afterFetch func()
}

func (r *interleavingRemote) QueryRecords(ctx context.Context, query hazard.RecordQuery) ([]hazard.Record, error) {
	records, err := r.RemoteDatabase.QueryRecords(ctx, query)
	r.runOnce(&r.afterQuery)
	return records, err
}

func (r *interleavingRemote) FetchRecords(ctx context.Context, ids []hazard.Identity) (map[hazard.Identity]hazard.Record, error) {
	records, err := r.RemoteDatabase.FetchRecords(ctx, ids)
	r.runOnce(&r.afterFetch)
	return records, err
}

func (r *interleavingRemote) runOnce(hook *func()) {
	r.mu.Lock()
	fn := *hook
	*hook = nil
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type memoryTokens struct {
	mu     sync.Mutex
	token  hazard.Token
	setErr error
	sets   int
}

var _ ports.TokenStore = (*memoryTokens)(nil)

func (m *memoryTokens) Get(context.Context) (hazard.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token.Clone(), nil
}

func (m *memoryTokens) Set(_ context.Context, token hazard.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.token = token.Clone()
	return nil
}

func (m *memoryTokens) current() hazard.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token.Clone()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// recordingListener keeps every delivered batch.
type recordingListener struct {
	mu      sync.Mutex
	batches [][]hazard.ChangeEvent
}

func (l *recordingListener) Apply(events []hazard.ChangeEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches = append(l.batches, events)
}

func (l *recordingListener) delivered() [][]hazard.ChangeEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]hazard.ChangeEvent(nil), l.batches...)
}

type sqliteStore struct {
	db     *gorm.DB
	remote *repository.RemoteRepository
	unit   *uow.UnitOfWork
	tokens *tokenstore.Store
}

func newSQLiteStore(t *testing.T) sqliteStore {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "hazards.sqlite")+"?_pragma=busy_timeout(5000)"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	return sqliteStore{
		db:     db,
		remote: repository.NewRemoteRepository(db),
		unit:   uow.NewUnitOfWork(db),
		tokens: tokenstore.New(cache.NewSQLiteCache(db)),
	}
}

func eventStrings(events []hazard.ChangeEvent) []string {
	out := make([]string, 0, len(events))
	for _, event := range events {
		out = append(out, event.String())
	}
	return out
}

func recordIDs(records []hazard.Record) []hazard.Identity {
	out := make([]hazard.Identity, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ID)
	}
	return out
}
