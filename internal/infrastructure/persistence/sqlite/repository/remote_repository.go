package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/errs"
	"hazardsync/internal/infrastructure/persistence/sqlite/model"
	"hazardsync/internal/ports"
)

// RemoteRepository emulates the shared hazard database on SQLite. Every
// write appends to the change feed in the same transaction, so readers of
// ListChangedIdentities never observe a row without its notice.
type RemoteRepository struct {
	db *gorm.DB

	clockMu sync.Mutex
	now     func() time.Time
	last    time.Time
}

var _ ports.RemoteDatabase = (*RemoteRepository)(nil)

func NewRemoteRepository(db *gorm.DB) *RemoteRepository {
	return &RemoteRepository{db: db, now: time.Now}
}

func (r *RemoteRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

// timestamp returns a strictly increasing UTC time so modification order
// survives writes that land within the clock's resolution.
func (r *RemoteRepository) timestamp() time.Time {
	r.clockMu.Lock()
	defer r.clockMu.Unlock()

	now := r.now().UTC()
	if !now.After(r.last) {
		now = r.last.Add(time.Microsecond)
	}
	r.last = now
	return now
}

func (r *RemoteRepository) ListChangedIdentities(ctx context.Context, since hazard.Token) ([]hazard.ChangeNotice, hazard.Token, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	cursor, err := decodeCursor(since)
	if err != nil {
		logging.Warn(ctx, "change token unreadable, reading feed from the beginning",
			slog.Any("err", errs.Loggable(err)),
		)
		cursor = changeCursor{Feed: changeFeedName}
	}

	var rows []model.ChangeNotice
	if err := db.Where("seq > ?", cursor.Seq).Order("seq asc").Find(&rows).Error; err != nil {
		return nil, nil, errs.Mark(errs.Wrap(err, "query change notices"), errs.ErrTransport)
	}

	next := cursor.Seq
	order := make([]hazard.Identity, 0, len(rows))
	reasons := make(map[hazard.Identity]hazard.ChangeReason, len(rows))
	for _, row := range rows {
		next = row.Seq
		reason, err := hazard.ParseChangeReason(row.Reason)
		if err != nil {
			logging.Warn(ctx, "skip change notice with unknown reason",
				slog.Uint64("seq", row.Seq),
				slog.String("report_id", row.ReportID),
				slog.Any("err", errs.Loggable(err)),
			)
			continue
		}
		id := hazard.Identity(row.ReportID)
		if _, seen := reasons[id]; !seen {
			order = append(order, id)
		}
		reasons[id] = reason
	}

	token, err := encodeCursor(next)
	if err != nil {
		return nil, nil, err
	}

	notices := make([]hazard.ChangeNotice, 0, len(order))
	for _, id := range order {
		notices = append(notices, hazard.ChangeNotice{ID: id, Reason: reasons[id]})
	}
	return notices, token, nil
}

func (r *RemoteRepository) FetchRecords(ctx context.Context, ids []hazard.Identity) (map[hazard.Identity]hazard.Record, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[hazard.Identity]hazard.Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}

	var rows []model.HazardReport
	if err := db.Where("report_id IN ?", keys).Find(&rows).Error; err != nil {
		return nil, errs.Mark(errs.Wrap(err, "query hazard reports"), errs.ErrTransport)
	}

	for _, row := range rows {
		rec, err := mapReport(row)
		if err != nil {
			logging.Warn(ctx, "skip undecodable hazard report",
				slog.String("report_id", row.ReportID),
				slog.Any("err", errs.Loggable(err)),
			)
			continue
		}
		out[rec.ID] = rec
	}
	return out, nil
}

func (r *RemoteRepository) QueryRecords(ctx context.Context, query hazard.RecordQuery) ([]hazard.Record, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	q := db.Model(&model.HazardReport{})
	if query.Resolved != nil {
		q = q.Where("is_resolved = ?", *query.Resolved)
	}

	var rows []model.HazardReport
	if err := q.Order("created_at asc").Order("report_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Mark(errs.Wrap(err, "query hazard reports"), errs.ErrTransport)
	}

	items := make([]hazard.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := mapReport(row)
		if err != nil {
			logging.Warn(ctx, "skip undecodable hazard report",
				slog.String("report_id", row.ReportID),
				slog.Any("err", errs.Loggable(err)),
			)
			continue
		}
		items = append(items, rec)
	}
	return items, nil
}

// SubmitBatch applies saves, then resolutions, then deletes. Each item runs
// in its own savepoint: a failing item is reported in the result and rolled
// back alone, while the rest of the batch commits.
func (r *RemoteRepository) SubmitBatch(ctx context.Context, batch ports.Batch) (ports.BatchResult, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.BatchResult{}, err
	}

	result := ports.BatchResult{
		Saved:    make([]ports.SaveResult, 0, len(batch.Saves)),
		Resolved: make([]ports.ResolutionResult, 0, len(batch.Resolutions)),
		Deleted:  make([]ports.DeleteResult, 0, len(batch.Deletes)),
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		for _, rec := range batch.Saves {
			var saved hazard.Record
			itemErr := tx.Transaction(func(itemTx *gorm.DB) error {
				var err error
				saved, err = r.saveReport(itemTx, rec)
				return err
			})
			result.Saved = append(result.Saved, ports.SaveResult{Record: saved, Err: itemErr})
		}

		for _, resolution := range batch.Resolutions {
			itemErr := tx.Transaction(func(itemTx *gorm.DB) error {
				return r.insertResolution(itemTx, resolution)
			})
			result.Resolved = append(result.Resolved, ports.ResolutionResult{Owner: resolution.Owner, Err: itemErr})
		}

		for _, id := range batch.Deletes {
			itemErr := tx.Transaction(func(itemTx *gorm.DB) error {
				return r.deleteReport(itemTx, id)
			})
			result.Deleted = append(result.Deleted, ports.DeleteResult{ID: id, Err: itemErr})
		}
		return nil
	})
	if err != nil {
		return ports.BatchResult{}, errs.Mark(errs.Wrap(err, "submit batch"), errs.ErrTransport)
	}

	return result, nil
}

func (r *RemoteRepository) saveReport(tx *gorm.DB, rec hazard.Record) (hazard.Record, error) {
	if err := rec.ValidateContent(); err != nil {
		return hazard.Record{}, err
	}
	if rec.Handle.IsZero() {
		return r.createReport(tx, rec)
	}
	return r.updateReport(tx, rec)
}

func (r *RemoteRepository) createReport(tx *gorm.DB, rec hazard.Record) (hazard.Record, error) {
	id := strings.TrimSpace(rec.ID.String())
	if id == "" {
		id = uuid.NewString()
	}

	var count int64
	if err := tx.Model(&model.HazardReport{}).Where("report_id = ?", id).Count(&count).Error; err != nil {
		return hazard.Record{}, errs.Wrap(err, "check hazard report id")
	}
	if count > 0 {
		return hazard.Record{}, fmt.Errorf("hazard report %s already exists", id)
	}

	now := formatTime(r.timestamp())
	row := toReportRow(rec)
	row.ReportID = id
	row.Version = 1
	row.CreatedAt = now
	row.ModifiedAt = now

	if err := tx.Create(&row).Error; err != nil {
		return hazard.Record{}, errs.Wrap(err, "insert hazard report")
	}
	if err := appendNotice(tx, id, hazard.ReasonCreated, now); err != nil {
		return hazard.Record{}, err
	}
	return mapReport(row)
}

// updateReport overwrites the stored fields. Concurrent edits are not
// detected: the last writer wins.
func (r *RemoteRepository) updateReport(tx *gorm.DB, rec hazard.Record) (hazard.Record, error) {
	handle, err := decodeHandle(rec.Handle)
	if err != nil {
		return hazard.Record{}, err
	}
	if rec.ID != "" && rec.ID.String() != handle.ID {
		return hazard.Record{}, fmt.Errorf("record id %s does not match handle id %s", rec.ID, handle.ID)
	}

	var existing model.HazardReport
	if err := tx.Where("report_id = ?", handle.ID).Take(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return hazard.Record{}, fmt.Errorf("%w: %s", ports.ErrRecordNotFound, handle.ID)
		}
		return hazard.Record{}, errs.Wrap(err, "load hazard report")
	}

	now := formatTime(r.timestamp())
	row := toReportRow(rec)
	row.ReportID = existing.ReportID
	row.Version = existing.Version + 1
	row.CreatedAt = existing.CreatedAt
	row.ModifiedAt = now

	if err := tx.Save(&row).Error; err != nil {
		return hazard.Record{}, errs.Wrap(err, "update hazard report")
	}
	if err := appendNotice(tx, row.ReportID, hazard.ReasonUpdated, now); err != nil {
		return hazard.Record{}, err
	}
	return mapReport(row)
}

func (r *RemoteRepository) insertResolution(tx *gorm.DB, resolution hazard.Resolution) error {
	if err := resolution.Validate(); err != nil {
		return err
	}

	var count int64
	if err := tx.Model(&model.HazardReport{}).Where("report_id = ?", resolution.Owner.String()).Count(&count).Error; err != nil {
		return errs.Wrap(err, "check resolution owner")
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", ports.ErrRecordNotFound, resolution.Owner)
	}

	row := model.HazardResolution{
		ReportID:        resolution.Owner.String(),
		Description:     resolution.Description,
		StaffMemberName: resolution.StaffMemberName,
		CreatedAt:       formatTime(r.timestamp()),
	}
	if err := tx.Create(&row).Error; err != nil {
		return errs.Wrap(err, "insert hazard resolution")
	}
	return nil
}

// deleteReport removes the report together with its resolutions.
func (r *RemoteRepository) deleteReport(tx *gorm.DB, id hazard.Identity) error {
	key := strings.TrimSpace(id.String())
	if key == "" {
		return hazard.ErrIdentityRequired
	}

	res := tx.Where("report_id = ?", key).Delete(&model.HazardReport{})
	if res.Error != nil {
		return errs.Wrap(res.Error, "delete hazard report")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ports.ErrRecordNotFound, key)
	}

	if err := tx.Where("report_id = ?", key).Delete(&model.HazardResolution{}).Error; err != nil {
		return errs.Wrap(err, "delete hazard resolutions")
	}
	return appendNotice(tx, key, hazard.ReasonDeleted, formatTime(r.timestamp()))
}

// ListResolutions returns the resolutions recorded for a report, oldest first.
func (r *RemoteRepository) ListResolutions(ctx context.Context, id hazard.Identity) ([]hazard.Resolution, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.HazardResolution
	if err := db.Where("report_id = ?", id.String()).Order("resolution_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Mark(errs.Wrap(err, "query hazard resolutions"), errs.ErrTransport)
	}

	items := make([]hazard.Resolution, 0, len(rows))
	for _, row := range rows {
		items = append(items, hazard.Resolution{
			Description:     row.Description,
			StaffMemberName: row.StaffMemberName,
			Owner:           hazard.Identity(row.ReportID),
		})
	}
	return items, nil
}

func appendNotice(tx *gorm.DB, reportID string, reason hazard.ChangeReason, createdAt string) error {
	row := model.ChangeNotice{
		ReportID:  reportID,
		Reason:    string(reason),
		CreatedAt: createdAt,
	}
	if err := tx.Create(&row).Error; err != nil {
		return errs.Wrap(err, "append change notice")
	}
	return nil
}
