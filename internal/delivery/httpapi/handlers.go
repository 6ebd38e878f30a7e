package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/errs"
	"hazardsync/internal/ports"
	"hazardsync/internal/usecase/hazards"
)

type locationBody struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracy_meters,omitempty"`
}

type photoBody struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type,omitempty"`
}

type createReportRequest struct {
	Description string        `json:"description"`
	Location    *locationBody `json:"location"`
	Photo       *photoBody    `json:"photo"`
	IsEmergency bool          `json:"is_emergency"`
}

// Pointers so PATCH only touches what was sent.
type updateReportRequest struct {
	Description *string       `json:"description"`
	Location    *locationBody `json:"location"`
	Photo       *photoBody    `json:"photo"`
	IsEmergency *bool         `json:"is_emergency"`
}

type resolveReportRequest struct {
	StaffMemberName string `json:"staff_member_name"`
	Description     string `json:"description"`
}

type reportResponse struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Location    *locationBody `json:"location,omitempty"`
	Photo       *photoBody    `json:"photo,omitempty"`
	IsEmergency bool          `json:"is_emergency"`
	IsResolved  bool          `json:"is_resolved"`
	CreatedAt   time.Time     `json:"created_at"`
	ModifiedAt  time.Time     `json:"modified_at"`
}

type viewResponse struct {
	View    string           `json:"view"`
	Live    bool             `json:"live"`
	Version uint64           `json:"version"`
	Reports []reportResponse `json:"reports"`
}

type syncResponse struct {
	Changes []string `json:"changes"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *server) getView(w http.ResponseWriter, r *http.Request) {
	spec, err := hazard.ViewByName(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if view, ok := s.views[spec.Name]; ok {
		records, version := view.VersionedSnapshot()
		writeJSON(w, http.StatusOK, viewResponse{View: spec.Name, Live: true, Version: version, Reports: toReportResponses(records)})
		return
	}

	records, err := s.svc.ListReports(r.Context(), spec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{View: spec.Name, Reports: toReportResponses(records)})
}

func (s *server) getReport(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(w, r)
	if !ok {
		return
	}
	rec, err := s.svc.GetReport(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportResponse(rec))
}

func (s *server) createReport(w http.ResponseWriter, r *http.Request) {
	var req createReportRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := s.svc.CreateReport(r.Context(), hazards.ReportInput{
		Description: req.Description,
		Location:    req.Location.toDomain(),
		Photo:       req.Photo.toDomain(),
		IsEmergency: req.IsEmergency,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReportResponse(rec))
}

func (s *server) updateReport(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(w, r)
	if !ok {
		return
	}
	var req updateReportRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := s.svc.UpdateReport(r.Context(), id, hazards.ReportPatch{
		Description: req.Description,
		Location:    req.Location.toDomain(),
		Photo:       req.Photo.toDomain(),
		IsEmergency: req.IsEmergency,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportResponse(rec))
}

func (s *server) deleteReport(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(w, r)
	if !ok {
		return
	}
	if err := s.svc.DeleteReport(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) resolveReport(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(w, r)
	if !ok {
		return
	}
	var req resolveReportRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := s.svc.ResolveReport(r.Context(), id, hazards.ResolveInput{
		StaffMemberName: req.StaffMemberName,
		Description:     req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportResponse(rec))
}

func (s *server) syncNow(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.SyncOnce(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	changes := make([]string, 0, len(result.Events))
	for _, event := range result.Events {
		changes = append(changes, event.String())
	}
	writeJSON(w, http.StatusOK, syncResponse{Changes: changes})
}

func reportID(w http.ResponseWriter, r *http.Request) (hazard.Identity, bool) {
	id, err := hazard.ParseIdentity(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return "", false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body: " + err.Error()})
		return false
	}
	return true
}

func (l *locationBody) toDomain() *hazard.GeoPoint {
	if l == nil {
		return nil
	}
	return &hazard.GeoPoint{Latitude: l.Latitude, Longitude: l.Longitude, AccuracyMeters: l.AccuracyMeters}
}

func (p *photoBody) toDomain() *hazard.AssetRef {
	if p == nil {
		return nil
	}
	return &hazard.AssetRef{Key: p.Key, ContentType: p.ContentType}
}

func toReportResponse(rec hazard.Record) reportResponse {
	out := reportResponse{
		ID:          rec.ID.String(),
		Description: rec.Description,
		IsEmergency: rec.IsEmergency,
		IsResolved:  rec.IsResolved,
		CreatedAt:   rec.CreatedAt,
		ModifiedAt:  rec.ModifiedAt,
	}
	if rec.Location != nil {
		out.Location = &locationBody{
			Latitude:       rec.Location.Latitude,
			Longitude:      rec.Location.Longitude,
			AccuracyMeters: rec.Location.AccuracyMeters,
		}
	}
	if rec.Photo != nil {
		out.Photo = &photoBody{Key: rec.Photo.Key, ContentType: rec.Photo.ContentType}
	}
	return out
}

func toReportResponses(records []hazard.Record) []reportResponse {
	out := make([]reportResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toReportResponse(rec))
	}
	return out
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ports.ErrRecordNotFound), errors.Is(err, hazard.ErrUnknownView):
		return http.StatusNotFound
	case errors.Is(err, hazard.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, hazard.ErrIdentityRequired),
		errors.Is(err, hazard.ErrInvalidIdentity),
		errors.Is(err, hazard.ErrDescriptionRequired),
		errors.Is(err, hazard.ErrInvalidLocation),
		errors.Is(err, hazard.ErrPhotoKeyRequired),
		errors.Is(err, hazard.ErrStaffMemberRequired),
		errors.Is(err, hazard.ErrResolutionDescriptionRequired),
		errors.Is(err, hazards.ErrEmptyPatch):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrMutationFailed),
		errors.Is(err, errs.ErrTransport),
		errors.Is(err, errs.ErrAuth):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Warn(r.Context(), "request failed",
			slog.Int("status", status),
			slog.Any("err", errs.Loggable(err)),
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: errs.Kind(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
