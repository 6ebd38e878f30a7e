package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/errs"
)

const writeWait = 5 * time.Second

type reportFrame struct {
	ID      string          `json:"id"`
	Report  *reportResponse `json:"report,omitempty"`
	Deleted bool            `json:"deleted,omitempty"`
}

// streamView pushes the whole view after every applied batch. Wakeups
// coalesce, so a slow client skips intermediate versions but always ends on
// the latest one.
func (s *server) streamView(w http.ResponseWriter, r *http.Request) {
	spec, err := hazard.ViewByName(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, ok := s.views[spec.Name]
	if !ok {
		writeError(w, r, fmt.Errorf("%w: %s is not live", hazard.ErrUnknownView, spec.Name))
		return
	}

	changed, stopWatch := view.Watch()
	defer stopWatch()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug(r.Context(), "websocket upgrade failed", slog.Any("err", errs.Loggable(err)))
		return
	}
	defer conn.Close()

	send := func() error {
		records, version := view.VersionedSnapshot()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(viewResponse{View: spec.Name, Live: true, Version: version, Reports: toReportResponses(records)})
	}

	s.pump(r, conn, changed, send)
}

// streamReport follows one report until the client leaves or the report is
// deleted.
func (s *server) streamReport(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(w, r)
	if !ok {
		return
	}
	watcher, sub, err := s.svc.WatchRecord(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer s.svc.Deregister(sub)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug(r.Context(), "websocket upgrade failed", slog.Any("err", errs.Loggable(err)))
		return
	}
	defer conn.Close()

	send := func() error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		rec, alive := watcher.Current()
		if !alive {
			if err := conn.WriteJSON(reportFrame{ID: id.String(), Deleted: true}); err != nil {
				return err
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "report deleted"),
				time.Now().Add(writeWait))
			return errStreamFinished
		}
		resp := toReportResponse(rec)
		return conn.WriteJSON(reportFrame{ID: id.String(), Report: &resp})
	}

	s.pump(r, conn, watcher.Changed(), send)
}

var errStreamFinished = errors.New("stream finished")

// pump sends once, then again on every wakeup, until the client goes away
// or a send fails.
func (s *server) pump(r *http.Request, conn *websocket.Conn, changed <-chan struct{}, send func() error) {
	ctx := r.Context()
	closed := readUntilClosed(conn)

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	if err := send(); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case <-changed:
			if err := send(); err != nil {
				if !errors.Is(err, errStreamFinished) {
					logging.Debug(ctx, "websocket send failed", slog.Any("err", errs.Loggable(err)))
				}
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readUntilClosed drains client frames so control messages are handled and
// reports when the peer disconnects.
func readUntilClosed(conn *websocket.Conn) <-chan struct{} {
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return closed
}
