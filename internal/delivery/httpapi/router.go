package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/usecase/hazards"
)

type Options struct {
	Service *hazards.Service

	// Views are the live, registered projections served by name. A known
	// view that is not registered is answered from a fresh remote query.
	Views map[string]*hazards.View

	// PingInterval keeps idle websocket streams alive. Zero uses 30s.
	PingInterval time.Duration
}

type server struct {
	svc          *hazards.Service
	views        map[string]*hazards.View
	pingInterval time.Duration
	upgrader     websocket.Upgrader
}

func NewRouter(opts Options) http.Handler {
	s := &server{
		svc:          opts.Service,
		views:        opts.Views,
		pingInterval: opts.PingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	if s.pingInterval <= 0 {
		s.pingInterval = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/views/{name}", s.getView)
	r.Post("/sync", s.syncNow)

	r.Route("/reports", func(rr chi.Router) {
		rr.Post("/", s.createReport)
		rr.Get("/{id}", s.getReport)
		rr.Patch("/{id}", s.updateReport)
		rr.Delete("/{id}", s.deleteReport)
		rr.Post("/{id}/resolve", s.resolveReport)
	})

	r.Route("/ws", func(wr chi.Router) {
		wr.Get("/views/{name}", s.streamView)
		wr.Get("/reports/{id}", s.streamReport)
	})

	return r
}

// requestLogger puts the request id on the context logger so every log line
// of a request carries it.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithAttrs(r.Context(),
			slog.String("component", "delivery.http"),
			slog.String("request_id", chimw.GetReqID(r.Context())),
		)
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		logging.Debug(ctx, "request served",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(started)),
		)
	})
}
