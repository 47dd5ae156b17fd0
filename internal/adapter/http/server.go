package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
	"github.com/couchcryptid/hydro-ingest-service/internal/report"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reporter answers the breach reporting queries.
type Reporter interface {
	Table(ctx context.Context) ([]report.Row, error)
	Map(ctx context.Context, from, to time.Time) ([]report.MapEntry, error)
	Plant(ctx context.Context, id int64) (report.PlantDetail, error)
}

// CycleStatus exposes the state of the ingestion scheduler.
type CycleStatus interface {
	LastSummary() (domain.CycleSummary, bool)
	SkippedCycles() int64
}

// Server exposes health, readiness, metrics and the read-only API.
type Server struct {
	httpServer *http.Server
	reports    Reporter
	cycles     CycleStatus
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, reports Reporter, cycles CycleStatus, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		reports: reports,
		cycles:  cycles,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/hydro-power-plants/table", s.handleTable)
	mux.HandleFunc("GET /api/hydro-power-plants/map", s.handleMap)
	mux.HandleFunc("GET /api/hydro-power-plants/uetk/{id}", s.handlePlant)
	mux.HandleFunc("GET /api/ingest/last", s.handleLastCycle)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	rows, err := s.reports.Table(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"rows": rows, "total": len(rows)})
}

// handleMap takes an optional RFC3339 from/to range. Missing bounds are left
// to the reporter, which defaults to the last day.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	from, err := parseTimeParam(r, "from")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	entries, err := s.reports.Map(r.Context(), from, to)
	if errors.Is(err, report.ErrInvalidRange) {
		badRequest(w, "from must be before to")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"plants": entries, "total": len(entries)})
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: want RFC3339", name)
	}
	return t, nil
}

func (s *Server) handlePlant(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "invalid plant id")
		return
	}
	detail, err := s.reports.Plant(r.Context(), id)
	if errors.Is(err, report.ErrPlantNotFound) {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, detail)
}

func (s *Server) handleLastCycle(w http.ResponseWriter, _ *http.Request) {
	summary, ok := s.cycles.LastSummary()
	if !ok {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]any{
			"error":          "no cycle has completed yet",
			"skipped_cycles": s.cycles.SkippedCycles(),
		})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"summary":        summary,
		"duration_ms":    summary.Duration().Milliseconds(),
		"skipped_cycles": s.cycles.SkippedCycles(),
	})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func badRequest(w http.ResponseWriter, msg string) {
	sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}
