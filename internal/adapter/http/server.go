package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

// RunStore is the read side of the run archive.
type RunStore interface {
	LatestRun(ctx context.Context) (domain.Run, []string, error)
	Results(ctx context.Context, runID string, level domain.Level) ([]domain.TrendResult, error)
	Exclusions(ctx context.Context, runID string) ([]domain.Exclusion, error)
}

// Server exposes health, readiness, metrics and the read-only results API.
type Server struct {
	httpServer *http.Server
	store      RunStore
	mapsDir    string
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, the
// /api routes backed by store, and /maps serving images from mapsDir.
func NewServer(addr string, store RunStore, mapsDir string, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:   store,
		mapsDir: mapsDir,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/runs/latest", s.handleLatestRun)
	mux.HandleFunc("GET /api/trends", s.handleTrends)
	mux.HandleFunc("GET /api/exclusions", s.handleExclusions)
	mux.HandleFunc("GET /maps/{file}", s.handleMap)

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

type runResponse struct {
	Run       domain.Run `json:"run"`
	Artifacts []string   `json:"artifacts"`
}

type trendsResponse struct {
	RunID   string               `json:"run_id"`
	Level   domain.Level         `json:"level"`
	Count   int                  `json:"count"`
	Results []domain.TrendResult `json:"results"`
}

type exclusionsResponse struct {
	RunID      string             `json:"run_id"`
	Count      int                `json:"count"`
	Exclusions []domain.Exclusion `json:"exclusions"`
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, artifacts, ok := s.latest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Run: run, Artifacts: artifacts})
}

// handleTrends serves the latest run's results of one level, "annual" by
// default, optionally only the significant ones.
func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	level := domain.Annual
	if raw := q.Get("level"); raw != "" {
		parsed, err := domain.ParseLevel(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		level = parsed
	}
	if level.Kind == domain.LevelMonthly {
		writeError(w, http.StatusBadRequest, "trends are computed for annual and seasonal levels only")
		return
	}
	var significantOnly bool
	if raw := q.Get("significant"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "significant must be a boolean")
			return
		}
		significantOnly = v
	}

	run, _, ok := s.latest(w, r)
	if !ok {
		return
	}
	if level.Kind == domain.LevelSeasonal {
		name, known := seasonOf(run, level.Season)
		if !known {
			writeError(w, http.StatusBadRequest, "unknown season "+strconv.Quote(level.Season))
			return
		}
		level = domain.SeasonLevel(name)
	}
	results, err := s.store.Results(r.Context(), run.ID, level)
	if err != nil {
		s.internalError(w, "query results", err)
		return
	}
	if significantOnly {
		kept := results[:0]
		for _, res := range results {
			if res.Significant {
				kept = append(kept, res)
			}
		}
		results = kept
	}
	writeJSON(w, http.StatusOK, trendsResponse{RunID: run.ID, Level: level, Count: len(results), Results: results})
}

func (s *Server) handleExclusions(w http.ResponseWriter, r *http.Request) {
	run, _, ok := s.latest(w, r)
	if !ok {
		return
	}
	exclusions, err := s.store.Exclusions(r.Context(), run.ID)
	if err != nil {
		s.internalError(w, "query exclusions", err)
		return
	}
	writeJSON(w, http.StatusOK, exclusionsResponse{RunID: run.ID, Count: len(exclusions), Exclusions: exclusions})
}

// handleMap serves a PNG written by the renderer. Only plain file names with
// a .png extension are accepted.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	if name == "" || name != path.Base(name) || strings.ContainsAny(name, `\/`) ||
		strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".png") {
		writeError(w, http.StatusNotFound, "no such map")
		return
	}
	file := filepath.Join(s.mapsDir, name)
	if info, err := os.Stat(file); err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "no such map")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, file)
}

// seasonOf matches name against the run's seasons, ignoring case, and
// returns the configured spelling.
func seasonOf(run domain.Run, name string) (string, bool) {
	for _, season := range run.Analysis.Seasons {
		if strings.EqualFold(season, name) {
			return season, true
		}
	}
	return "", false
}

// latest loads the latest run, writing the error response itself when it fails.
func (s *Server) latest(w http.ResponseWriter, r *http.Request) (domain.Run, []string, bool) {
	run, artifacts, err := s.store.LatestRun(r.Context())
	if errors.Is(err, domain.ErrNoRuns) {
		writeError(w, http.StatusNotFound, err.Error())
		return domain.Run{}, nil, false
	}
	if err != nil {
		s.internalError(w, "query latest run", err)
		return domain.Run{}, nil, false
	}
	return run, artifacts, true
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
