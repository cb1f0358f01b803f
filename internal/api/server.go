package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sitelens/sitelens/internal/config"
	"github.com/sitelens/sitelens/internal/metrics"
	"github.com/sitelens/sitelens/internal/pipeline"
	"github.com/sitelens/sitelens/internal/store"
)

// Server wires HTTP handlers to the job manager and stores.
type Server struct {
	router  chi.Router
	manager *pipeline.Manager
	repo    store.Repository
	stats   store.StatsRecorder
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. stats may be nil
// when no per-site aggregation sink is wired; the sites endpoint then serves
// empty lists.
func NewServer(
	manager *pipeline.Manager,
	repo store.Repository,
	stats store.StatsRecorder,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		manager: manager,
		repo:    repo,
		stats:   stats,
		cfg:     cfg,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.Server.RequestTimeout()))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Get("/", s.listJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Get("/report", s.getJobReport)
				r.Get("/sites", s.listJobSites)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// Store and artifact connectivity are verified at startup; once the app
	// is serving it is ready.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
