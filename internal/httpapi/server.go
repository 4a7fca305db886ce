// Package httpapi implements C7 Management API: the HTTP surface for
// creating, updating, starting/stopping/pausing/resuming, synchronously
// executing, and inspecting JobConfigs and their execution history.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/distsched/scheduler/internal/domain"
	"github.com/distsched/scheduler/internal/repository"
)

// JobRegistry is the slice of jobregistry.Registry the API needs.
type JobRegistry interface {
	CreateJob(ctx context.Context, job domain.JobConfig) (domain.JobConfig, error)
	UpdateJob(ctx context.Context, job domain.JobConfig) error
	DeleteJob(ctx context.Context, jobID int64) error
	PauseJob(ctx context.Context, jobID int64) error
	ResumeJob(ctx context.Context, jobID int64) error
	StartJob(ctx context.Context, jobID int64) error
	StopJob(ctx context.Context, jobID int64) error
	GetJob(ctx context.Context, jobID int64) (domain.JobConfig, error)
	ListJobs(ctx context.Context) ([]domain.JobConfig, error)
}

// JobExecutor is the slice of executor.Executor (C5) the API needs to run a
// job synchronously outside of any trigger engine schedule (spec §4.7
// "execute now").
type JobExecutor interface {
	Fire(ctx context.Context, job domain.JobConfig) (success bool, errorMessage string)
}

// Config controls server construction.
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// Server wraps the chi router and an *http.Server.
type Server struct {
	httpServer *http.Server
	cfg        Config
}

// New builds the Management API server, wiring every route onto a fresh
// chi.Router. executor may be nil if the "execute now" endpoint is never
// exercised (e.g. read-path-only test servers).
func New(cfg Config, registry JobRegistry, executor JobExecutor, repo repository.JobRepository, addr string) *Server {
	h := &handler{registry: registry, executor: executor, repo: repo}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(maxBodyBytes(cfg.MaxBodyBytes))

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.createJob)
		r.Get("/", h.listJobs)
		r.Route("/log", func(r chi.Router) {
			r.Get("/{logId}", h.getLogByID)
			r.Get("/execution/{executionId}", h.getLogByExecutionID)
		})
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getJob)
			r.Put("/", h.updateJob)
			r.Delete("/", h.deleteJob)
			r.Post("/start", h.startJob)
			r.Post("/stop", h.stopJob)
			r.Post("/pause", h.pauseJob)
			r.Post("/resume", h.resumeJob)
			r.Post("/execute", h.executeJob)
			r.Get("/logs", h.listLogs)
			r.Get("/stats", h.jobStats)
		})
	})

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Handler returns the underlying http.Handler, for use in tests that want to
// drive the router directly via httptest rather than binding a real port.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests, bounded by cfg.ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
