// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api is the HTTP management surface of the scheduler.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/robohub-inference/internal/api/middleware"
	"github.com/ManuGH/robohub-inference/internal/domain/session/manager"
	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
	"github.com/ManuGH/robohub-inference/internal/domain/session/store"
)

// Sessions is the registry surface the API drives.
type Sessions interface {
	Create(ctx context.Context, p manager.CreateParams) (model.RoomIDs, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) error
	Reset(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Status(id string) (model.Status, error)
	QueueInfo(id string) (model.QueueInfo, error)
	List() []model.Status
	IDs() []string
	SupportedPolicies() []model.PolicyKind
}

// History is the read side of the session archive.
type History interface {
	Latest(ctx context.Context, sessionID string) (*store.Record, error)
	List(ctx context.Context, limit int) ([]store.Record, error)
}

type Config struct {
	Version        string
	RateLimit      int
	TracingService string
	EnableLogging  bool
}

type Server struct {
	cfg      Config
	sessions Sessions
	history  History
	router   chi.Router
}

// New builds the server. history may be nil.
func New(cfg Config, sessions Sessions, history History) *Server {
	s := &Server{cfg: cfg, sessions: sessions, history: history}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	middleware.ApplyStack(r, middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.cfg.TracingService,
		EnableLogging:  s.cfg.EnableLogging,
		RateLimit:      s.cfg.RateLimit,
	})

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/policies", s.handlePolicies)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/start", s.handleStart)
			r.Post("/stop", s.handleStop)
			r.Post("/restart", s.handleRestart)
		})
	})

	r.Route("/debug", func(r chi.Router) {
		r.Get("/runtime", s.handleRuntime)
		r.Get("/sessions/{sessionID}/queue", s.handleQueue)
		r.Post("/sessions/{sessionID}/reset", s.handleReset)
	})

	r.Get("/history", s.handleHistory)
	r.Get("/history/{sessionID}", s.handleSessionHistory)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
	return r
}
