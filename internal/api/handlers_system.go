// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"fmt"
	"net/http"
	"runtime"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type healthResponse struct {
	Status         string   `json:"status"`
	Version        string   `json:"version,omitempty"`
	ActiveSessions int      `json:"active_sessions"`
	SessionIDs     []string `json:"session_ids"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ids := s.sessions.IDs()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "healthy",
		Version:        s.cfg.Version,
		ActiveSessions: len(ids),
		SessionIDs:     ids,
	})
}

func (s *Server) handlePolicies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		SupportedPolicies []model.PolicyKind `json:"supported_policies"`
	}{s.sessions.SupportedPolicies()})
}

type runtimeResponse struct {
	Goroutines    int    `json:"goroutines"`
	HeapAlloc     uint64 `json:"heap_alloc_bytes"`
	HeapObjects   uint64 `json:"heap_objects"`
	NumGC         uint32 `json:"num_gc"`
	PauseTotalNs  uint64 `json:"gc_pause_total_ns"`
	GoVersion     string `json:"go_version"`
	NumCPU        int    `json:"num_cpu"`
	SessionsCount int    `json:"sessions"`
}

func (s *Server) handleRuntime(w http.ResponseWriter, _ *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	writeJSON(w, http.StatusOK, runtimeResponse{
		Goroutines:    runtime.NumGoroutine(),
		HeapAlloc:     ms.HeapAlloc,
		HeapObjects:   ms.HeapObjects,
		NumGC:         ms.NumGC,
		PauseTotalNs:  ms.PauseTotalNs,
		GoVersion:     runtime.Version(),
		NumCPU:        runtime.NumCPU(),
		SessionsCount: len(s.sessions.IDs()),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "history is not enabled"})
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeError(w, r, fmt.Errorf("%w: limit must be between 1 and %d", errBadRequest, maxHistoryLimit))
			return
		}
		limit = n
	}
	recs, err := s.history.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "history is not enabled"})
		return
	}
	rec, err := s.history.Latest(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
