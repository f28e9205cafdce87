// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/robohub-inference/internal/domain/session/manager"
	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	SessionID           string   `json:"session_id"`
	PolicyPath          string   `json:"policy_path"`
	PolicyType          string   `json:"policy_type"`
	CameraNames         []string `json:"camera_names"`
	TransportEndpoint   string   `json:"transport_endpoint"`
	WorkspaceID         string   `json:"workspace_id"`
	LanguageInstruction string   `json:"language_instruction"`
}

func decodeJSON(r *http.Request, w http.ResponseWriter, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	if dec.Decode(&struct{}{}) != io.EOF {
		return fmt.Errorf("%w: body must contain a single JSON object", errBadRequest)
	}
	return nil
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, w, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.PolicyType == "" {
		req.PolicyType = string(model.PolicyACT)
	}
	rooms, err := s.sessions.Create(r.Context(), manager.CreateParams{
		SessionID:           req.SessionID,
		PolicyPath:          req.PolicyPath,
		PolicyKind:          req.PolicyType,
		CameraNames:         req.CameraNames,
		TransportEndpoint:   req.TransportEndpoint,
		WorkspaceID:         req.WorkspaceID,
		LanguageInstruction: req.LanguageInstruction,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rooms)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.sessions.Status(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("session %s deleted", id)})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.sessions.Start, "inference started")
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.sessions.Stop, "inference stopped")
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.sessions.Restart, "inference restarted")
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.sessions.Reset, "session state reset")
}

func (s *Server) control(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error, msg string) {
	if err := op(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	info, err := s.sessions.QueueInfo(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
