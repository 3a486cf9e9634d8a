// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/droidvet/droidvet/broker"
	"github.com/droidvet/droidvet/device"
	"github.com/droidvet/droidvet/devicepool"
	"github.com/droidvet/droidvet/task"
)

// maxBodySize bounds request bodies. Artifact payloads are references,
// not file contents, so nothing legitimate comes close.
const maxBodySize = 1 << 20

// Server exposes the triage service over HTTP.
type Server struct {
	broker   *broker.Broker
	sessions *device.Manager
	pool     *devicepool.Pool
	logger   *slog.Logger
}

// New creates the HTTP server facade.
func New(taskBroker *broker.Broker, sessions *device.Manager, pool *devicepool.Pool, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	return &Server{broker: taskBroker, sessions: sessions, pool: pool, logger: logger}
}

// Routes builds the router.
func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/tasks", s.handleCreateTask).Methods(http.MethodPost)
	router.HandleFunc("/tasks", s.handleListTasks).Methods(http.MethodGet)
	router.HandleFunc("/tasks/{id}", s.handleGetTask).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}/vnc", s.handleSessionVNC).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}/control", s.handleSessionControl).Methods(http.MethodPost)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return router
}

// createTaskRequest is the submission body.
type createTaskRequest struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var request createTaskRequest
	if err := decodeBody(r, &request); err != nil {
		s.writeError(w, task.Errorf(task.ErrValidation, "decoding request: %v", err))
		return
	}

	created, err := s.broker.Create(r.Context(), request.Type, request.Payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.broker.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if summaries == nil {
		summaries = []broker.Summary{}
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	loaded, err := s.broker.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loaded)
}

func (s *Server) handleSessionVNC(w http.ResponseWriter, r *http.Request) {
	url, err := s.sessions.ResolveInteractiveURL(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleSessionControl(w http.ResponseWriter, r *http.Request) {
	var request device.ControlRequest
	if err := decodeBody(r, &request); err != nil {
		s.writeError(w, task.Errorf(task.ErrValidation, "decoding request: %v", err))
		return
	}

	result, err := s.sessions.Control(r.Context(), mux.Vars(r)["id"], request)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// healthResponse is the liveness payload: enough to see at a glance
// whether work is piling up or the fleet is starved.
type healthResponse struct {
	Status     string `json:"status"`
	QueueDepth int    `json:"queue_depth"`
	Available  int    `json:"sandboxes_available"`
	Leased     int    `json:"sandboxes_leased"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.pool.Stats()
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		QueueDepth: s.broker.QueueDepth(),
		Available:  stats.Available,
		Leased:     stats.Leased,
	})
}

func decodeBody(r *http.Request, into any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if len(body) == 0 {
		return fmt.Errorf("empty body")
	}
	return json.Unmarshal(body, into)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("writing response failed", "error", err)
	}
}

// errorResponse mirrors the persisted error shape.
type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	classified := task.AsError(err)
	if classified == nil {
		classified = task.Errorf(task.ErrWorkerFault, "%v", err)
	}
	s.writeJSON(w, statusForKind(classified.Kind), errorResponse{
		Kind:    string(classified.Kind),
		Message: classified.Message,
	})
}

// statusForKind maps the error taxonomy onto HTTP statuses. Unlisted
// kinds are internal failures.
func statusForKind(kind task.ErrorKind) int {
	switch kind {
	case task.ErrInvalidTaskType, task.ErrValidation:
		return http.StatusBadRequest
	case task.ErrNotFound, task.ErrUnknownSession:
		return http.StatusNotFound
	case task.ErrProviderUnavailable, task.ErrProvisioningExhausted:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
