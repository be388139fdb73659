// Package stubserver is an in-memory stand-in for the real task gateway.
// It speaks the same JSON contract, which makes it usable both as a local
// dev backend (cmd/flowboard-stub) and as an httptest target for the
// gateway client tests.
package stubserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/rs/cors"

	"github.com/loopydev/flowboard/internal/gateway"
	"github.com/loopydev/flowboard/internal/state"
)

// Fault lets tests inject gateway failures per operation. Return a non-nil
// status/message pair to fail the request.
type Fault func(op, taskID string) (int, string)

type Server struct {
	mu    sync.Mutex
	tasks map[string]gateway.Task
	fault Fault
}

func New() *Server {
	return &Server{
		tasks: make(map[string]gateway.Task),
	}
}

// SetFault installs a fault hook. Pass nil to clear it.
func (s *Server) SetFault(f Fault) {
	s.mu.Lock()
	s.fault = f
	s.mu.Unlock()
}

// Seed inserts tasks directly, bypassing the HTTP surface.
func (s *Server) Seed(tasks ...gateway.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tasks {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now()
		}
		t.UpdatedAt = t.CreatedAt
		s.tasks[t.ID] = t
	}
}

// Tasks returns a copy of the current store, ordered by creation time.
func (s *Server) Tasks() []gateway.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(true)
}

func (s *Server) sortedLocked(includeArchived bool) []gateway.Task {
	out := make([]gateway.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if !includeArchived && t.IsArchived {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Handler builds the chi router with the same route shapes as the real
// backend: GET/POST /tasks, PATCH /tasks/{id}, plus a dopamine hook and
// a health check.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Get("/tasks", s.listTasks)
	r.Post("/tasks", s.createTask)
	r.Patch("/tasks/{id}", s.updateTask)
	r.Post("/dopamine/task-complete", s.taskComplete)

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(r)
}

func (s *Server) checkFault(w http.ResponseWriter, op, taskID string) bool {
	s.mu.Lock()
	f := s.fault
	s.mu.Unlock()
	if f == nil {
		return false
	}
	status, msg := f(op, taskID)
	if status == 0 {
		return false
	}
	writeError(w, status, msg)
	return true
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	if s.checkFault(w, "list", "") {
		return
	}
	s.mu.Lock()
	out := s.sortedLocked(false)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	if s.checkFault(w, "create", "") {
		return
	}
	var req gateway.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	st := req.State
	if st == "" {
		st = state.RemoteExploring
	}
	if !validRemote(st) {
		writeError(w, http.StatusBadRequest, "state must be one of Exploring, Planning, Doing, Done")
		return
	}
	now := time.Now()
	t := gateway.Task{
		ID:        ulid.Make().String(),
		Title:     strings.TrimSpace(req.Title),
		Notes:     req.Notes,
		State:     st,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()
	slog.Debug("stub gateway created task", "task_id", t.ID, "state", string(t.State))
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.checkFault(w, "update", id) {
		return
	}
	var patch gateway.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			writeError(w, http.StatusBadRequest, "title cannot be empty")
			return
		}
		t.Title = title
	}
	if patch.Notes != nil {
		t.Notes = *patch.Notes
	}
	if patch.State != nil {
		if !validRemote(*patch.State) {
			writeError(w, http.StatusBadRequest, "state must be one of Exploring, Planning, Doing, Done")
			return
		}
		t.State = *patch.State
	}
	if patch.IsArchived != nil {
		t.IsArchived = *patch.IsArchived
	}
	t.UpdatedAt = time.Now()
	s.tasks[id] = t
	writeJSON(w, http.StatusOK, t)
}

type completionRequest struct {
	UserID string `json:"user_id"`
	TaskID string `json:"task_id,omitempty"`
	Points int    `json:"points"`
}

type completionResponse struct {
	Phase             int    `json:"phase"`
	Variant           string `json:"variant"`
	TasksSinceAdvance int    `json:"tasks_since_advance"`
	Advanced          bool   `json:"advanced"`
	Asset             string `json:"asset,omitempty"`
}

// taskComplete is a minimal dopamine-plant stand-in: it acknowledges the
// completion without modeling the full branching growth table.
func (s *Server) taskComplete(w http.ResponseWriter, r *http.Request) {
	if s.checkFault(w, "notify", "") {
		return
	}
	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	writeJSON(w, http.StatusOK, completionResponse{
		Phase:             1,
		Variant:           "POT",
		TasksSinceAdvance: req.Points,
		Asset:             "plant_phase1_POT.png",
	})
}

func validRemote(r state.Remote) bool {
	switch r {
	case state.RemoteExploring, state.RemotePlanning, state.RemoteDoing, state.RemoteDone:
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("stub gateway failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
