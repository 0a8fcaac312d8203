package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/cadence/pkg/event"
	"github.com/me/cadence/pkg/model"
)

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "cadence debug API",
		Version:     "v1",
		Description: "Inspect and steer a running cadence frame loop",
		Endpoints: []endpointInfo{
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
			{"/api/v1/stream", []string{"GET"}, "Server-Sent Events stream of snapshots"},
			{"/api/v1/loop", []string{"GET"}, "Frame loop counters"},
			{"/api/v1/loop/pause", []string{"POST"}, "Pause the frame loop"},
			{"/api/v1/loop/resume", []string{"POST"}, "Resume the frame loop"},
			{"/api/v1/tasks", []string{"GET"}, "Live task tree and outcome counts"},
			{"/api/v1/tasks/{id}/cancel", []string{"POST"}, "Cancel a task and its cancellable descendants"},
			{"/api/v1/state", []string{"GET", "POST"}, "Read the state container or emit a patch"},
			{"/api/v1/runs", []string{"GET"}, "Recorded trace runs"},
			{"/api/v1/runs/{id}", []string{"GET"}, "Single trace run"},
			{"/api/v1/runs/{id}/events", []string{"GET"}, "Events of a trace run (?kind=transition|emit|log)"},
		},
	})
}

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	FPS       int    `json:"fps"`
	Frame     uint64 `json:"frame"`
	Paused    bool   `json:"paused"`
	Trace     string `json:"trace"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	snap := s.monitor.Snapshot()
	trace := "disabled"
	if s.traces != nil {
		trace = "enabled"
	}
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		FPS:       s.config.FPS,
		Frame:     snap.Loop.Frame,
		Paused:    snap.Loop.Paused,
		Trace:     trace,
	})
}

// --- Loop ---

func (s *Server) handleGetLoop(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, s.monitor.Snapshot().Loop)
}

func (s *Server) handlePauseLoop(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if err := s.monitor.Pause(r.Context()); err != nil {
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{Code: model.ErrUnavailable, Message: err.Error()})
		return
	}
	s.logger.Info("loop paused", "request_id", reqID)
	respondOK(w, reqID, s.monitor.Snapshot().Loop)
}

func (s *Server) handleResumeLoop(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if err := s.monitor.Resume(r.Context()); err != nil {
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{Code: model.ErrUnavailable, Message: err.Error()})
		return
	}
	s.logger.Info("loop resumed", "request_id", reqID)
	respondOK(w, reqID, s.monitor.Snapshot().Loop)
}

// --- Tasks ---

type tasksResponse struct {
	Tasks  []model.TaskNode `json:"tasks"`
	Counts model.TaskCounts `json:"counts"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	snap := s.monitor.Snapshot()
	tasks := snap.Tasks
	if tasks == nil {
		tasks = []model.TaskNode{}
	}
	respondOK(w, reqID, tasksResponse{Tasks: tasks, Counts: snap.Counts})
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	found, err := s.monitor.Cancel(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{Code: model.ErrUnavailable, Message: err.Error()})
		return
	}
	if !found {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("Task", id))
		return
	}
	s.logger.Info("task cancelled", "task_id", id, "request_id", reqID)
	respondOK(w, reqID, map[string]string{"id": id, "status": "cancelling"})
}

// --- State ---

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.monitor.HasState() {
		respondError(w, reqID, http.StatusNotFound, &model.APIError{Code: model.ErrNotFound, Message: ErrNoState.Error()})
		return
	}
	respondOK(w, reqID, s.monitor.Snapshot().State)
}

func (s *Server) handleEmitState(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.monitor.HasState() {
		respondError(w, reqID, http.StatusNotFound, &model.APIError{Code: model.ErrNotFound, Message: ErrNoState.Error()})
		return
	}

	var patch event.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("Invalid JSON patch: "+err.Error()))
		return
	}

	err := s.monitor.Emit(r.Context(), patch)
	switch {
	case errors.Is(err, event.ErrUnknownKey), errors.Is(err, event.ErrTypeMismatch):
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("Patch rejected",
			model.FieldError{Message: err.Error()}))
		return
	case err != nil:
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{Code: model.ErrUnavailable, Message: err.Error()})
		return
	}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s.logger.Info("state emitted", "keys", keys, "request_id", reqID)
	respondOK(w, reqID, s.monitor.Snapshot().State)
}

// --- Trace runs ---

func (s *Server) tracesAvailable(w http.ResponseWriter, reqID string) bool {
	if s.traces == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{
			Code:    model.ErrUnavailable,
			Message: "tracing is disabled; start with --trace-db",
		})
		return false
	}
	return true
}

func listOptions(r *http.Request) (model.ListOptions, *model.APIError) {
	opts := model.DefaultListOptions()
	var details []model.FieldError
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			details = append(details, model.FieldError{Field: "limit", Message: "must be an integer"})
		}
		opts.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			details = append(details, model.FieldError{Field: "offset", Message: "must be an integer"})
		}
		opts.Offset = n
	}
	if v := r.URL.Query().Get("kind"); v != "" {
		if !model.EventKind(v).Valid() {
			details = append(details, model.FieldError{Field: "kind", Message: fmt.Sprintf("unknown event kind %q", v)})
		}
		opts.Kind = v
	}
	if len(details) > 0 {
		return opts, model.NewValidationError("Invalid query", details...)
	}
	opts.Clamp()
	return opts, nil
}

func pagination(total int, opts model.ListOptions) *model.Pagination {
	return &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.tracesAvailable(w, reqID) {
		return
	}
	opts, apiErr := listOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	runs, total, err := s.traces.ListRuns(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, internalError(err))
		return
	}
	if runs == nil {
		runs = []*model.TraceRun{}
	}
	respondList(w, reqID, runs, pagination(total, opts))
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.tracesAvailable(w, reqID) {
		return
	}
	id := chi.URLParam(r, "id")
	run, err := s.traces.GetRun(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, internalError(err))
		return
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("Run", id))
		return
	}
	respondOK(w, reqID, run)
}

func (s *Server) handleListRunEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.tracesAvailable(w, reqID) {
		return
	}
	id := chi.URLParam(r, "id")
	opts, apiErr := listOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	run, err := s.traces.GetRun(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, internalError(err))
		return
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("Run", id))
		return
	}
	events, total, err := s.traces.ListEvents(r.Context(), id, opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, internalError(err))
		return
	}
	if events == nil {
		events = []*model.TraceEvent{}
	}
	respondList(w, reqID, events, pagination(total, opts))
}
