// Package api provides HTTP API handlers for punch counting runs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/ayusman/punchcounter/internal/motion"
	"github.com/ayusman/punchcounter/internal/report"
	"github.com/ayusman/punchcounter/internal/store"
)

// Analyzer starts and repeats punch counting runs.
type Analyzer interface {
	AnalyzeVideo(ctx context.Context, path string) (*report.Results, error)
	AnalyzePoses(ctx context.Context, dir string) (*report.Results, error)
	Recount(runID string, cfg motion.Config) (*report.Results, error)
}

// RunHandler handles HTTP requests for run resources.
type RunHandler struct {
	store    *store.Store
	analyzer Analyzer

	// background is the parent context of async runs; Close cancels it.
	background context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewRunHandler creates a new RunHandler. analyzer may be nil, in which
// case runs can be listed but not started or recounted.
func NewRunHandler(s *store.Store, analyzer Analyzer) *RunHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &RunHandler{
		store:      s,
		analyzer:   analyzer,
		background: ctx,
		cancel:     cancel,
	}
}

// Close cancels async runs still in progress and waits for them to return.
// Call it after the HTTP server has stopped accepting requests and before
// the store is closed.
func (h *RunHandler) Close() {
	h.cancel()
	h.wg.Wait()
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/runs, /api/runs/{id}, /api/runs/{id}/punches,
	// /api/runs/{id}/recount
	path := strings.TrimPrefix(r.URL.Path, "/api/runs")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	id, sub, _ := strings.Cut(path, "/")

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, id)
		case http.MethodDelete:
			h.delete(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "punches":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.punches(w, r, id)
	case "recount":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.recount(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// Request and response types

type createRunRequest struct {
	Video string `json:"video"`
	Poses string `json:"poses"`
	Async bool   `json:"async"`
}

type recountRequest struct {
	Threshold *float64 `json:"threshold"`
	MinGap    *int     `json:"min_gap"`
}

type runResponse struct {
	ID           string  `json:"id"`
	Source       string  `json:"source"`
	SourceType   string  `json:"source_type"`
	Status       string  `json:"status"`
	TargetFPS    int     `json:"target_fps"`
	FrameStride  int     `json:"frame_stride"`
	Threshold    float64 `json:"threshold"`
	MinGap       int     `json:"min_gap"`
	Frames       int     `json:"frames"`
	TotalPunches int     `json:"total_punches"`
	LeftPunches  int     `json:"left_punches"`
	RightPunches int     `json:"right_punches"`
	Error        string  `json:"error,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

type listRunsResponse struct {
	Runs []runResponse `json:"runs"`
}

type punchesResponse struct {
	RunID  string         `json:"run_id"`
	Events []motion.Event `json:"punch_frames"`
}

type acceptedResponse struct {
	Status string `json:"status"`
	Source string `json:"source"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// toResponse converts a store.Run to a runResponse.
func toResponse(run *store.Run) runResponse {
	return runResponse{
		ID:           run.ID,
		Source:       run.Source,
		SourceType:   string(run.SourceType),
		Status:       string(run.Status),
		TargetFPS:    run.TargetFPS,
		FrameStride:  run.FrameStride,
		Threshold:    run.Threshold,
		MinGap:       run.MinGap,
		Frames:       run.Frames,
		TotalPunches: run.TotalPunches,
		LeftPunches:  run.LeftPunches,
		RightPunches: run.RightPunches,
		Error:        run.Error,
		CreatedAt:    run.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:    run.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// list handles GET /api/runs and returns all runs, newest first.
func (h *RunHandler) list(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.Runs().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	response := listRunsResponse{
		Runs: make([]runResponse, 0, len(runs)),
	}
	for _, run := range runs {
		response.Runs = append(response.Runs, toResponse(run))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/runs/{id}.
func (h *RunHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	run, err := h.store.Runs().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(run))
}

// delete handles DELETE /api/runs/{id}. Poses and punches go with it.
func (h *RunHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Runs().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete run")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// punches handles GET /api/runs/{id}/punches and returns the events in
// their wire form: [["right", 1], ["left", 12]].
func (h *RunHandler) punches(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.store.Runs().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	stored, err := h.store.Punches().List(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list punches")
		return
	}

	events := make([]motion.Event, len(stored))
	for i, p := range stored {
		events[i] = motion.Event{Side: motion.Side(p.Side), Frame: p.FrameIndex}
	}

	writeJSON(w, http.StatusOK, punchesResponse{RunID: id, Events: events})
}

// create handles POST /api/runs. Exactly one of video or poses must be set.
// Synchronous requests return the results document; async requests return
// 202 and report progress over the events websocket.
func (h *RunHandler) create(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "Analysis is not available")
		return
	}

	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if (req.Video == "") == (req.Poses == "") {
		writeError(w, http.StatusBadRequest, "Exactly one of video or poses is required")
		return
	}

	source := req.Video
	analyze := h.analyzer.AnalyzeVideo
	if req.Poses != "" {
		source = req.Poses
		analyze = h.analyzer.AnalyzePoses
	}

	if req.Async {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if _, err := analyze(h.background, source); err != nil {
				slog.Warn("background run failed", "source", source, "error", err)
			}
		}()
		writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted", Source: source})
		return
	}

	res, err := analyze(r.Context(), source)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

// recount handles POST /api/runs/{id}/recount. Fields left out of the body,
// or an empty body, keep the run's current values.
func (h *RunHandler) recount(w http.ResponseWriter, r *http.Request, id string) {
	if h.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "Analysis is not available")
		return
	}

	run, err := h.store.Runs().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	var req recountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	cfg := motion.Config{Threshold: run.Threshold, MinGap: run.MinGap}
	if req.Threshold != nil {
		cfg.Threshold = *req.Threshold
	}
	if req.MinGap != nil {
		cfg.MinGap = *req.MinGap
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.analyzer.Recount(id, cfg)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}
