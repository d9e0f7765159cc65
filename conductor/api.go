package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keremk/renku-sub000/internal/domain"
	"github.com/keremk/renku-sub000/internal/planner"
	"github.com/keremk/renku-sub000/internal/repo"
	"github.com/keremk/renku-sub000/internal/run"
)

type conductorAPI struct {
	logger    *slog.Logger
	service   run.BlueprintService
	executor  run.Executor
	estimator planner.CostEstimator

	artifacts   repo.ArtifactRepository
	runLogs     repo.RunLogRepository
	planTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

// session is one live controller per blueprint/build pair, created on
// first use and kept for the service's lifetime.
type session struct {
	blueprint  string
	buildID    string
	controller *run.Controller
}

func newConductorAPI(
	logger *slog.Logger,
	service run.BlueprintService,
	executor run.Executor,
	estimator planner.CostEstimator,
	artifacts repo.ArtifactRepository,
	runLogs repo.RunLogRepository,
	planTimeout time.Duration,
) *conductorAPI {
	return &conductorAPI{
		logger:      logger,
		service:     service,
		executor:    executor,
		estimator:   estimator,
		artifacts:   artifacts,
		runLogs:     runLogs,
		planTimeout: planTimeout,
		sessions:    make(map[string]*session),
	}
}

func (api *conductorAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /blueprints/{name}/builds/{build_id}/plan", api.handlePlan)
	mux.HandleFunc("POST /blueprints/{name}/builds/{build_id}/replan", api.handleReplan)
	mux.HandleFunc("PUT /blueprints/{name}/builds/{build_id}/range", api.handleSetRange)
	mux.HandleFunc("POST /blueprints/{name}/builds/{build_id}/confirm", api.handleConfirm)
	mux.HandleFunc("POST /blueprints/{name}/builds/{build_id}/cancel", api.handleCancel)
	mux.HandleFunc("POST /blueprints/{name}/builds/{build_id}/dismiss", api.handleDismiss)
	mux.HandleFunc("POST /blueprints/{name}/builds/{build_id}/reset", api.handleReset)
	mux.HandleFunc("POST /blueprints/{name}/builds/{build_id}/rehydrate", api.handleRehydrate)
	mux.HandleFunc("POST /blueprints/{name}/builds/{build_id}/select", api.handleSelect)
	mux.HandleFunc("GET /blueprints/{name}/builds/{build_id}/state", api.handleGetState)
	mux.HandleFunc("GET /blueprints/{name}/builds/{build_id}/state/stream", api.handleStreamState)
	mux.HandleFunc("GET /blueprints/{name}/builds/{build_id}/stages", api.handleGetStages)
	mux.HandleFunc("GET /blueprints/{name}/builds/{build_id}/logs", api.handleListRunLogs)
}

// getSession returns the controller for one build, creating it and its
// archive watcher on first access.
func (api *conductorAPI) getSession(blueprint, buildID string) *session {
	key := blueprint + "/" + buildID
	api.mu.Lock()
	defer api.mu.Unlock()
	if s, ok := api.sessions[key]; ok {
		return s
	}
	s := &session{
		blueprint: blueprint,
		buildID:   buildID,
		controller: run.New(
			api.logger.With("blueprint", blueprint, "build_id", buildID),
			api.service,
			api.executor,
			api.estimator,
			run.WithPlanTimeout(api.planTimeout),
		),
	}
	api.sessions[key] = s
	go api.watchForArchive(s)
	return s
}

// watchForArchive persists each finished run's execution log. A run is
// archived once, at its first terminal snapshot with log entries.
func (api *conductorAPI) watchForArchive(s *session) {
	if api.runLogs == nil {
		return
	}
	states, cancel := s.controller.Subscribe()
	defer cancel()

	archived := false
	for state := range states {
		if state.Status == domain.RunStatusExecuting {
			archived = false
			continue
		}
		if archived || !state.Status.Terminal() || len(state.ExecutionLogs) == 0 {
			continue
		}
		archived = true
		runID := uuid.NewString()
		ctx, cancelWrite := context.WithTimeout(context.Background(), 10*time.Second)
		err := api.runLogs.AppendEntries(ctx, s.blueprint, s.buildID, runID, state.ExecutionLogs)
		cancelWrite()
		if err != nil {
			api.logger.Error("archive run log failed",
				"blueprint", s.blueprint, "build_id", s.buildID, "run_id", runID, "error", err)
			continue
		}
		api.logger.Info("run log archived",
			"blueprint", s.blueprint, "build_id", s.buildID, "run_id", runID,
			"entries", len(state.ExecutionLogs), "status", string(state.Status))
	}
}

func (api *conductorAPI) sessionFromRequest(w http.ResponseWriter, r *http.Request) (*session, bool) {
	blueprint := strings.TrimSpace(r.PathValue("name"))
	buildID := strings.TrimSpace(r.PathValue("build_id"))
	if blueprint == "" || buildID == "" {
		api.writeError(w, r, http.StatusBadRequest, "blueprint_and_build_id_required")
		return nil, false
	}
	return api.getSession(blueprint, buildID), true
}

// dispatch runs one command and maps validation failures to a conflict
// response carrying the issues.
func (api *conductorAPI) dispatch(w http.ResponseWriter, r *http.Request, s *session, cmd run.Command) bool {
	if err := s.controller.Dispatch(r.Context(), cmd); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			api.writeJSON(w, http.StatusConflict, map[string]any{
				"error":      "command_rejected",
				"issues":     verr.Issues,
				"request_id": r.Header.Get("X-Request-Id"),
			})
			return false
		}
		api.logger.Error("command failed", "command", run.CommandName(cmd), "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return false
	}
	return true
}

func (api *conductorAPI) readJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	// An empty body means "all defaults" for command posts.
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

func (api *conductorAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *conductorAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}
