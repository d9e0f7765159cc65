package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/keremk/renku-sub000/internal/repo"
	"github.com/keremk/renku-sub000/internal/run"
)

type confirmRequest struct {
	DryRun bool `json:"dry_run"`
}

type selectRequest struct {
	Target string `json:"target"`
}

type stateResponse struct {
	Status           string            `json:"status"`
	Plan             *planResponse     `json:"plan,omitempty"`
	ReRunFrom        *int              `json:"rerun_from,omitempty"`
	UpToLayer        *int              `json:"up_to_layer,omitempty"`
	ProducerStatuses map[string]string `json:"producer_statuses"`
	ExecutionLogs    []logEntryDTO     `json:"execution_logs"`
	Error            string            `json:"error,omitempty"`
	IsStopping       bool              `json:"is_stopping"`
	IsReplanning     bool              `json:"is_replanning"`
	TotalLayers      int               `json:"total_layers"`
	Selected         string            `json:"selected_for_regeneration,omitempty"`
}

type logEntryDTO struct {
	ID           string    `json:"id"`
	Seq          int64     `json:"seq"`
	Timestamp    time.Time `json:"timestamp"`
	Type         string    `json:"type"`
	Message      string    `json:"message,omitempty"`
	Status       string    `json:"status,omitempty"`
	ErrorDetails string    `json:"error_details,omitempty"`
}

type stagesResponse struct {
	Statuses    []string `json:"statuses"`
	ValidStarts []int    `json:"valid_starts"`
}

func stateToResponse(state run.State) stateResponse {
	out := stateResponse{
		Status:           string(state.Status),
		ReRunFrom:        state.LayerRange.ReRunFrom,
		UpToLayer:        state.LayerRange.UpToLayer,
		ProducerStatuses: make(map[string]string, len(state.ProducerStatuses)),
		ExecutionLogs:    make([]logEntryDTO, 0, len(state.ExecutionLogs)),
		Error:            state.Error,
		IsStopping:       state.IsStopping,
		IsReplanning:     state.IsReplanning,
		TotalLayers:      state.TotalLayers,
		Selected:         state.SelectedForRegeneration,
	}
	if state.Plan != nil {
		plan := planToResponse(*state.Plan)
		out.Plan = &plan
	}
	for producer, status := range state.ProducerStatuses {
		out.ProducerStatuses[producer] = string(status)
	}
	for _, entry := range state.ExecutionLogs {
		out.ExecutionLogs = append(out.ExecutionLogs, logEntryDTO{
			ID:           entry.ID,
			Seq:          entry.Seq,
			Timestamp:    entry.Timestamp,
			Type:         entry.Type,
			Message:      entry.Message,
			Status:       string(entry.Status),
			ErrorDetails: entry.ErrorDetails,
		})
	}
	return out
}

func (api *conductorAPI) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s, ok := api.sessionFromRequest(w, r)
	if !ok {
		return
	}
	var req confirmRequest
	if !api.readJSON(w, r, &req) {
		return
	}
	if !api.dispatch(w, r, s, run.ConfirmExecution{DryRun: req.DryRun}) {
		return
	}
	api.writeJSON(w, http.StatusAccepted, stateToResponse(s.controller.Snapshot()))
}

func (api *conductorAPI) handleCancel(w http.ResponseWriter, r *http.Request) {
	s, ok := api.sessionFromRequest(w, r)
	if !ok {
		return
	}
	if !api.dispatch(w, r, s, run.CancelExecution{}) {
		return
	}
	api.writeJSON(w, http.StatusAccepted, stateToResponse(s.controller.Snapshot()))
}

func (api *conductorAPI) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s, ok := api.sessionFromRequest(w, r)
	if !ok {
		return
	}
	if !api.dispatch(w, r, s, run.DismissDialog{}) {
		return
	}
	api.writeJSON(w, http.StatusOK, stateToResponse(s.controller.Snapshot()))
}

func (api *conductorAPI) handleReset(w http.ResponseWriter, r *http.Request) {
	s, ok := api.sessionFromRequest(w, r)
	if !ok {
		return
	}
	if !api.dispatch(w, r, s, run.Reset{}) {
		return
	}
	api.writeJSON(w, http.StatusOK, stateToResponse(s.controller.Snapshot()))
}

// handleRehydrate seeds producer statuses from the persisted artifact
// records of a previous run.
func (api *conductorAPI) handleRehydrate(w http.ResponseWriter, r *http.Request) {
	s, ok := api.sessionFromRequest(w, r)
	if !ok {
		return
	}
	if api.artifacts == nil {
		api.writeError(w, r, http.StatusServiceUnavailable, "artifact_store_unavailable")
		return
	}
	artifacts, err := api.artifacts.ListArtifacts(r.Context(), repo.ArtifactFilter{
		Blueprint: s.blueprint,
		BuildID:   s.buildID,
	})
	if err != nil {
		api.logger.Error("list artifacts failed", "blueprint", s.blueprint, "build_id", s.buildID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	if !api.dispatch(w, r, s, run.InitializeFromManifest{Artifacts: artifacts}) {
		return
	}
	api.writeJSON(w, http.StatusOK, stateToResponse(s.controller.Snapshot()))
}

func (api *conductorAPI) handleSelect(w http.ResponseWriter, r *http.Request) {
	s, ok := api.sessionFromRequest(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if !api.readJSON(w, r, &req) {
		return
	}
	if !api.dispatch(w, r, s, run.SelectForRegeneration{Target: strings.TrimSpace(req.Target)}) {
		return
	}
	api.writeJSON(w, http.StatusOK, stateToResponse(s.controller.Snapshot()))
}

func (api *conductorAPI) handleGetState(w http.ResponseWriter, r *http.Request) {
	s, ok := api.sessionFromRequest(w, r)
	if !ok {
		return
	}
	api.writeJSON(w, http.StatusOK, stateToResponse(s.controller.Snapshot()))
}

func (api *conductorAPI) handleGetStages(w http.ResponseWriter, r *http.Request) {
	s, ok := api.sessionFromRequest(w, r)
	if !ok {
		return
	}
	view := s.controller.Stages()
	out := stagesResponse{
		Statuses:    make([]string, 0, len(view.Statuses)),
		ValidStarts: view.ValidStarts,
	}
	for _, status := range view.Statuses {
		out.Statuses = append(out.Statuses, string(status))
	}
	if out.ValidStarts == nil {
		out.ValidStarts = []int{}
	}
	api.writeJSON(w, http.StatusOK, out)
}

// handleListRunLogs serves archived execution logs of finished runs.
func (api *conductorAPI) handleListRunLogs(w http.ResponseWriter, r *http.Request) {
	s, ok := api.sessionFromRequest(w, r)
	if !ok {
		return
	}
	if api.runLogs == nil {
		api.writeError(w, r, http.StatusServiceUnavailable, "run_log_store_unavailable")
		return
	}
	filter := repo.RunLogFilter{
		Blueprint: s.blueprint,
		BuildID:   s.buildID,
		RunID:     strings.TrimSpace(r.URL.Query().Get("run_id")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			api.writeError(w, r, http.StatusBadRequest, "invalid_limit")
			return
		}
		filter.Limit = limit
	}
	entries, err := api.runLogs.ListEntries(r.Context(), filter)
	if err != nil {
		api.logger.Error("list run logs failed", "blueprint", s.blueprint, "build_id", s.buildID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	out := make([]logEntryDTO, 0, len(entries))
	for _, entry := range entries {
		out = append(out, logEntryDTO{
			ID:           entry.ID,
			Seq:          entry.Seq,
			Timestamp:    entry.Timestamp,
			Type:         entry.Type,
			Message:      entry.Message,
			Status:       string(entry.Status),
			ErrorDetails: entry.ErrorDetails,
		})
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
