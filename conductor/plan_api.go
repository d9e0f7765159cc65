package main

import (
	"net/http"

	"github.com/keremk/renku-sub000/internal/domain"
	"github.com/keremk/renku-sub000/internal/run"
)

type planRequest struct {
	UpToLayer *int `json:"up_to_layer,omitempty"`
}

type replanRequest struct {
	ReRunFrom int `json:"rerun_from"`
}

type rangeRequest struct {
	ReRunFrom *int `json:"rerun_from,omitempty"`
	UpToLayer *int `json:"up_to_layer,omitempty"`
}

type planResponse struct {
	Blueprint       string            `json:"blueprint"`
	TotalLayers     int               `json:"total_layers"`
	TotalJobs       int               `json:"total_jobs"`
	TotalCost       float64           `json:"total_cost"`
	MinCost         float64           `json:"min_cost"`
	MaxCost         float64           `json:"max_cost"`
	HasRanges       bool              `json:"has_ranges"`
	HasPlaceholders bool              `json:"has_placeholders"`
	SkippedLayers   int               `json:"skipped_layers"`
	Layers          []layerResponse   `json:"layers"`
	ProducerCosts   []producerCostDTO `json:"producer_costs"`
	Surgical        []surgicalPairDTO `json:"surgical,omitempty"`
}

type layerResponse struct {
	Index    int           `json:"index"`
	JobCount int           `json:"job_count"`
	Cost     float64       `json:"cost"`
	MinCost  float64       `json:"min_cost"`
	MaxCost  float64       `json:"max_cost"`
	Jobs     []jobResponse `json:"jobs"`
}

type jobResponse struct {
	Producer    string  `json:"producer"`
	Node        string  `json:"node"`
	Cost        float64 `json:"cost"`
	MinCost     float64 `json:"min_cost,omitempty"`
	MaxCost     float64 `json:"max_cost,omitempty"`
	HasRange    bool    `json:"has_range,omitempty"`
	Placeholder bool    `json:"placeholder,omitempty"`
}

type producerCostDTO struct {
	Producer string  `json:"producer"`
	JobCount int     `json:"job_count"`
	Cost     float64 `json:"cost"`
	MinCost  float64 `json:"min_cost"`
	MaxCost  float64 `json:"max_cost"`
}

type surgicalPairDTO struct {
	TargetArtifact string `json:"target_artifact"`
	SourceJob      string `json:"source_job"`
}

func planToResponse(plan domain.PlanInfo) planResponse {
	out := planResponse{
		Blueprint:       plan.Blueprint,
		TotalLayers:     plan.TotalLayers,
		TotalJobs:       plan.TotalJobs,
		TotalCost:       plan.TotalCost,
		MinCost:         plan.MinCost,
		MaxCost:         plan.MaxCost,
		HasRanges:       plan.HasRanges,
		HasPlaceholders: plan.HasPlaceholders,
		SkippedLayers:   plan.SkippedLayers,
		Layers:          make([]layerResponse, 0, len(plan.Layers)),
		ProducerCosts:   make([]producerCostDTO, 0, len(plan.ProducerCosts)),
	}
	for _, layer := range plan.Layers {
		lr := layerResponse{
			Index:    layer.Index,
			JobCount: layer.JobCount,
			Cost:     layer.Cost,
			MinCost:  layer.MinCost,
			MaxCost:  layer.MaxCost,
			Jobs:     make([]jobResponse, 0, len(layer.Jobs)),
		}
		for _, job := range layer.Jobs {
			lr.Jobs = append(lr.Jobs, jobResponse{
				Producer:    job.Producer,
				Node:        job.NodeID,
				Cost:        job.Cost.Value,
				MinCost:     job.Cost.Min,
				MaxCost:     job.Cost.Max,
				HasRange:    job.Cost.HasRange,
				Placeholder: job.Cost.Placeholder,
			})
		}
		out.Layers = append(out.Layers, lr)
	}
	for _, pc := range plan.ProducerCosts {
		out.ProducerCosts = append(out.ProducerCosts, producerCostDTO{
			Producer: pc.Producer,
			JobCount: pc.JobCount,
			Cost:     pc.Cost,
			MinCost:  pc.MinCost,
			MaxCost:  pc.MaxCost,
		})
	}
	if plan.Surgical != nil {
		for _, pair := range plan.Surgical.Pairs {
			out.Surgical = append(out.Surgical, surgicalPairDTO{
				TargetArtifact: pair.TargetArtifact,
				SourceJob:      pair.SourceJob,
			})
		}
	}
	return out
}

func (api *conductorAPI) handlePlan(w http.ResponseWriter, r *http.Request) {
	s, ok := api.sessionFromRequest(w, r)
	if !ok {
		return
	}
	var req planRequest
	if !api.readJSON(w, r, &req) {
		return
	}
	cmd := run.RequestPlan{Blueprint: s.blueprint, BuildID: s.buildID, UpToLayer: req.UpToLayer}
	if !api.dispatch(w, r, s, cmd) {
		return
	}
	api.writeJSON(w, http.StatusAccepted, stateToResponse(s.controller.Snapshot()))
}

func (api *conductorAPI) handleReplan(w http.ResponseWriter, r *http.Request) {
	s, ok := api.sessionFromRequest(w, r)
	if !ok {
		return
	}
	var req replanRequest
	if !api.readJSON(w, r, &req) {
		return
	}
	if !api.dispatch(w, r, s, run.ReplanWithRange{ReRunFrom: req.ReRunFrom}) {
		return
	}
	api.writeJSON(w, http.StatusAccepted, stateToResponse(s.controller.Snapshot()))
}

func (api *conductorAPI) handleSetRange(w http.ResponseWriter, r *http.Request) {
	s, ok := api.sessionFromRequest(w, r)
	if !ok {
		return
	}
	var req rangeRequest
	if !api.readJSON(w, r, &req) {
		return
	}
	cmd := run.SetLayerRange{Range: domain.LayerRange{ReRunFrom: req.ReRunFrom, UpToLayer: req.UpToLayer}}
	if !api.dispatch(w, r, s, cmd) {
		return
	}
	api.writeJSON(w, http.StatusOK, stateToResponse(s.controller.Snapshot()))
}
