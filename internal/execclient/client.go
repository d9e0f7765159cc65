// Package execclient talks to the external executor over HTTP, opening
// one server-sent-event stream per confirmed run.
package execclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/keremk/renku-sub000/internal/domain"
	"github.com/keremk/renku-sub000/internal/run"
	"github.com/keremk/renku-sub000/internal/stream"
)

const runIDHeader = "X-Run-Id"

var ErrNotFound = errors.New("executor run not found")

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("executor api error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("executor api error (status=%d): %s", e.StatusCode, body)
}

// Client implements run.Executor against the executor's HTTP API.
// The streaming client carries no timeout; a run is bounded only by
// cancellation. Control calls use a separate short-timeout client.
type Client struct {
	baseURL   string
	streaming *http.Client
	control   *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		streaming: &http.Client{},
		control:   &http.Client{Timeout: 10 * time.Second},
	}
}

type runRequest struct {
	Blueprint string     `json:"blueprint"`
	DryRun    bool       `json:"dry_run"`
	ReRunFrom *int       `json:"rerun_from,omitempty"`
	UpToLayer *int       `json:"up_to_layer,omitempty"`
	Layers    []layerDTO `json:"layers"`
}

type layerDTO struct {
	Index int      `json:"index"`
	Jobs  []jobDTO `json:"jobs"`
}

type jobDTO struct {
	Producer string   `json:"producer"`
	Node     string   `json:"node"`
	Inputs   []string `json:"inputs,omitempty"`
}

// Execute submits the plan range and returns the run handle plus the
// live event stream backed by the response body.
func (c *Client) Execute(ctx context.Context, plan domain.PlanInfo, layerRange domain.LayerRange, dryRun bool) (run.RunHandle, stream.Stream, error) {
	payload := runRequest{
		Blueprint: plan.Blueprint,
		DryRun:    dryRun,
		ReRunFrom: layerRange.ReRunFrom,
		UpToLayer: layerRange.UpToLayer,
	}
	from, to := layerRange.Resolve(plan.TotalLayers)
	for i := from; i <= to && i >= 0 && i < len(plan.Layers); i++ {
		layer := layerDTO{Index: plan.Layers[i].Index}
		for _, job := range plan.Layers[i].Jobs {
			layer.Jobs = append(layer.Jobs, jobDTO{
				Producer: job.Producer,
				Node:     job.NodeID,
				Inputs:   job.Inputs,
			})
		}
		payload.Layers = append(payload.Layers, layer)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("marshal run request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/runs", bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streaming.Do(req)
	if err != nil {
		return "", nil, &domain.ConnectivityError{Reason: "executor unreachable", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return "", nil, &APIError{StatusCode: resp.StatusCode, Body: string(payload)}
	}

	handle := run.RunHandle(strings.TrimSpace(resp.Header.Get(runIDHeader)))
	return handle, stream.NewSSEStream(resp.Body), nil
}

// Cancel asks the executor to stop a run. Stream closure, not this
// call's response, drives the controller's terminal state.
func (c *Client) Cancel(ctx context.Context, handle run.RunHandle) error {
	if strings.TrimSpace(string(handle)) == "" {
		return errors.New("run handle is required")
	}
	url := fmt.Sprintf("%s/runs/%s:cancel", c.baseURL, handle)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.control.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}
