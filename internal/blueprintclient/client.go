// Package blueprintclient talks to the blueprint/build service that
// owns graph topology and the persisted artifact manifests.
package blueprintclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/keremk/renku-sub000/internal/domain"
)

var (
	ErrNotFound     = errors.New("blueprint build not found")
	ErrUnauthorized = errors.New("blueprint request unauthorized")
)

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("blueprint api error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("blueprint api error (status=%d): %s", e.StatusCode, body)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type buildResponse struct {
	Graph     graphDTO      `json:"graph"`
	Artifacts []artifactDTO `json:"artifacts"`
}

type graphDTO struct {
	Name  string    `json:"name"`
	Nodes []nodeDTO `json:"nodes"`
	Edges []edgeDTO `json:"edges"`
}

type nodeDTO struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Producer string `json:"producer,omitempty"`
}

type edgeDTO struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Conditional bool   `json:"conditional,omitempty"`
	Condition   string `json:"condition,omitempty"`
}

type artifactDTO struct {
	ID            string `json:"id"`
	Producer      string `json:"producer"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	Hash          string `json:"hash,omitempty"`
	MimeType      string `json:"mime_type,omitempty"`
	Size          int64  `json:"size,omitempty"`
}

// GetBuild fetches one build's graph and artifact manifest.
func (c *Client) GetBuild(ctx context.Context, blueprint, buildID string) (domain.BlueprintGraph, []domain.ArtifactInfo, error) {
	blueprint = strings.TrimSpace(blueprint)
	buildID = strings.TrimSpace(buildID)
	if blueprint == "" || buildID == "" {
		return domain.BlueprintGraph{}, nil, errors.New("blueprint and build id are required")
	}

	path := fmt.Sprintf("/blueprints/%s/builds/%s", blueprint, buildID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return domain.BlueprintGraph{}, nil, err
	}
	var out buildResponse
	if err := c.do(req, &out); err != nil {
		return domain.BlueprintGraph{}, nil, err
	}

	graph := domain.BlueprintGraph{Name: out.Graph.Name}
	for _, node := range out.Graph.Nodes {
		graph.Nodes = append(graph.Nodes, domain.BlueprintNode{
			ID:       node.ID,
			Kind:     domain.NodeKind(node.Kind),
			Producer: node.Producer,
		})
	}
	for _, edge := range out.Graph.Edges {
		graph.Edges = append(graph.Edges, domain.BlueprintEdge{
			From:        edge.From,
			To:          edge.To,
			Conditional: edge.Conditional,
			Condition:   edge.Condition,
		})
	}

	artifacts := make([]domain.ArtifactInfo, 0, len(out.Artifacts))
	for _, artifact := range out.Artifacts {
		artifacts = append(artifacts, domain.ArtifactInfo{
			ID:            artifact.ID,
			Producer:      artifact.Producer,
			Status:        artifact.Status,
			FailureReason: artifact.FailureReason,
			Hash:          artifact.Hash,
			MimeType:      artifact.MimeType,
			Size:          artifact.Size,
		})
	}
	return graph, artifacts, nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode blueprint response: %w", err)
		}
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}
