package execclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keremk/renku-sub000/internal/domain"
	"github.com/keremk/renku-sub000/internal/stream"
)

func twoLayerPlan() domain.PlanInfo {
	return domain.PlanInfo{
		Blueprint:   "storybook",
		TotalLayers: 2,
		TotalJobs:   2,
		Layers: []domain.LayerInfo{
			{Index: 0, JobCount: 1, Jobs: []domain.Job{{Producer: "outline", NodeID: "p1", Inputs: []string{"i1"}}}},
			{Index: 1, JobCount: 1, Jobs: []domain.Job{{Producer: "chapters", NodeID: "p2", Inputs: []string{"o1"}}}},
		},
	}
}

func TestExecuteStreamsEvents(t *testing.T) {
	var got runRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/runs" {
			t.Errorf("method=%s path=%s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set(runIDHeader, "run-42")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "event: job-start\ndata: {\"producer\":\"outline\",\"job\":\"p1\"}\n\n")
		fmt.Fprintf(w, ": ping\n\n")
		fmt.Fprintf(w, "event: job-complete\ndata: {\"producer\":\"outline\",\"status\":\"succeeded\"}\n\n")
		fmt.Fprintf(w, "event: run-complete\ndata: {\"verdict\":\"success\"}\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	client := New(srv.URL)
	upTo := 1
	handle, events, err := client.Execute(context.Background(), twoLayerPlan(), domain.LayerRange{UpToLayer: &upTo}, true)
	if err != nil {
		t.Fatalf("Execute err=%v", err)
	}
	defer events.Close()

	if handle != "run-42" {
		t.Fatalf("handle=%q, want run-42", handle)
	}
	if !got.DryRun || got.Blueprint != "storybook" {
		t.Fatalf("request=%+v", got)
	}
	if len(got.Layers) != 2 || got.Layers[0].Jobs[0].Producer != "outline" {
		t.Fatalf("layers=%+v", got.Layers)
	}
	if got.UpToLayer == nil || *got.UpToLayer != 1 {
		t.Fatalf("up_to_layer=%v, want 1", got.UpToLayer)
	}

	var kinds []stream.EventKind
	for event := range events.Events() {
		kinds = append(kinds, event.Kind)
	}
	want := []stream.EventKind{stream.EventJobStart, stream.EventJobComplete, stream.EventRunComplete}
	if len(kinds) != len(want) {
		t.Fatalf("kinds=%v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds=%v, want %v", kinds, want)
		}
	}
	if err := events.Err(); err != nil {
		t.Fatalf("stream err=%v", err)
	}
}

func TestExecuteSendsOnlySelectedLayers(t *testing.T) {
	var got runRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set(runIDHeader, "run-1")
		fmt.Fprintf(w, "event: run-complete\ndata: {\"verdict\":\"success\"}\n\n")
	}))
	defer srv.Close()

	client := New(srv.URL)
	from := 1
	_, events, err := client.Execute(context.Background(), twoLayerPlan(), domain.LayerRange{ReRunFrom: &from}, false)
	if err != nil {
		t.Fatalf("Execute err=%v", err)
	}
	defer events.Close()
	for range events.Events() {
	}

	if len(got.Layers) != 1 || got.Layers[0].Index != 1 {
		t.Fatalf("layers=%+v, want only layer 1", got.Layers)
	}
	if got.ReRunFrom == nil || *got.ReRunFrom != 1 {
		t.Fatalf("rerun_from=%v, want 1", got.ReRunFrom)
	}
}

func TestExecuteRejectedByExecutor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New(srv.URL)
	_, _, err := client.Execute(context.Background(), twoLayerPlan(), domain.LayerRange{}, false)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("err=%v, want *APIError with status 503", err)
	}
}

func TestExecuteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := New(srv.URL)
	_, _, err := client.Execute(context.Background(), twoLayerPlan(), domain.LayerRange{}, false)
	var cerr *domain.ConnectivityError
	if !errors.As(err, &cerr) {
		t.Fatalf("err=%v, want *ConnectivityError", err)
	}
}

func TestCancel(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := New(srv.URL)
	if err := client.Cancel(context.Background(), "run-42"); err != nil {
		t.Fatalf("Cancel err=%v", err)
	}
	if gotPath != "/runs/run-42:cancel" {
		t.Fatalf("path=%q", gotPath)
	}
	if err := client.Cancel(context.Background(), ""); err == nil {
		t.Fatalf("blank handle accepted")
	}
}

func TestCancelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown run", http.StatusNotFound)
	}))
	defer srv.Close()

	client := New(srv.URL)
	if err := client.Cancel(context.Background(), "run-9"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestExecuteHonoursContextOnConnect(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	client := New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := client.Execute(ctx, twoLayerPlan(), domain.LayerRange{}, false)
	if err == nil {
		t.Fatalf("expected connect deadline to fail the request")
	}
}
