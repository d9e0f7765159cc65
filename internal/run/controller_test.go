package run

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keremk/renku-sub000/internal/domain"
	"github.com/keremk/renku-sub000/internal/planner"
	"github.com/keremk/renku-sub000/internal/stream"
)

// chainGraph is outline -> chapters -> assembly across three layers.
func chainGraph() domain.BlueprintGraph {
	return domain.BlueprintGraph{
		Name: "storybook",
		Nodes: []domain.BlueprintNode{
			{ID: "i1", Kind: domain.NodeKindInput},
			{ID: "p1", Kind: domain.NodeKindProducer, Producer: "outline"},
			{ID: "o1", Kind: domain.NodeKindOutput},
			{ID: "p2", Kind: domain.NodeKindProducer, Producer: "chapters"},
			{ID: "o2", Kind: domain.NodeKindOutput},
			{ID: "p3", Kind: domain.NodeKindProducer, Producer: "assembly"},
			{ID: "o3", Kind: domain.NodeKindOutput},
		},
		Edges: []domain.BlueprintEdge{
			{From: "i1", To: "p1"},
			{From: "p1", To: "o1"},
			{From: "o1", To: "p2"},
			{From: "p2", To: "o2"},
			{From: "o2", To: "p3"},
			{From: "p3", To: "o3"},
		},
	}
}

func testEstimator() planner.CostEstimator {
	return planner.EstimatorFunc(func(spec planner.JobSpec) (domain.Cost, error) {
		return domain.Cost{Value: 0.41}, nil
	})
}

type fakeService struct {
	mu      sync.Mutex
	calls   int
	handler func(ctx context.Context, call int) (domain.BlueprintGraph, []domain.ArtifactInfo, error)
}

func (s *fakeService) GetBuild(ctx context.Context, blueprint, buildID string) (domain.BlueprintGraph, []domain.ArtifactInfo, error) {
	s.mu.Lock()
	call := s.calls
	s.calls++
	handler := s.handler
	s.mu.Unlock()
	return handler(ctx, call)
}

func staticService(graph domain.BlueprintGraph, artifacts []domain.ArtifactInfo) *fakeService {
	return &fakeService{handler: func(context.Context, int) (domain.BlueprintGraph, []domain.ArtifactInfo, error) {
		return graph, artifacts, nil
	}}
}

type fakeExecutor struct {
	mu        sync.Mutex
	pipe      *stream.Pipe
	execErr   error
	handle    RunHandle
	cancelled []RunHandle
	gotRange  domain.LayerRange
	gotDryRun bool
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{pipe: stream.NewPipe(), handle: "run-1"}
}

func (e *fakeExecutor) Execute(ctx context.Context, plan domain.PlanInfo, layerRange domain.LayerRange, dryRun bool) (RunHandle, stream.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.execErr != nil {
		return "", nil, e.execErr
	}
	e.gotRange = layerRange
	e.gotDryRun = dryRun
	return e.handle, e.pipe, nil
}

func (e *fakeExecutor) Cancel(ctx context.Context, handle RunHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled = append(e.cancelled, handle)
	return nil
}

func (e *fakeExecutor) cancelCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cancelled)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func waitStatus(t *testing.T, c *Controller, want domain.RunStatus) State {
	t.Helper()
	ch, cancel := c.Subscribe()
	defer cancel()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case snapshot := <-ch:
			if snapshot.Status == want {
				return snapshot
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %q, currently %q", want, c.Snapshot().Status)
		}
	}
}

func dispatch(t *testing.T, c *Controller, cmd Command) {
	t.Helper()
	if err := c.Dispatch(context.Background(), cmd); err != nil {
		t.Fatalf("Dispatch(%T) err=%v", cmd, err)
	}
}

func TestRequestPlanReachesConfirming(t *testing.T) {
	c := New(testLogger(), staticService(chainGraph(), nil), newFakeExecutor(), testEstimator())
	upTo := 1
	dispatch(t, c, RequestPlan{Blueprint: "storybook", BuildID: "b1", UpToLayer: &upTo})

	state := waitStatus(t, c, domain.RunStatusConfirming)
	if state.Plan == nil || state.Plan.TotalLayers != 3 || state.Plan.TotalJobs != 3 {
		t.Fatalf("plan=%+v, want 3 layers / 3 jobs", state.Plan)
	}
	if state.TotalLayers != 3 {
		t.Fatalf("TotalLayers=%d, want 3", state.TotalLayers)
	}
	if state.LayerRange.ReRunFrom != nil {
		t.Fatalf("reRunFrom should default to open end")
	}
	if state.LayerRange.UpToLayer == nil || *state.LayerRange.UpToLayer != 1 {
		t.Fatalf("upToLayer=%v, want 1", state.LayerRange.UpToLayer)
	}
}

func TestRequestPlanIllegalWhileConfirming(t *testing.T) {
	c := New(testLogger(), staticService(chainGraph(), nil), newFakeExecutor(), testEstimator())
	dispatch(t, c, RequestPlan{Blueprint: "storybook", BuildID: "b1"})
	waitStatus(t, c, domain.RunStatusConfirming)

	err := c.Dispatch(context.Background(), RequestPlan{Blueprint: "storybook", BuildID: "b1"})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err=%v, want *ValidationError", err)
	}
}

func TestRequestPlanFailure(t *testing.T) {
	svc := &fakeService{handler: func(context.Context, int) (domain.BlueprintGraph, []domain.ArtifactInfo, error) {
		return domain.BlueprintGraph{}, nil, errors.New("build not found")
	}}
	c := New(testLogger(), svc, newFakeExecutor(), testEstimator())
	dispatch(t, c, RequestPlan{Blueprint: "storybook", BuildID: "missing"})

	state := waitStatus(t, c, domain.RunStatusFailed)
	if !strings.Contains(state.Error, "build not found") {
		t.Fatalf("Error=%q, want wrapped cause", state.Error)
	}

	dispatch(t, c, DismissDialog{})
	state = c.Snapshot()
	if state.Status != domain.RunStatusIdle || state.Error != "" || state.Plan != nil {
		t.Fatalf("dismiss after failure left %+v", state)
	}
}

func TestRequestPlanTimeout(t *testing.T) {
	svc := &fakeService{handler: func(ctx context.Context, _ int) (domain.BlueprintGraph, []domain.ArtifactInfo, error) {
		<-ctx.Done()
		return domain.BlueprintGraph{}, nil, ctx.Err()
	}}
	c := New(testLogger(), svc, newFakeExecutor(), testEstimator(), WithPlanTimeout(20*time.Millisecond))
	dispatch(t, c, RequestPlan{Blueprint: "storybook", BuildID: "b1"})

	state := waitStatus(t, c, domain.RunStatusFailed)
	if !strings.Contains(state.Error, "timed out") {
		t.Fatalf("Error=%q, want timeout-specific error", state.Error)
	}
}

func TestDismissDialogIdempotentFromIdle(t *testing.T) {
	c := New(testLogger(), staticService(chainGraph(), nil), newFakeExecutor(), testEstimator())
	before := c.Snapshot()
	dispatch(t, c, DismissDialog{})
	dispatch(t, c, DismissDialog{})
	after := c.Snapshot()
	if before.Status != after.Status || after.Status != domain.RunStatusIdle {
		t.Fatalf("dismiss from idle changed status: %q -> %q", before.Status, after.Status)
	}
	if after.Plan != nil || after.Error != "" || len(after.ExecutionLogs) != 0 {
		t.Fatalf("dismiss from idle mutated state: %+v", after)
	}
}

// Scenario D: a later replan must win over a still-pending earlier
// requestPlan; the stale result is discarded by request token.
func TestStalePlanResultDiscarded(t *testing.T) {
	gate := make(chan struct{})
	svc := &fakeService{handler: func(ctx context.Context, call int) (domain.BlueprintGraph, []domain.ArtifactInfo, error) {
		if call == 0 {
			<-gate
		}
		return chainGraph(), nil, nil
	}}
	c := New(testLogger(), svc, newFakeExecutor(), testEstimator())
	dispatch(t, c, SetTotalLayers{TotalLayers: 3})
	dispatch(t, c, RequestPlan{Blueprint: "storybook", BuildID: "b1"})
	waitStatus(t, c, domain.RunStatusPlanning)

	dispatch(t, c, ReplanWithRange{ReRunFrom: 2})
	state := waitStatus(t, c, domain.RunStatusConfirming)
	if state.LayerRange.ReRunFrom == nil || *state.LayerRange.ReRunFrom != 2 {
		t.Fatalf("reRunFrom=%v, want 2", state.LayerRange.ReRunFrom)
	}
	if state.Plan.SkippedLayers != 2 {
		t.Fatalf("SkippedLayers=%d, want 2", state.Plan.SkippedLayers)
	}

	// Let the stale first request resolve; it must not overwrite.
	close(gate)
	time.Sleep(50 * time.Millisecond)
	state = c.Snapshot()
	if state.Status != domain.RunStatusConfirming || state.Plan.SkippedLayers != 2 {
		t.Fatalf("stale result overwrote state: %+v", state)
	}
	if state.LayerRange.ReRunFrom == nil || *state.LayerRange.ReRunFrom != 2 {
		t.Fatalf("stale result clobbered range: %+v", state.LayerRange)
	}
}

func TestReplanKeepsPriorPlanVisible(t *testing.T) {
	gate := make(chan struct{})
	svc := &fakeService{handler: func(ctx context.Context, call int) (domain.BlueprintGraph, []domain.ArtifactInfo, error) {
		if call == 1 {
			<-gate
		}
		return chainGraph(), nil, nil
	}}
	c := New(testLogger(), svc, newFakeExecutor(), testEstimator())
	dispatch(t, c, RequestPlan{Blueprint: "storybook", BuildID: "b1"})
	waitStatus(t, c, domain.RunStatusConfirming)

	dispatch(t, c, ReplanWithRange{ReRunFrom: 0})
	state := waitStatus(t, c, domain.RunStatusPlanning)
	if !state.IsReplanning {
		t.Fatalf("IsReplanning should be set during replan")
	}
	if state.Plan == nil {
		t.Fatalf("prior plan must stay visible during replan")
	}

	close(gate)
	state = waitStatus(t, c, domain.RunStatusConfirming)
	if state.IsReplanning {
		t.Fatalf("IsReplanning should clear once the replan lands")
	}
}

func TestSetLayerRange(t *testing.T) {
	c := New(testLogger(), staticService(chainGraph(), nil), newFakeExecutor(), testEstimator())
	dispatch(t, c, RequestPlan{Blueprint: "storybook", BuildID: "b1"})
	waitStatus(t, c, domain.RunStatusConfirming)

	upTo := 1
	dispatch(t, c, SetLayerRange{Range: domain.LayerRange{UpToLayer: &upTo}})
	state := c.Snapshot()
	if state.LayerRange.UpToLayer == nil || *state.LayerRange.UpToLayer != 1 {
		t.Fatalf("upToLayer=%v, want 1", state.LayerRange.UpToLayer)
	}

	bad := 5
	err := c.Dispatch(context.Background(), SetLayerRange{Range: domain.LayerRange{UpToLayer: &bad}})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("out-of-bounds range err=%v, want *ValidationError", err)
	}

	from := 1
	err = c.Dispatch(context.Background(), SetLayerRange{Range: domain.LayerRange{ReRunFrom: &from}})
	if !errors.As(err, &verr) || !strings.Contains(err.Error(), "replan") {
		t.Fatalf("reRunFrom change err=%v, want replan-required validation error", err)
	}
}

func TestConfirmExecutionCompletes(t *testing.T) {
	exec := newFakeExecutor()
	c := New(testLogger(), staticService(chainGraph(), nil), exec, testEstimator())
	dispatch(t, c, RequestPlan{Blueprint: "storybook", BuildID: "b1"})
	waitStatus(t, c, domain.RunStatusConfirming)
	dispatch(t, c, ConfirmExecution{DryRun: true})
	waitStatus(t, c, domain.RunStatusExecuting)

	exec.pipe.Publish(stream.Event{Kind: stream.EventLayerStart, Layer: 0, Message: "layer 0"})
	exec.pipe.Publish(stream.Event{Kind: stream.EventJobStart, Producer: "outline", Job: "p1"})
	exec.pipe.Publish(stream.Event{Kind: stream.EventJobComplete, Producer: "outline", Job: "p1", Status: "succeeded"})
	exec.pipe.Publish(stream.Event{Kind: stream.EventRunComplete, Verdict: stream.VerdictSuccess})
	exec.pipe.Close()

	state := waitStatus(t, c, domain.RunStatusCompleted)
	if !exec.gotDryRun {
		t.Fatalf("dryRun flag not forwarded to the executor")
	}
	if len(state.ExecutionLogs) != 4 {
		t.Fatalf("logs=%d, want 4", len(state.ExecutionLogs))
	}
	for i, entry := range state.ExecutionLogs {
		if entry.Seq != int64(i) {
			t.Fatalf("log %d Seq=%d, arrival order broken", i, entry.Seq)
		}
		if entry.ID == "" {
			t.Fatalf("log %d missing id", i)
		}
	}
	if state.ProducerStatuses["outline"] != domain.ProducerStatusSuccess {
		t.Fatalf("outline=%q, want success", state.ProducerStatuses["outline"])
	}
}

// Scenario C: cancellation sets IsStopping immediately, in-flight events
// still land, and the terminal status is cancelled, never completed.
func TestCancelExecution(t *testing.T) {
	exec := newFakeExecutor()
	c := New(testLogger(), staticService(chainGraph(), nil), exec, testEstimator())
	dispatch(t, c, RequestPlan{Blueprint: "storybook", BuildID: "b1"})
	waitStatus(t, c, domain.RunStatusConfirming)
	dispatch(t, c, ConfirmExecution{})
	waitStatus(t, c, domain.RunStatusExecuting)

	exec.pipe.Publish(stream.Event{Kind: stream.EventJobStart, Producer: "outline"})

	dispatch(t, c, CancelExecution{})
	state := c.Snapshot()
	if !state.IsStopping {
		t.Fatalf("IsStopping must be set immediately after cancel")
	}
	if state.Status != domain.RunStatusExecuting {
		t.Fatalf("status=%q, want executing until stream closure", state.Status)
	}

	// Mid-flight work still lands while the stream drains.
	exec.pipe.Publish(stream.Event{Kind: stream.EventJobComplete, Producer: "outline", Status: "succeeded"})
	exec.pipe.Publish(stream.Event{Kind: stream.EventRunComplete, Verdict: stream.VerdictSuccess})
	exec.pipe.Close()

	state = waitStatus(t, c, domain.RunStatusCancelled)
	if state.Status == domain.RunStatusCompleted {
		t.Fatalf("cancelled run must never complete")
	}
	if state.ProducerStatuses["outline"] != domain.ProducerStatusSuccess {
		t.Fatalf("in-flight completion lost: %q", state.ProducerStatuses["outline"])
	}
	deadline := time.After(time.Second)
	for exec.cancelCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("executor never received the cancel request")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestStreamErrorFailsRun(t *testing.T) {
	exec := newFakeExecutor()
	c := New(testLogger(), staticService(chainGraph(), nil), exec, testEstimator())
	dispatch(t, c, RequestPlan{Blueprint: "storybook", BuildID: "b1"})
	waitStatus(t, c, domain.RunStatusConfirming)
	dispatch(t, c, ConfirmExecution{})
	waitStatus(t, c, domain.RunStatusExecuting)

	exec.pipe.Publish(stream.Event{Kind: stream.EventInfo, Message: "starting"})
	exec.pipe.CloseWithError(errors.New("connection reset"))

	state := waitStatus(t, c, domain.RunStatusFailed)
	if !strings.Contains(state.Error, "stream closed unexpectedly") {
		t.Fatalf("Error=%q, want connectivity error", state.Error)
	}
	if len(state.ExecutionLogs) != 1 {
		t.Fatalf("logs appended before the break must be preserved, got %d", len(state.ExecutionLogs))
	}
}

func TestExecutorUnreachableFailsRun(t *testing.T) {
	exec := newFakeExecutor()
	exec.execErr = errors.New("dial tcp: connection refused")
	c := New(testLogger(), staticService(chainGraph(), nil), exec, testEstimator())
	dispatch(t, c, RequestPlan{Blueprint: "storybook", BuildID: "b1"})
	waitStatus(t, c, domain.RunStatusConfirming)
	dispatch(t, c, ConfirmExecution{})

	state := waitStatus(t, c, domain.RunStatusFailed)
	if !strings.Contains(state.Error, "executor unreachable") {
		t.Fatalf("Error=%q, want executor unreachable", state.Error)
	}
}

func TestJobFailureDoesNotDecideRunOutcome(t *testing.T) {
	exec := newFakeExecutor()
	c := New(testLogger(), staticService(chainGraph(), nil), exec, testEstimator())
	dispatch(t, c, RequestPlan{Blueprint: "storybook", BuildID: "b1"})
	waitStatus(t, c, domain.RunStatusConfirming)
	dispatch(t, c, ConfirmExecution{})
	waitStatus(t, c, domain.RunStatusExecuting)

	exec.pipe.Publish(stream.Event{Kind: stream.EventJobComplete, Producer: "outline", Status: "failed", ErrorDetails: "oom"})
	exec.pipe.Publish(stream.Event{Kind: stream.EventRunComplete, Verdict: stream.VerdictSuccess})
	exec.pipe.Close()

	state := waitStatus(t, c, domain.RunStatusCompleted)
	if state.ProducerStatuses["outline"] != domain.ProducerStatusError {
		t.Fatalf("outline=%q, want error", state.ProducerStatuses["outline"])
	}
}

func TestResetClearsRunState(t *testing.T) {
	exec := newFakeExecutor()
	c := New(testLogger(), staticService(chainGraph(), nil), exec, testEstimator())
	dispatch(t, c, SelectForRegeneration{Target: "o3"})
	dispatch(t, c, RequestPlan{Blueprint: "storybook", BuildID: "b1"})
	waitStatus(t, c, domain.RunStatusConfirming)
	dispatch(t, c, ConfirmExecution{})
	waitStatus(t, c, domain.RunStatusExecuting)
	exec.pipe.Publish(stream.Event{Kind: stream.EventRunComplete, Verdict: stream.VerdictSuccess})
	exec.pipe.Close()
	waitStatus(t, c, domain.RunStatusCompleted)

	dispatch(t, c, Reset{})
	state := c.Snapshot()
	if state.Status != domain.RunStatusIdle {
		t.Fatalf("status=%q, want idle", state.Status)
	}
	if state.Plan != nil || len(state.ExecutionLogs) != 0 || len(state.ProducerStatuses) != 0 {
		t.Fatalf("reset left run state behind: %+v", state)
	}
	if state.Error != "" || state.IsStopping {
		t.Fatalf("reset left error/stopping flags: %+v", state)
	}
	if state.SelectedForRegeneration != "" {
		t.Fatalf("reset should clear selection by default")
	}
	if state.TotalLayers != 3 {
		t.Fatalf("TotalLayers=%d, topology knowledge should survive reset", state.TotalLayers)
	}
}

func TestResetKeepsSelectionWhenConfigured(t *testing.T) {
	exec := newFakeExecutor()
	c := New(testLogger(), staticService(chainGraph(), nil), exec, testEstimator(), WithKeepSelectionOnReset())
	dispatch(t, c, SelectForRegeneration{Target: "o3"})
	dispatch(t, c, RequestPlan{Blueprint: "storybook", BuildID: "b1"})
	waitStatus(t, c, domain.RunStatusConfirming)
	dispatch(t, c, ConfirmExecution{})
	waitStatus(t, c, domain.RunStatusExecuting)
	exec.pipe.Publish(stream.Event{Kind: stream.EventRunComplete, Verdict: stream.VerdictSuccess})
	exec.pipe.Close()
	waitStatus(t, c, domain.RunStatusCompleted)

	dispatch(t, c, Reset{})
	if got := c.Snapshot().SelectedForRegeneration; got != "o3" {
		t.Fatalf("selection=%q, want o3", got)
	}
}

func TestInitializeFromManifest(t *testing.T) {
	c := New(testLogger(), staticService(chainGraph(), nil), newFakeExecutor(), testEstimator())
	dispatch(t, c, InitializeFromManifest{Artifacts: []domain.ArtifactInfo{
		{ID: "a1", Producer: "outline", Status: "succeeded"},
		{ID: "a2", Producer: "chapters", Status: "failed"},
	}})
	state := c.Snapshot()
	if state.Status != domain.RunStatusIdle {
		t.Fatalf("manifest seeding must not change status, got %q", state.Status)
	}
	if state.ProducerStatuses["outline"] != domain.ProducerStatusSuccess ||
		state.ProducerStatuses["chapters"] != domain.ProducerStatusError {
		t.Fatalf("statuses=%+v", state.ProducerStatuses)
	}

	dispatch(t, c, RequestPlan{Blueprint: "storybook", BuildID: "b1"})
	waitStatus(t, c, domain.RunStatusConfirming)
	err := c.Dispatch(context.Background(), InitializeFromManifest{})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("manifest seeding outside idle err=%v, want *ValidationError", err)
	}
}

func TestStagesViewAfterManifest(t *testing.T) {
	c := New(testLogger(), staticService(chainGraph(), nil), newFakeExecutor(), testEstimator())
	dispatch(t, c, InitializeFromManifest{Artifacts: []domain.ArtifactInfo{
		{ID: "a1", Producer: "outline", Status: "succeeded"},
		{ID: "a2", Producer: "chapters", Status: "failed"},
	}})
	dispatch(t, c, RequestPlan{Blueprint: "storybook", BuildID: "b1"})
	waitStatus(t, c, domain.RunStatusConfirming)

	view := c.Stages()
	want := []domain.StageStatus{domain.StageStatusSucceeded, domain.StageStatusFailed, domain.StageStatusNotRun}
	if len(view.Statuses) != len(want) {
		t.Fatalf("statuses=%v, want %v", view.Statuses, want)
	}
	for i := range want {
		if view.Statuses[i] != want[i] {
			t.Fatalf("statuses[%d]=%q, want %q", i, view.Statuses[i], want[i])
		}
	}
	wantStarts := []int{0, 1}
	if len(view.ValidStarts) != len(wantStarts) {
		t.Fatalf("valid starts=%v, want %v", view.ValidStarts, wantStarts)
	}
	for i := range wantStarts {
		if view.ValidStarts[i] != wantStarts[i] {
			t.Fatalf("valid starts=%v, want %v", view.ValidStarts, wantStarts)
		}
	}
}

func TestSnapshotIsolation(t *testing.T) {
	c := New(testLogger(), staticService(chainGraph(), nil), newFakeExecutor(), testEstimator())
	dispatch(t, c, InitializeFromManifest{Artifacts: []domain.ArtifactInfo{
		{ID: "a1", Producer: "outline", Status: "succeeded"},
	}})
	snapshot := c.Snapshot()
	snapshot.ProducerStatuses["outline"] = domain.ProducerStatusError
	snapshot.ExecutionLogs = append(snapshot.ExecutionLogs, domain.ExecutionLogEntry{ID: "rogue"})

	fresh := c.Snapshot()
	if fresh.ProducerStatuses["outline"] != domain.ProducerStatusSuccess {
		t.Fatalf("snapshot mutation leaked into controller state")
	}
	if len(fresh.ExecutionLogs) != 0 {
		t.Fatalf("snapshot log mutation leaked into controller state")
	}
}

func TestConfirmIllegalOutsideConfirming(t *testing.T) {
	c := New(testLogger(), staticService(chainGraph(), nil), newFakeExecutor(), testEstimator())
	err := c.Dispatch(context.Background(), ConfirmExecution{})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err=%v, want *ValidationError", err)
	}
	err = c.Dispatch(context.Background(), CancelExecution{})
	if !errors.As(err, &verr) {
		t.Fatalf("cancel outside executing err=%v, want *ValidationError", err)
	}
	err = c.Dispatch(context.Background(), Reset{})
	if !errors.As(err, &verr) {
		t.Fatalf("reset outside terminal err=%v, want *ValidationError", err)
	}
}
