package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keremk/renku-sub000/internal/domain"
	"github.com/keremk/renku-sub000/internal/planner"
	"github.com/keremk/renku-sub000/internal/stage"
	"github.com/keremk/renku-sub000/internal/stream"
)

// BlueprintService serves the graph and existing-artifact knowledge of
// one blueprint build.
type BlueprintService interface {
	GetBuild(ctx context.Context, blueprint, buildID string) (domain.BlueprintGraph, []domain.ArtifactInfo, error)
}

// RunHandle identifies an execution at the external executor.
type RunHandle string

// Executor runs a plan range and streams execution events back.
type Executor interface {
	Execute(ctx context.Context, plan domain.PlanInfo, layerRange domain.LayerRange, dryRun bool) (RunHandle, stream.Stream, error)
	Cancel(ctx context.Context, handle RunHandle) error
}

// StageView is the range-picker's read model: derived stage statuses
// (nil for a clean run) and the legal start indices.
type StageView struct {
	Statuses    []domain.StageStatus
	ValidStarts []int
}

const defaultPlanTimeout = 30 * time.Second

// Controller drives the plan/confirm/execute/cancel lifecycle of one
// build session. All state mutations happen under one mutex, strictly
// as reactions to dispatched commands or completed asynchronous
// operations; callers only ever see snapshots.
type Controller struct {
	logger    *slog.Logger
	service   BlueprintService
	executor  Executor
	estimator planner.CostEstimator

	planTimeout   time.Duration
	keepSelection bool
	now           func() time.Time

	mu        sync.Mutex
	state     State
	blueprint string
	buildID   string
	planToken uint64
	handle    RunHandle
	nextSeq   int64
	subs      map[uint64]chan State
	nextSub   uint64
}

// Option tunes controller construction.
type Option func(*Controller)

// WithPlanTimeout bounds every plan fetch. Execution has no timeout;
// only explicit cancellation bounds it.
func WithPlanTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.planTimeout = d
		}
	}
}

// WithKeepSelectionOnReset keeps SelectedForRegeneration across reset.
func WithKeepSelectionOnReset() Option {
	return func(c *Controller) { c.keepSelection = true }
}

// WithClock overrides the log-entry clock.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

func New(logger *slog.Logger, service BlueprintService, executor Executor, estimator planner.CostEstimator, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		logger:      logger,
		service:     service,
		executor:    executor,
		estimator:   estimator,
		planTimeout: defaultPlanTimeout,
		now:         time.Now,
		state:       newState(),
		subs:        map[uint64]chan State{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe registers a state observer. The channel carries the current
// snapshot immediately and the latest snapshot after every mutation;
// a slow subscriber only ever loses intermediate snapshots, never the
// newest one, and never blocks the controller.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan State, 1)
	ch <- c.state.clone()
	c.subs[id] = ch
	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (c *Controller) notifyLocked() {
	if len(c.subs) == 0 {
		return
	}
	snapshot := c.state.clone()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// Stages derives the range-picker view from the current plan and
// producer statuses.
func (c *Controller) Stages() StageView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stagesLocked()
}

func (c *Controller) stagesLocked() StageView {
	view := StageView{}
	ctx := stage.Context{TotalStages: c.state.TotalLayers}
	if c.state.Plan != nil {
		ctx.TotalStages = c.state.Plan.TotalLayers
		view.Statuses = stage.DeriveStageStatuses(*c.state.Plan, c.state.ProducerStatuses)
		ctx.StageStatuses = view.Statuses
	}
	view.ValidStarts = stage.ValidStartStages(ctx)
	return view
}

// Dispatch is the single entry point for every command.
func (c *Controller) Dispatch(ctx context.Context, cmd Command) error {
	switch cmd := cmd.(type) {
	case RequestPlan:
		return c.requestPlan(ctx, cmd)
	case ReplanWithRange:
		return c.replanWithRange(ctx, cmd)
	case SetLayerRange:
		return c.setLayerRange(cmd)
	case ConfirmExecution:
		return c.confirmExecution(ctx, cmd)
	case CancelExecution:
		return c.cancelExecution(ctx)
	case DismissDialog:
		return c.dismissDialog()
	case Reset:
		return c.reset()
	case InitializeFromManifest:
		return c.initializeFromManifest(cmd)
	case SetTotalLayers:
		return c.setTotalLayers(cmd)
	case SelectForRegeneration:
		return c.selectForRegeneration(cmd)
	case SetBottomPanelVisible:
		return c.setBottomPanelVisible(cmd)
	default:
		return illegalCommand(fmt.Sprintf("unknown command %T", cmd))
	}
}

func illegalCommand(issue string) error {
	verr := &domain.ValidationError{}
	verr.Add(issue)
	return verr
}

func (c *Controller) requestPlan(ctx context.Context, cmd RequestPlan) error {
	c.mu.Lock()
	switch c.state.Status {
	case domain.RunStatusIdle, domain.RunStatusCompleted, domain.RunStatusFailed, domain.RunStatusCancelled:
	default:
		c.mu.Unlock()
		return illegalCommand(fmt.Sprintf("requestPlan not valid while %s", c.state.Status))
	}

	c.blueprint = cmd.Blueprint
	c.buildID = cmd.BuildID
	c.planToken++
	token := c.planToken
	target := c.state.SelectedForRegeneration

	c.state.Status = domain.RunStatusPlanning
	c.state.Error = ""
	c.state.IsStopping = false
	c.state.IsReplanning = false
	c.notifyLocked()
	c.mu.Unlock()

	go c.fetchPlan(ctx, token, cmd.Blueprint, cmd.BuildID, nil, cmd.UpToLayer, target)
	return nil
}

func (c *Controller) replanWithRange(ctx context.Context, cmd ReplanWithRange) error {
	c.mu.Lock()
	// A replan may also supersede a still-pending earlier plan fetch;
	// the stale result is discarded by token below.
	if c.state.Status != domain.RunStatusConfirming && c.state.Status != domain.RunStatusPlanning {
		c.mu.Unlock()
		return illegalCommand(fmt.Sprintf("replanWithRange not valid while %s", c.state.Status))
	}
	total := c.state.TotalLayers
	if cmd.ReRunFrom < 0 || cmd.ReRunFrom > total-1 {
		c.mu.Unlock()
		return illegalCommand(fmt.Sprintf("reRunFrom %d out of bounds [0,%d]", cmd.ReRunFrom, total-1))
	}
	if cmd.ReRunFrom > 0 && c.state.Plan != nil {
		view := c.stagesLocked()
		if !stage.IsValidStartStage(cmd.ReRunFrom, stage.Context{TotalStages: total, StageStatuses: view.Statuses}) {
			c.mu.Unlock()
			return illegalCommand(fmt.Sprintf("stage %d is not a valid re-run start", cmd.ReRunFrom))
		}
	}

	c.planToken++
	token := c.planToken
	blueprint, buildID := c.blueprint, c.buildID
	target := c.state.SelectedForRegeneration
	var upTo *int
	if c.state.LayerRange.UpToLayer != nil {
		to := *c.state.LayerRange.UpToLayer
		upTo = &to
	}

	// Prior plan stays visible while the replan is in flight.
	c.state.Status = domain.RunStatusPlanning
	c.state.IsReplanning = true
	c.state.Error = ""
	c.notifyLocked()
	c.mu.Unlock()

	from := cmd.ReRunFrom
	go c.fetchPlan(ctx, token, blueprint, buildID, &from, upTo, target)
	return nil
}

// fetchPlan fetches the build graph, computes a plan and applies the
// result unless a later request superseded this one.
func (c *Controller) fetchPlan(ctx context.Context, token uint64, blueprint, buildID string, reRunFrom, upToLayer *int, target string) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.planTimeout)
	defer cancel()

	var plan domain.PlanInfo
	graph, artifacts, err := c.service.GetBuild(fetchCtx, blueprint, buildID)
	if err == nil {
		plan, err = planner.ComputePlan(graph, artifacts, c.estimator, planner.Options{
			ReRunFrom: reRunFrom,
			Target:    target,
		})
	}
	if err != nil {
		var perr *domain.PlanningError
		if errors.Is(err, context.DeadlineExceeded) {
			err = &domain.PlanningError{Reason: "plan request timed out", Timeout: true, Err: err}
		} else if !errors.As(err, &perr) {
			err = &domain.PlanningError{Reason: "plan request failed", Err: err}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.planToken {
		c.logger.Info("stale plan result discarded", "blueprint", blueprint, "build_id", buildID)
		return
	}
	if c.state.Status != domain.RunStatusPlanning {
		// Dismissed while the fetch was suspended.
		return
	}

	if err != nil {
		c.state.Status = domain.RunStatusFailed
		c.state.Error = err.Error()
		c.state.IsReplanning = false
		c.notifyLocked()
		return
	}

	c.state.Plan = &plan
	c.state.TotalLayers = plan.TotalLayers
	c.state.Status = domain.RunStatusConfirming
	c.state.IsReplanning = false
	c.state.LayerRange = domain.LayerRange{}
	if reRunFrom != nil {
		from := *reRunFrom
		c.state.LayerRange.ReRunFrom = &from
	}
	if upToLayer != nil && *upToLayer >= 0 && *upToLayer < plan.TotalLayers {
		to := *upToLayer
		c.state.LayerRange.UpToLayer = &to
	} else if upToLayer != nil {
		c.logger.Warn("upToLayer out of bounds, using open end", "up_to_layer", *upToLayer, "total_layers", plan.TotalLayers)
	}
	c.notifyLocked()
}

func (c *Controller) setLayerRange(cmd SetLayerRange) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Status != domain.RunStatusConfirming {
		return illegalCommand(fmt.Sprintf("setLayerRange not valid while %s", c.state.Status))
	}
	if err := cmd.Range.Validate(c.state.TotalLayers); err != nil {
		return err
	}
	// Changing the start layer alters which artifacts are reusable and
	// must go through replanWithRange.
	newFrom, _ := cmd.Range.Resolve(c.state.TotalLayers)
	currentFrom, _ := c.state.LayerRange.Resolve(c.state.TotalLayers)
	if newFrom != currentFrom {
		return illegalCommand("changing reRunFrom requires a replan")
	}
	c.state.LayerRange = domain.LayerRange{}
	if cmd.Range.ReRunFrom != nil {
		from := *cmd.Range.ReRunFrom
		c.state.LayerRange.ReRunFrom = &from
	}
	if cmd.Range.UpToLayer != nil {
		to := *cmd.Range.UpToLayer
		c.state.LayerRange.UpToLayer = &to
	}
	c.notifyLocked()
	return nil
}

func (c *Controller) confirmExecution(ctx context.Context, cmd ConfirmExecution) error {
	c.mu.Lock()
	if c.state.Status != domain.RunStatusConfirming {
		c.mu.Unlock()
		return illegalCommand(fmt.Sprintf("confirmExecution not valid while %s", c.state.Status))
	}
	if c.state.Plan == nil {
		c.mu.Unlock()
		return illegalCommand("no plan to confirm")
	}
	// Range pointers are replaced wholesale on every update, so value
	// copies are safe to hand to the executor goroutine.
	layerRange := c.state.LayerRange
	if err := layerRange.Validate(c.state.TotalLayers); err != nil {
		c.mu.Unlock()
		return err
	}
	from, _ := layerRange.Resolve(c.state.TotalLayers)
	if from > 0 {
		view := c.stagesLocked()
		if !stage.IsValidStartStage(from, stage.Context{TotalStages: c.state.TotalLayers, StageStatuses: view.Statuses}) {
			c.mu.Unlock()
			return illegalCommand(fmt.Sprintf("stage %d is not a valid re-run start", from))
		}
	}

	plan := *c.state.Plan
	c.state.Status = domain.RunStatusExecuting
	c.state.IsStopping = false
	c.notifyLocked()
	c.mu.Unlock()

	go c.executeRun(context.WithoutCancel(ctx), plan, layerRange, cmd.DryRun)
	return nil
}

// executeRun opens the executor stream and reconciles its events into
// state until closure. Execution is unbounded; only cancellation or the
// stream ending finishes it.
func (c *Controller) executeRun(ctx context.Context, plan domain.PlanInfo, layerRange domain.LayerRange, dryRun bool) {
	handle, events, err := c.executor.Execute(ctx, plan, layerRange, dryRun)
	if err != nil {
		var cerr *domain.ConnectivityError
		if !errors.As(err, &cerr) {
			err = &domain.ConnectivityError{Reason: "executor unreachable", Err: err}
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state.Status == domain.RunStatusExecuting {
			c.state.Status = domain.RunStatusFailed
			c.state.Error = err.Error()
			c.notifyLocked()
		}
		return
	}

	c.mu.Lock()
	c.handle = handle
	c.mu.Unlock()

	// Even after a cancel request, keep draining so statuses of jobs
	// that were mid-flight are still recorded before the terminal state.
	verdict := ""
	for event := range events.Events() {
		if event.Kind == stream.EventRunComplete {
			verdict = event.Verdict
		}
		c.applyEvent(event)
	}
	c.finishRun(verdict, events.Err())
}

func (c *Controller) applyEvent(event stream.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Status != domain.RunStatusExecuting {
		return
	}

	entry := domain.ExecutionLogEntry{
		ID:           uuid.NewString(),
		Seq:          c.nextSeq,
		Timestamp:    c.now().UTC(),
		Type:         string(event.Kind),
		Message:      event.Message,
		ErrorDetails: event.ErrorDetails,
	}
	c.nextSeq++

	switch event.Kind {
	case stream.EventJobStart:
		if event.Producer != "" {
			c.state.ProducerStatuses[event.Producer] = domain.ProducerStatusRunning
		}
		entry.Status = domain.ProducerStatusRunning
	case stream.EventJobComplete:
		status := domain.NormalizeProducerStatus(event.Status)
		if status == "" {
			status = domain.ProducerStatusNotRunYet
		}
		if event.Producer != "" {
			c.state.ProducerStatuses[event.Producer] = status
		}
		entry.Status = status
		if status == domain.ProducerStatusError {
			perr := &domain.ProducerError{Producer: event.Producer, Message: event.ErrorDetails}
			if entry.Message == "" {
				entry.Message = perr.Error()
			}
		}
	case stream.EventError:
		if entry.Message == "" {
			entry.Message = "execution error"
		}
	}

	c.state.ExecutionLogs = append(c.state.ExecutionLogs, entry)
	c.notifyLocked()
}

// finishRun applies the terminal status once the stream has closed.
// A stop request always wins over the executor's verdict.
func (c *Controller) finishRun(verdict string, streamErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Status != domain.RunStatusExecuting {
		return
	}
	c.handle = ""
	switch {
	case c.state.IsStopping:
		c.state.Status = domain.RunStatusCancelled
	case streamErr != nil:
		c.state.Status = domain.RunStatusFailed
		c.state.Error = streamErr.Error()
	case verdict == stream.VerdictSuccess:
		c.state.Status = domain.RunStatusCompleted
	default:
		c.state.Status = domain.RunStatusFailed
		if c.state.Error == "" {
			c.state.Error = fmt.Sprintf("executor verdict: %s", orFailure(verdict))
		}
	}
	c.notifyLocked()
}

func orFailure(verdict string) string {
	if verdict == "" {
		return stream.VerdictFailure
	}
	return verdict
}

func (c *Controller) cancelExecution(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Status != domain.RunStatusExecuting {
		c.mu.Unlock()
		return illegalCommand(fmt.Sprintf("cancelExecution not valid while %s", c.state.Status))
	}
	if c.state.IsStopping {
		c.mu.Unlock()
		return nil
	}
	c.state.IsStopping = true
	handle := c.handle
	c.notifyLocked()
	c.mu.Unlock()

	go func() {
		if err := c.executor.Cancel(context.WithoutCancel(ctx), handle); err != nil {
			c.logger.Error("cancel request failed", "handle", string(handle), "error", err)
		}
	}()
	return nil
}

func (c *Controller) dismissDialog() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state.Status {
	case domain.RunStatusIdle:
		// Idempotent no-op.
		return nil
	case domain.RunStatusConfirming, domain.RunStatusFailed, domain.RunStatusPlanning:
		// Invalidate any still-suspended plan fetch.
		c.planToken++
		c.state.Status = domain.RunStatusIdle
		c.state.Plan = nil
		c.state.Error = ""
		c.state.IsReplanning = false
		c.state.LayerRange = domain.LayerRange{}
		c.notifyLocked()
		return nil
	default:
		return illegalCommand(fmt.Sprintf("dismissDialog not valid while %s", c.state.Status))
	}
}

func (c *Controller) reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Status.Terminal() {
		return illegalCommand(fmt.Sprintf("reset not valid while %s", c.state.Status))
	}
	selected := c.state.SelectedForRegeneration
	visible := c.state.BottomPanelVisible
	totalLayers := c.state.TotalLayers
	c.state = newState()
	c.state.TotalLayers = totalLayers
	c.state.BottomPanelVisible = visible
	if c.keepSelection {
		c.state.SelectedForRegeneration = selected
	}
	c.nextSeq = 0
	c.notifyLocked()
	return nil
}

func (c *Controller) initializeFromManifest(cmd InitializeFromManifest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Status != domain.RunStatusIdle {
		return illegalCommand(fmt.Sprintf("initializeFromManifest not valid while %s", c.state.Status))
	}
	c.state.ProducerStatuses = stage.ProducerStatusesFromManifest(cmd.Artifacts)
	c.notifyLocked()
	return nil
}

func (c *Controller) setTotalLayers(cmd SetTotalLayers) error {
	if cmd.TotalLayers < 0 {
		return illegalCommand("total layers must be non-negative")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.TotalLayers = cmd.TotalLayers
	c.notifyLocked()
	return nil
}

func (c *Controller) selectForRegeneration(cmd SelectForRegeneration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.SelectedForRegeneration = cmd.Target
	c.notifyLocked()
	return nil
}

func (c *Controller) setBottomPanelVisible(cmd SetBottomPanelVisible) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.BottomPanelVisible = cmd.Visible
	c.notifyLocked()
	return nil
}
