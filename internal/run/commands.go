package run

import "github.com/keremk/renku-sub000/internal/domain"

// Command is a message delivered through the controller's single
// dispatch entry point. Presentation-driven callbacks become commands
// here, which keeps session behavior replayable in tests.
type Command interface {
	commandName() string
}

// RequestPlan asks for a fresh plan of a blueprint build. Valid from
// idle and any terminal status.
type RequestPlan struct {
	Blueprint string
	BuildID   string
	UpToLayer *int
}

// ReplanWithRange recomputes the plan with a new start layer; the prior
// plan stays visible while the replan is in flight.
type ReplanWithRange struct {
	ReRunFrom int
}

// SetLayerRange updates the selected range without a new plan fetch;
// upToLayer alone never changes which artifacts are reusable.
type SetLayerRange struct {
	Range domain.LayerRange
}

// ConfirmExecution opens the executor stream against the chosen range.
// DryRun suppresses persistence in the external executor.
type ConfirmExecution struct {
	DryRun bool
}

// CancelExecution requests a stop. Consumption keeps draining in-flight
// events until the stream closes; the terminal status is cancelled.
type CancelExecution struct{}

// DismissDialog discards the current plan without executing. From idle
// it is a no-op.
type DismissDialog struct{}

// Reset returns a terminal session to idle, clearing all run state.
type Reset struct{}

// InitializeFromManifest seeds producer statuses from a prior run's
// artifact records without entering execution.
type InitializeFromManifest struct {
	Artifacts []domain.ArtifactInfo
}

// SetTotalLayers records the layer count known from graph topology.
type SetTotalLayers struct {
	TotalLayers int
}

// SelectForRegeneration records the artifact targeted for surgical
// regeneration.
type SelectForRegeneration struct {
	Target string
}

// SetBottomPanelVisible toggles the log panel visibility flag.
type SetBottomPanelVisible struct {
	Visible bool
}

func (RequestPlan) commandName() string            { return "request-plan" }
func (ReplanWithRange) commandName() string        { return "replan-with-range" }
func (SetLayerRange) commandName() string          { return "set-layer-range" }
func (ConfirmExecution) commandName() string       { return "confirm-execution" }
func (CancelExecution) commandName() string        { return "cancel-execution" }
func (DismissDialog) commandName() string          { return "dismiss-dialog" }
func (Reset) commandName() string                  { return "reset" }
func (InitializeFromManifest) commandName() string { return "initialize-from-manifest" }
func (SetTotalLayers) commandName() string         { return "set-total-layers" }
func (SelectForRegeneration) commandName() string  { return "select-for-regeneration" }
func (SetBottomPanelVisible) commandName() string  { return "set-bottom-panel-visible" }

// CommandName returns the wire name of a command, for logging.
func CommandName(cmd Command) string {
	if cmd == nil {
		return "unknown"
	}
	return cmd.commandName()
}
