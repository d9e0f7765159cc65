// Package run owns the execution state machine of one blueprint build
// session: plan, confirm, execute, cancel, reset.
package run

import "github.com/keremk/renku-sub000/internal/domain"

// State is the single mutable aggregate of a build session. The
// controller owns it exclusively; everything else reads snapshots.
type State struct {
	Status                  domain.RunStatus
	Plan                    *domain.PlanInfo
	LayerRange              domain.LayerRange
	ProducerStatuses        map[string]domain.ProducerStatus
	ExecutionLogs           []domain.ExecutionLogEntry
	Error                   string
	IsStopping              bool
	IsReplanning            bool
	TotalLayers             int
	SelectedForRegeneration string
	BottomPanelVisible      bool
}

func newState() State {
	return State{
		Status:           domain.RunStatusIdle,
		ProducerStatuses: map[string]domain.ProducerStatus{},
	}
}

// clone deep-copies the aggregate so a snapshot can never alias
// controller-owned state.
func (s State) clone() State {
	out := s
	out.ProducerStatuses = make(map[string]domain.ProducerStatus, len(s.ProducerStatuses))
	for producer, status := range s.ProducerStatuses {
		out.ProducerStatuses[producer] = status
	}
	out.ExecutionLogs = append([]domain.ExecutionLogEntry(nil), s.ExecutionLogs...)
	if s.Plan != nil {
		plan := *s.Plan
		plan.Layers = append([]domain.LayerInfo(nil), s.Plan.Layers...)
		for i := range plan.Layers {
			plan.Layers[i].Jobs = append([]domain.Job(nil), plan.Layers[i].Jobs...)
		}
		plan.ProducerCosts = append([]domain.ProducerCost(nil), s.Plan.ProducerCosts...)
		if s.Plan.Surgical != nil {
			surgical := domain.SurgicalInfo{Pairs: append([]domain.SurgicalPair(nil), s.Plan.Surgical.Pairs...)}
			plan.Surgical = &surgical
		}
		out.Plan = &plan
	}
	if s.LayerRange.ReRunFrom != nil {
		from := *s.LayerRange.ReRunFrom
		out.LayerRange.ReRunFrom = &from
	}
	if s.LayerRange.UpToLayer != nil {
		to := *s.LayerRange.UpToLayer
		out.LayerRange.UpToLayer = &to
	}
	return out
}
