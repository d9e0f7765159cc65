package stage

import "github.com/keremk/renku-sub000/internal/domain"

// Context carries what start-stage validation needs to know.
type Context struct {
	TotalStages   int
	StageStatuses []domain.StageStatus
}

// IsValidStartStage reports whether index is a legal starting point for
// a partial re-run. Index 0 is always valid. A later index is valid
// only when every preceding stage succeeded, so that skipping those
// stages can rely on durable, reusable outputs; a failed or not-run
// stage anywhere in the prefix blocks skip-forward past it.
func IsValidStartStage(index int, ctx Context) bool {
	if index == 0 {
		return true
	}
	if index < 0 || index >= ctx.TotalStages {
		return false
	}
	if len(ctx.StageStatuses) == 0 {
		// No history at all: nothing before index is reusable.
		return false
	}
	for i := 0; i < index && i < len(ctx.StageStatuses); i++ {
		if ctx.StageStatuses[i] != domain.StageStatusSucceeded {
			return false
		}
	}
	return index <= len(ctx.StageStatuses)
}

// ValidStartStages returns every legal start index in ascending order,
// computed once per range-selection refresh.
func ValidStartStages(ctx Context) []int {
	if ctx.TotalStages < 1 {
		return nil
	}
	out := make([]int, 0, ctx.TotalStages)
	for i := 0; i < ctx.TotalStages; i++ {
		if IsValidStartStage(i, ctx) {
			out = append(out, i)
		}
	}
	return out
}
