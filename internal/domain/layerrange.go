package domain

import "fmt"

// LayerRange selects the layers a run covers. A nil bound means "open
// end": layer 0 for ReRunFrom, the last layer for UpToLayer.
type LayerRange struct {
	ReRunFrom *int
	UpToLayer *int
}

// StageRange is the range-picker's concrete view of a LayerRange, with
// both ends resolved.
type StageRange struct {
	From int
	To   int
}

// Resolve returns the concrete bounds for totalLayers layers.
func (r LayerRange) Resolve(totalLayers int) (from, to int) {
	from = 0
	to = totalLayers - 1
	if r.ReRunFrom != nil {
		from = *r.ReRunFrom
	}
	if r.UpToLayer != nil {
		to = *r.UpToLayer
	}
	return from, to
}

// Validate checks the range invariant against totalLayers:
// 0 <= resolved from <= resolved to <= totalLayers-1.
func (r LayerRange) Validate(totalLayers int) error {
	verr := &ValidationError{}
	if totalLayers < 1 {
		verr.Add("total layers must be at least 1")
		return verr.OrNil()
	}
	from, to := r.Resolve(totalLayers)
	if from < 0 || from > totalLayers-1 {
		verr.Add(fmt.Sprintf("reRunFrom %d out of bounds [0,%d]", from, totalLayers-1))
	}
	if to < 0 || to > totalLayers-1 {
		verr.Add(fmt.Sprintf("upToLayer %d out of bounds [0,%d]", to, totalLayers-1))
	}
	if from <= totalLayers-1 && to <= totalLayers-1 && from >= 0 && to >= 0 && to < from {
		verr.Add(fmt.Sprintf("upToLayer %d precedes reRunFrom %d", to, from))
	}
	return verr.OrNil()
}

// StageRangeFromLayerRange resolves a layer range into a stage range.
func StageRangeFromLayerRange(r LayerRange, totalLayers int) StageRange {
	from, to := r.Resolve(totalLayers)
	return StageRange{From: from, To: to}
}

// LayerRangeFromStageRange converts a stage range back into a layer
// range, mapping the open ends back to nil so the round trip through
// StageRangeFromLayerRange is exact.
func LayerRangeFromStageRange(s StageRange, totalLayers int) LayerRange {
	var r LayerRange
	if s.From != 0 {
		from := s.From
		r.ReRunFrom = &from
	}
	if s.To != totalLayers-1 {
		to := s.To
		r.UpToLayer = &to
	}
	return r
}
