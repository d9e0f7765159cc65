package domain

import "sort"

// Cost is an estimated cost for a single job. When the estimator can
// only bound the value, Min/Max carry the bounds and HasRange is set.
// Placeholder marks a cost that depends on not-yet-produced upstream
// output.
type Cost struct {
	Value       float64
	Min         float64
	Max         float64
	HasRange    bool
	Placeholder bool
}

// Job is one producer invocation within a layer.
type Job struct {
	Producer string
	NodeID   string
	Inputs   []string
	Cost     Cost
}

// HasPlaceholder reports whether the job's cost depends on upstream
// output that does not exist yet.
func (j Job) HasPlaceholder() bool {
	return j.Cost.Placeholder
}

// LayerInfo is the per-layer breakdown of a plan.
type LayerInfo struct {
	Index    int
	JobCount int
	Cost     float64
	MinCost  float64
	MaxCost  float64
	Jobs     []Job
}

// ProducerCost aggregates estimated cost per producer name.
type ProducerCost struct {
	Producer string
	JobCount int
	Cost     float64
	MinCost  float64
	MaxCost  float64
}

// SurgicalPair names one target artifact and the job that regenerates it.
type SurgicalPair struct {
	TargetArtifact string
	SourceJob      string
}

// SurgicalInfo describes a targeted regeneration: one downstream
// artifact and its minimal upstream chain, as an alternative to a full
// layer-range re-run.
type SurgicalInfo struct {
	Pairs []SurgicalPair
}

// PlanInfo is a cost-annotated, layered execution plan. It is replaced
// wholesale by any replan, never patched in place.
type PlanInfo struct {
	Blueprint       string
	TotalLayers     int
	TotalJobs       int
	TotalCost       float64
	MinCost         float64
	MaxCost         float64
	HasRanges       bool
	HasPlaceholders bool
	SkippedLayers   int
	Layers          []LayerInfo
	ProducerCosts   []ProducerCost
	Surgical        *SurgicalInfo
}

// RangeTotals sums job count and costs over the layers selected by r.
// Over the unrestricted range the totals equal the plan totals exactly.
func (p PlanInfo) RangeTotals(r LayerRange) (jobs int, cost, minCost, maxCost float64) {
	from, to := r.Resolve(p.TotalLayers)
	for i := from; i <= to && i >= 0 && i < len(p.Layers); i++ {
		jobs += p.Layers[i].JobCount
		cost += p.Layers[i].Cost
		minCost += p.Layers[i].MinCost
		maxCost += p.Layers[i].MaxCost
	}
	return jobs, cost, minCost, maxCost
}

// LayerProducers returns the distinct producer names referenced by the
// jobs of layer index, sorted lexically.
func (p PlanInfo) LayerProducers(index int) []string {
	if index < 0 || index >= len(p.Layers) {
		return nil
	}
	seen := make(map[string]struct{})
	out := make([]string, 0, len(p.Layers[index].Jobs))
	for _, job := range p.Layers[index].Jobs {
		if _, ok := seen[job.Producer]; ok {
			continue
		}
		seen[job.Producer] = struct{}{}
		out = append(out, job.Producer)
	}
	sort.Strings(out)
	return out
}
