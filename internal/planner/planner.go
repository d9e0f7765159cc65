// Package planner turns a blueprint graph and existing-artifact
// knowledge into a layered, cost-annotated execution plan.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/keremk/renku-sub000/internal/domain"
)

// Options tune a single plan computation.
type Options struct {
	// ReRunFrom excludes layers below it from the job lists; their
	// artifacts are assumed reusable. The layers are still counted for
	// skip messaging.
	ReRunFrom *int
	// Target, when set to an output node id, additionally computes the
	// surgical regeneration chain for that artifact.
	Target string
}

// ComputePlan layers the producer nodes of graph by longest path and
// annotates every job with an estimated cost. It is a pure function of
// its inputs and fails with *domain.PlanningError on a cycle, a
// dangling reference, or a cost-model failure.
func ComputePlan(graph domain.BlueprintGraph, existing []domain.ArtifactInfo, estimator CostEstimator, opts Options) (domain.PlanInfo, error) {
	if estimator == nil {
		return domain.PlanInfo{}, &domain.PlanningError{Reason: "cost estimator is required"}
	}

	index := graph.NodeIndex()
	for _, edge := range graph.Edges {
		if _, ok := index[edge.From]; !ok {
			return domain.PlanInfo{}, &domain.PlanningError{Reason: fmt.Sprintf("edge references unknown node %q", edge.From)}
		}
		if _, ok := index[edge.To]; !ok {
			return domain.PlanInfo{}, &domain.PlanningError{Reason: fmt.Sprintf("edge references unknown node %q", edge.To)}
		}
	}

	producers := graph.ProducerNodes()
	if len(producers) == 0 {
		return domain.PlanInfo{}, &domain.PlanningError{Reason: "graph has no producer nodes"}
	}

	incoming := make(map[string][]string, len(graph.Edges))
	outgoing := make(map[string][]string, len(graph.Edges))
	for _, edge := range graph.Edges {
		incoming[edge.To] = append(incoming[edge.To], edge.From)
		outgoing[edge.From] = append(outgoing[edge.From], edge.To)
	}

	deps := producerDependencies(producers, index, incoming)
	layerOf, err := layerProducers(producers, deps)
	if err != nil {
		return domain.PlanInfo{}, err
	}

	totalLayers := 0
	for _, layer := range layerOf {
		if layer+1 > totalLayers {
			totalLayers = layer + 1
		}
	}

	reRunFrom := 0
	if opts.ReRunFrom != nil {
		reRunFrom = *opts.ReRunFrom
		if reRunFrom < 0 || reRunFrom > totalLayers-1 {
			return domain.PlanInfo{}, &domain.PlanningError{Reason: fmt.Sprintf("reRunFrom %d out of bounds [0,%d]", reRunFrom, totalLayers-1)}
		}
	}

	existingByID := make(map[string]domain.ArtifactInfo, len(existing))
	for _, artifact := range existing {
		if strings.TrimSpace(artifact.ID) == "" {
			continue
		}
		existingByID[artifact.ID] = artifact
	}

	available := func(nodeID string) bool {
		node := index[nodeID]
		switch node.Kind {
		case domain.NodeKindInput:
			return true
		case domain.NodeKindOutput:
			if _, ok := existingByID[nodeID]; ok {
				return true
			}
			// Outputs of layers excluded by reRunFrom are reusable.
			for _, from := range incoming[nodeID] {
				if index[from].Kind == domain.NodeKindProducer && layerOf[from] < reRunFrom {
					return true
				}
			}
			return false
		default:
			return false
		}
	}

	plan := domain.PlanInfo{
		Blueprint:     graph.Name,
		TotalLayers:   totalLayers,
		SkippedLayers: reRunFrom,
		Layers:        make([]domain.LayerInfo, totalLayers),
	}
	for i := range plan.Layers {
		plan.Layers[i].Index = i
	}

	byProducer := make(map[string]*domain.ProducerCost)

	ordered := make([]domain.BlueprintNode, len(producers))
	copy(ordered, producers)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Producer != ordered[j].Producer {
			return ordered[i].Producer < ordered[j].Producer
		}
		return ordered[i].ID < ordered[j].ID
	})

	for _, node := range ordered {
		layer := layerOf[node.ID]
		if layer < reRunFrom {
			continue
		}

		inputs := make([]InputRef, 0, len(incoming[node.ID]))
		inputNames := make([]string, 0, len(incoming[node.ID]))
		sources := append([]string(nil), incoming[node.ID]...)
		sort.Strings(sources)
		for _, from := range sources {
			inputs = append(inputs, InputRef{Name: from, Available: available(from)})
			inputNames = append(inputNames, from)
		}

		cost, err := estimator.EstimateJob(JobSpec{Producer: node.Producer, NodeID: node.ID, Inputs: inputs})
		if err != nil {
			return domain.PlanInfo{}, &domain.PlanningError{Reason: fmt.Sprintf("cost model failed for producer %q", node.Producer), Err: err}
		}
		cost = normalizeCost(cost)

		job := domain.Job{Producer: node.Producer, NodeID: node.ID, Inputs: inputNames, Cost: cost}
		info := &plan.Layers[layer]
		info.Jobs = append(info.Jobs, job)
		info.JobCount++
		info.Cost += cost.Value
		info.MinCost += cost.Min
		info.MaxCost += cost.Max

		plan.TotalJobs++
		plan.TotalCost += cost.Value
		plan.MinCost += cost.Min
		plan.MaxCost += cost.Max
		if cost.HasRange {
			plan.HasRanges = true
		}
		if cost.Placeholder {
			plan.HasPlaceholders = true
		}

		agg := byProducer[node.Producer]
		if agg == nil {
			agg = &domain.ProducerCost{Producer: node.Producer}
			byProducer[node.Producer] = agg
		}
		agg.JobCount++
		agg.Cost += cost.Value
		agg.MinCost += cost.Min
		agg.MaxCost += cost.Max
	}

	names := make([]string, 0, len(byProducer))
	for name := range byProducer {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		plan.ProducerCosts = append(plan.ProducerCosts, *byProducer[name])
	}

	if strings.TrimSpace(opts.Target) != "" {
		surgical, err := surgicalChain(opts.Target, index, incoming, outgoing, available)
		if err != nil {
			return domain.PlanInfo{}, err
		}
		plan.Surgical = surgical
	}

	return plan, nil
}

// producerDependencies maps each producer node id to the producer node
// ids it depends on, walking backwards through input/output nodes.
// Conditional edges count as dependencies for layering.
func producerDependencies(producers []domain.BlueprintNode, index map[string]domain.BlueprintNode, incoming map[string][]string) map[string][]string {
	deps := make(map[string][]string, len(producers))
	for _, producer := range producers {
		seen := make(map[string]struct{})
		var found []string
		var walk func(nodeID string)
		walk = func(nodeID string) {
			for _, from := range incoming[nodeID] {
				if _, ok := seen[from]; ok {
					continue
				}
				seen[from] = struct{}{}
				if index[from].Kind == domain.NodeKindProducer {
					found = append(found, from)
					continue
				}
				walk(from)
			}
		}
		walk(producer.ID)
		sort.Strings(found)
		deps[producer.ID] = found
	}
	return deps
}

// layerProducers assigns longest-path layer indices: a producer's layer
// is one greater than the maximum layer of its dependencies.
func layerProducers(producers []domain.BlueprintNode, deps map[string][]string) (map[string]int, error) {
	inDegree := make(map[string]int, len(producers))
	dependents := make(map[string][]string, len(producers))
	for _, producer := range producers {
		inDegree[producer.ID] = len(deps[producer.ID])
		for _, dep := range deps[producer.ID] {
			dependents[dep] = append(dependents[dep], producer.ID)
		}
	}

	ready := make([]string, 0, len(producers))
	for id, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	layerOf := make(map[string]int, len(producers))
	processed := 0
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		processed++
		for _, dependent := range dependents[id] {
			if layerOf[id]+1 > layerOf[dependent] {
				layerOf[dependent] = layerOf[id] + 1
			}
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
				sort.Strings(ready)
			}
		}
	}

	if processed != len(producers) {
		return nil, &domain.PlanningError{Reason: "dependency graph contains a cycle"}
	}
	return layerOf, nil
}

// surgicalChain computes the minimal upstream chain regenerating one
// target artifact: the producing job plus every ancestor job whose
// output is not already available.
func surgicalChain(target string, index map[string]domain.BlueprintNode, incoming, outgoing map[string][]string, available func(string) bool) (*domain.SurgicalInfo, error) {
	node, ok := index[target]
	if !ok || node.Kind != domain.NodeKindOutput {
		return nil, &domain.PlanningError{Reason: fmt.Sprintf("surgical target %q is not an output node", target)}
	}

	info := &domain.SurgicalInfo{}
	seen := make(map[string]struct{})
	var walk func(outputID string, force bool)
	walk = func(outputID string, force bool) {
		if _, ok := seen[outputID]; ok {
			return
		}
		seen[outputID] = struct{}{}
		if !force && available(outputID) {
			return
		}
		for _, from := range incoming[outputID] {
			if index[from].Kind != domain.NodeKindProducer {
				continue
			}
			info.Pairs = append(info.Pairs, domain.SurgicalPair{TargetArtifact: outputID, SourceJob: from})
			for _, upstream := range incoming[from] {
				if index[upstream].Kind == domain.NodeKindOutput {
					walk(upstream, false)
				}
			}
		}
	}
	walk(target, true)

	if len(info.Pairs) == 0 {
		return nil, &domain.PlanningError{Reason: fmt.Sprintf("surgical target %q has no source job", target)}
	}
	sort.Slice(info.Pairs, func(i, j int) bool {
		if info.Pairs[i].TargetArtifact != info.Pairs[j].TargetArtifact {
			return info.Pairs[i].TargetArtifact < info.Pairs[j].TargetArtifact
		}
		return info.Pairs[i].SourceJob < info.Pairs[j].SourceJob
	})
	return info, nil
}

func normalizeCost(cost domain.Cost) domain.Cost {
	if !cost.HasRange {
		cost.Min = cost.Value
		cost.Max = cost.Value
	}
	return cost
}
