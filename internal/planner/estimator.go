package planner

import "github.com/keremk/renku-sub000/internal/domain"

// InputRef is one resolved input of a job. Available is false when the
// input is an output that has not been produced yet.
type InputRef struct {
	Name      string
	Available bool
}

// JobSpec is the estimator's view of one producer invocation.
type JobSpec struct {
	Producer string
	NodeID   string
	Inputs   []InputRef
}

// CostEstimator prices a single job. How costs are priced stays
// external; implementations may return a bounded range and mark the
// cost as a placeholder when it depends on unavailable upstream output.
type CostEstimator interface {
	EstimateJob(spec JobSpec) (domain.Cost, error)
}

// EstimatorFunc adapts a function to the CostEstimator interface.
type EstimatorFunc func(spec JobSpec) (domain.Cost, error)

func (f EstimatorFunc) EstimateJob(spec JobSpec) (domain.Cost, error) {
	return f(spec)
}
