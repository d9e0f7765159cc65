package planner

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/keremk/renku-sub000/internal/domain"
)

const RateTableSchemaV1 = "renku.ratetable.v1"

// RateTable is a declarative cost model: one rate per producer name.
type RateTable struct {
	Schema string `json:"schema" yaml:"schema"`
	Rates  []Rate `json:"rates" yaml:"rates"`
}

// Rate prices one producer. When DependsOnOutput is set and any job
// input is unavailable, the estimate is a placeholder bounded by
// Min/Max when those are present.
type Rate struct {
	Producer        string  `json:"producer" yaml:"producer"`
	Base            float64 `json:"base" yaml:"base"`
	PerInput        float64 `json:"per_input,omitempty" yaml:"per_input,omitempty"`
	Min             float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max             float64 `json:"max,omitempty" yaml:"max,omitempty"`
	DependsOnOutput bool    `json:"depends_on_output,omitempty" yaml:"depends_on_output,omitempty"`
}

// ParseRateTable decodes and validates a YAML rate table.
func ParseRateTable(input []byte) (RateTable, error) {
	var table RateTable
	if err := yaml.Unmarshal(input, &table); err != nil {
		return RateTable{}, fmt.Errorf("decode rate table: %w", err)
	}
	if err := table.Validate(); err != nil {
		return RateTable{}, err
	}
	return table, nil
}

func (t RateTable) Validate() error {
	if strings.TrimSpace(t.Schema) != RateTableSchemaV1 {
		return fmt.Errorf("rate table schema must be %q", RateTableSchemaV1)
	}
	if len(t.Rates) == 0 {
		return errors.New("rate table must declare at least one rate")
	}
	seen := make(map[string]struct{}, len(t.Rates))
	for i, rate := range t.Rates {
		producer := strings.TrimSpace(rate.Producer)
		if producer == "" {
			return fmt.Errorf("rates[%d] producer is required", i)
		}
		if _, ok := seen[producer]; ok {
			return fmt.Errorf("rates[%d] duplicate producer %q", i, producer)
		}
		seen[producer] = struct{}{}
		if rate.Base < 0 || rate.PerInput < 0 {
			return fmt.Errorf("rates[%d] costs must be non-negative", i)
		}
		if rate.Min < 0 || rate.Max < 0 {
			return fmt.Errorf("rates[%d] bounds must be non-negative", i)
		}
		if rate.Max != 0 && rate.Max < rate.Min {
			return fmt.Errorf("rates[%d] max %v below min %v", i, rate.Max, rate.Min)
		}
	}
	return nil
}

// Estimator returns a CostEstimator backed by the table. A producer
// without a rate is a cost-model failure.
func (t RateTable) Estimator() CostEstimator {
	rates := make(map[string]Rate, len(t.Rates))
	for _, rate := range t.Rates {
		rates[strings.TrimSpace(rate.Producer)] = rate
	}
	return EstimatorFunc(func(spec JobSpec) (domain.Cost, error) {
		rate, ok := rates[spec.Producer]
		if !ok {
			return domain.Cost{}, fmt.Errorf("no rate for producer %q", spec.Producer)
		}
		value := rate.Base + rate.PerInput*float64(len(spec.Inputs))
		cost := domain.Cost{Value: value}

		if rate.DependsOnOutput {
			unresolved := false
			for _, input := range spec.Inputs {
				if !input.Available {
					unresolved = true
					break
				}
			}
			if unresolved {
				cost.Placeholder = true
				if rate.Min != 0 || rate.Max != 0 {
					cost.HasRange = true
					cost.Min = rate.Min
					cost.Max = rate.Max
					cost.Value = (rate.Min + rate.Max) / 2
				}
			}
		}
		return cost, nil
	})
}
