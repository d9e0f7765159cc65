// Package stage derives per-layer statuses from authoritative producer
// statuses and decides which layer indices are legal starting points
// for a partial re-run.
package stage

import (
	"strings"

	"github.com/keremk/renku-sub000/internal/domain"
)

// DeriveStageStatuses computes one derived status per plan layer from
// the per-producer status record. It returns nil when the record is
// empty, signalling a clean run with no historical coloring.
//
// Per layer: no referenced producers is vacuously succeeded; any
// referenced producer in error fails the layer; all success succeeds
// it; any other mixture is not-run, since a partially completed layer
// is never trusted as reusable.
func DeriveStageStatuses(plan domain.PlanInfo, producerStatuses map[string]domain.ProducerStatus) []domain.StageStatus {
	if len(producerStatuses) == 0 {
		return nil
	}

	statuses := make([]domain.StageStatus, plan.TotalLayers)
	for i := 0; i < plan.TotalLayers; i++ {
		statuses[i] = deriveLayer(plan.LayerProducers(i), producerStatuses)
	}
	return statuses
}

func deriveLayer(producers []string, statuses map[string]domain.ProducerStatus) domain.StageStatus {
	if len(producers) == 0 {
		return domain.StageStatusSucceeded
	}
	allSuccess := true
	for _, producer := range producers {
		switch statuses[producer] {
		case domain.ProducerStatusError:
			return domain.StageStatusFailed
		case domain.ProducerStatusSuccess:
		default:
			allSuccess = false
		}
	}
	if allSuccess {
		return domain.StageStatusSucceeded
	}
	return domain.StageStatusNotRun
}

// ProducerStatusesFromManifest maps persisted per-artifact status
// records to producer statuses, worst status winning per producer: one
// failed artifact marks its producer as error even if its other
// artifacts succeeded.
func ProducerStatusesFromManifest(artifacts []domain.ArtifactInfo) map[string]domain.ProducerStatus {
	out := make(map[string]domain.ProducerStatus, len(artifacts))
	for _, artifact := range artifacts {
		producer := strings.TrimSpace(artifact.Producer)
		if producer == "" {
			continue
		}
		status := domain.NormalizeProducerStatus(artifact.Status)
		if status == "" {
			status = domain.ProducerStatusNotRunYet
		}
		current, ok := out[producer]
		if !ok || worseProducerStatus(status, current) {
			out[producer] = status
		}
	}
	return out
}

// worseProducerStatus reports whether a ranks strictly worse than b.
func worseProducerStatus(a, b domain.ProducerStatus) bool {
	return producerStatusRank(a) > producerStatusRank(b)
}

func producerStatusRank(status domain.ProducerStatus) int {
	switch status {
	case domain.ProducerStatusSuccess:
		return 0
	case domain.ProducerStatusSkipped:
		return 1
	case domain.ProducerStatusPending:
		return 2
	case domain.ProducerStatusRunning:
		return 3
	case domain.ProducerStatusNotRunYet:
		return 4
	case domain.ProducerStatusError:
		return 5
	default:
		return 4
	}
}
