package repo

import (
	"context"
	"errors"
	"time"

	"github.com/keremk/renku-sub000/internal/domain"
)

var ErrNotFound = errors.New("not found")

type ArtifactFilter struct {
	Blueprint string
	BuildID   string
	Producer  string
	Limit     int
}

type RunLogFilter struct {
	Blueprint string
	BuildID   string
	RunID     string
	Limit     int
}

// ArtifactRepository persists per-build artifact records, the source of
// manifest rehydration for returning sessions.
type ArtifactRepository interface {
	UpsertArtifact(ctx context.Context, blueprint, buildID string, artifact domain.ArtifactInfo) error
	GetArtifact(ctx context.Context, blueprint, buildID, id string) (domain.ArtifactInfo, error)
	ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]domain.ArtifactInfo, error)
}

// RunLogRepository archives the execution log of finished runs.
// Entries are append-only and keep their in-run sequence numbers.
type RunLogRepository interface {
	AppendEntries(ctx context.Context, blueprint, buildID, runID string, entries []domain.ExecutionLogEntry) error
	ListEntries(ctx context.Context, filter RunLogFilter) ([]domain.ExecutionLogEntry, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
