package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/keremk/renku-sub000/internal/domain"
	"github.com/keremk/renku-sub000/internal/repo"
)

type ArtifactStore struct {
	db DB
}

func NewArtifactStore(db DB) *ArtifactStore {
	if db == nil {
		return nil
	}
	return &ArtifactStore{db: db}
}

const artifactColumns = "artifact_id, blueprint, build_id, producer, status, failure_reason, hash, mime_type, size_bytes"

func (s *ArtifactStore) UpsertArtifact(ctx context.Context, blueprint, buildID string, artifact domain.ArtifactInfo) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("artifact store not initialized")
	}
	blueprint = strings.TrimSpace(blueprint)
	buildID = strings.TrimSpace(buildID)
	if blueprint == "" || buildID == "" {
		return fmt.Errorf("blueprint and build id are required")
	}
	if strings.TrimSpace(artifact.ID) == "" {
		return fmt.Errorf("artifact id is required")
	}
	if strings.TrimSpace(artifact.Producer) == "" {
		return fmt.Errorf("artifact producer is required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO build_artifacts (
			artifact_id,
			blueprint,
			build_id,
			producer,
			status,
			failure_reason,
			hash,
			mime_type,
			size_bytes,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
		ON CONFLICT (blueprint, build_id, artifact_id) DO UPDATE SET
			producer = EXCLUDED.producer,
			status = EXCLUDED.status,
			failure_reason = EXCLUDED.failure_reason,
			hash = EXCLUDED.hash,
			mime_type = EXCLUDED.mime_type,
			size_bytes = EXCLUDED.size_bytes,
			updated_at = NOW()`,
		strings.TrimSpace(artifact.ID),
		blueprint,
		buildID,
		strings.TrimSpace(artifact.Producer),
		strings.TrimSpace(artifact.Status),
		artifact.FailureReason,
		artifact.Hash,
		artifact.MimeType,
		artifact.Size,
	)
	if err != nil {
		return fmt.Errorf("upsert artifact: %w", err)
	}
	return nil
}

func (s *ArtifactStore) GetArtifact(ctx context.Context, blueprint, buildID, id string) (domain.ArtifactInfo, error) {
	if s == nil || s.db == nil {
		return domain.ArtifactInfo{}, fmt.Errorf("artifact store not initialized")
	}
	blueprint = strings.TrimSpace(blueprint)
	buildID = strings.TrimSpace(buildID)
	id = strings.TrimSpace(id)
	if blueprint == "" || buildID == "" || id == "" {
		return domain.ArtifactInfo{}, fmt.Errorf("blueprint, build id and artifact id are required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+artifactColumns+`
		 FROM build_artifacts
		 WHERE blueprint = $1 AND build_id = $2 AND artifact_id = $3`,
		blueprint,
		buildID,
		id,
	)
	var artifact domain.ArtifactInfo
	var gotBlueprint, gotBuildID string
	if err := row.Scan(&artifact.ID, &gotBlueprint, &gotBuildID, &artifact.Producer, &artifact.Status, &artifact.FailureReason, &artifact.Hash, &artifact.MimeType, &artifact.Size); err != nil {
		return domain.ArtifactInfo{}, handleNotFound(err)
	}
	return artifact, nil
}

func (s *ArtifactStore) ListArtifacts(ctx context.Context, filter repo.ArtifactFilter) ([]domain.ArtifactInfo, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("artifact store not initialized")
	}
	query, args, err := buildArtifactListQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := make([]domain.ArtifactInfo, 0)
	for rows.Next() {
		var artifact domain.ArtifactInfo
		var gotBlueprint, gotBuildID string
		if err := rows.Scan(&artifact.ID, &gotBlueprint, &gotBuildID, &artifact.Producer, &artifact.Status, &artifact.FailureReason, &artifact.Hash, &artifact.MimeType, &artifact.Size); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, artifact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return artifacts, nil
}

func buildArtifactListQuery(filter repo.ArtifactFilter) (string, []any, error) {
	if strings.TrimSpace(filter.Blueprint) == "" {
		return "", nil, fmt.Errorf("blueprint is required")
	}
	if strings.TrimSpace(filter.BuildID) == "" {
		return "", nil, fmt.Errorf("build id is required")
	}
	args := make([]any, 0, 4)
	clauses := make([]string, 0, 3)

	args = append(args, strings.TrimSpace(filter.Blueprint))
	clauses = append(clauses, fmt.Sprintf("blueprint = $%d", len(args)))
	args = append(args, strings.TrimSpace(filter.BuildID))
	clauses = append(clauses, fmt.Sprintf("build_id = $%d", len(args)))
	if strings.TrimSpace(filter.Producer) != "" {
		args = append(args, strings.TrimSpace(filter.Producer))
		clauses = append(clauses, fmt.Sprintf("producer = $%d", len(args)))
	}

	query := "SELECT " + artifactColumns + " FROM build_artifacts WHERE " + strings.Join(clauses, " AND ")
	query += " ORDER BY producer, artifact_id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args, nil
}
