package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/keremk/renku-sub000/internal/domain"
	"github.com/keremk/renku-sub000/internal/repo"
)

type RunLogStore struct {
	db DB
}

func NewRunLogStore(db DB) *RunLogStore {
	if db == nil {
		return nil
	}
	return &RunLogStore{db: db}
}

const runLogColumns = "entry_id, seq, logged_at, entry_type, message, status, error_details"

func (s *RunLogStore) AppendEntries(ctx context.Context, blueprint, buildID, runID string, entries []domain.ExecutionLogEntry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run log store not initialized")
	}
	blueprint = strings.TrimSpace(blueprint)
	buildID = strings.TrimSpace(buildID)
	runID = strings.TrimSpace(runID)
	if blueprint == "" || buildID == "" || runID == "" {
		return fmt.Errorf("blueprint, build id and run id are required")
	}
	for _, entry := range entries {
		if strings.TrimSpace(entry.ID) == "" {
			return fmt.Errorf("entry id is required")
		}
		_, err := s.db.ExecContext(
			ctx,
			`INSERT INTO run_log_entries (
				entry_id,
				blueprint,
				build_id,
				run_id,
				seq,
				logged_at,
				entry_type,
				message,
				status,
				error_details
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (entry_id) DO NOTHING`,
			strings.TrimSpace(entry.ID),
			blueprint,
			buildID,
			runID,
			entry.Seq,
			normalizeTime(entry.Timestamp),
			entry.Type,
			entry.Message,
			string(entry.Status),
			entry.ErrorDetails,
		)
		if err != nil {
			return fmt.Errorf("insert run log entry: %w", err)
		}
	}
	return nil
}

func (s *RunLogStore) ListEntries(ctx context.Context, filter repo.RunLogFilter) ([]domain.ExecutionLogEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run log store not initialized")
	}
	query, args, err := buildRunLogListQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list run log entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.ExecutionLogEntry, 0)
	for rows.Next() {
		var entry domain.ExecutionLogEntry
		var status string
		if err := rows.Scan(&entry.ID, &entry.Seq, &entry.Timestamp, &entry.Type, &entry.Message, &status, &entry.ErrorDetails); err != nil {
			return nil, fmt.Errorf("scan run log entry: %w", err)
		}
		entry.Status = domain.ProducerStatus(status)
		entry.Timestamp = entry.Timestamp.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list run log entries: %w", err)
	}
	return entries, nil
}

func (s *RunLogStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("run log store not initialized")
	}
	result, err := s.db.ExecContext(
		ctx,
		`DELETE FROM run_log_entries WHERE logged_at < $1`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune run log entries: %w", err)
	}
	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune run log entries: %w", err)
	}
	return pruned, nil
}

func buildRunLogListQuery(filter repo.RunLogFilter) (string, []any, error) {
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
	if strings.TrimSpace(filter.RunID) != "" {
		args = append(args, strings.TrimSpace(filter.RunID))
		clauses = append(clauses, fmt.Sprintf("run_id = $%d", len(args)))
	}

	query := "SELECT " + runLogColumns + " FROM run_log_entries WHERE " + strings.Join(clauses, " AND ")
	query += " ORDER BY run_id, seq"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args, nil
}
