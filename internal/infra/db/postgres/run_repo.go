package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
)

type RunRepository struct{ db *sql.DB }

func NewRunRepository(db *sql.DB) *RunRepository { return &RunRepository{db: db} }

func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// Save insert/update run record
func (r *RunRepository) Save(ctx context.Context, rec *evaluation.RunRecord) error {
	const q = `
INSERT INTO evaluation_runs
(id, session_id, workflow_name, image_name, state, error_kind, error_message,
 trap_count, overall_score, started_at, duration_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,
        $8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
 state = EXCLUDED.state,
 error_kind = EXCLUDED.error_kind,
 error_message = EXCLUDED.error_message,
 trap_count = EXCLUDED.trap_count,
 overall_score = EXCLUDED.overall_score,
 duration_ms = EXCLUDED.duration_ms;`

	started := rec.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.SessionID, stringOrDash(rec.WorkflowName), stringOrDash(rec.ImageName), rec.State,
		rec.ErrorKind, rec.ErrorMessage,
		rec.TrapCount, rec.OverallScore, started, rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	return nil
}

// Latest runs, newest first
func (r *RunRepository) Latest(ctx context.Context, limit int) ([]*evaluation.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	const q = `
SELECT id, session_id, workflow_name, image_name, state, error_kind, error_message,
       trap_count, overall_score, started_at, duration_ms
FROM evaluation_runs
ORDER BY started_at DESC
LIMIT $1;`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	out := []*evaluation.RunRecord{}
	for rows.Next() {
		var rec evaluation.RunRecord
		if err := rows.Scan(
			&rec.ID, &rec.SessionID, &rec.WorkflowName, &rec.ImageName, &rec.State,
			&rec.ErrorKind, &rec.ErrorMessage,
			&rec.TrapCount, &rec.OverallScore, &rec.StartedAt, &rec.DurationMS,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// Summary counts runs started at or after since
func (r *RunRepository) Summary(ctx context.Context, since time.Time) (evaluation.RunSummary, error) {
	const q = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE state = 'succeeded'),
       COUNT(*) FILTER (WHERE state = 'failed'),
       COUNT(*) FILTER (WHERE state = 'cancelled')
FROM evaluation_runs
WHERE started_at >= $1;`
	var s evaluation.RunSummary
	if err := r.db.QueryRowContext(ctx, q, since).Scan(&s.Total, &s.Succeeded, &s.Failed, &s.Cancelled); err != nil {
		return evaluation.RunSummary{}, err
	}
	return s, nil
}
