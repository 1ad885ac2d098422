package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
)

// RunRepository is the MySQL run journal.
type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Save insert/update run record
func (r *RunRepository) Save(ctx context.Context, rec *evaluation.RunRecord) error {
	const q = `
INSERT INTO evaluation_runs
(id, session_id, workflow_name, image_name, state, error_kind, error_message,
 trap_count, overall_score, started_at, duration_ms)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 state=VALUES(state), error_kind=VALUES(error_kind), error_message=VALUES(error_message),
 trap_count=VALUES(trap_count), overall_score=VALUES(overall_score), duration_ms=VALUES(duration_ms);
`
	started := rec.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.SessionID, stringOrDash(rec.WorkflowName), stringOrDash(rec.ImageName), rec.State,
		rec.ErrorKind, rec.ErrorMessage,
		rec.TrapCount, rec.OverallScore, started.UTC(), rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	return nil
}

// Latest runs, newest first
func (r *RunRepository) Latest(ctx context.Context, limit int) ([]*evaluation.RunRecord, error) {
	const q = `
SELECT id, session_id, workflow_name, image_name, state, error_kind, error_message,
       trap_count, overall_score, started_at, duration_ms
FROM evaluation_runs
ORDER BY started_at DESC
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, clampLimit(limit))
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
	return out, rows.Err()
}

// Summary counts runs started at or after since
func (r *RunRepository) Summary(ctx context.Context, since time.Time) (evaluation.RunSummary, error) {
	const q = `
SELECT COUNT(*),
       COALESCE(SUM(CASE WHEN state='succeeded' THEN 1 ELSE 0 END),0),
       COALESCE(SUM(CASE WHEN state='failed' THEN 1 ELSE 0 END),0),
       COALESCE(SUM(CASE WHEN state='cancelled' THEN 1 ELSE 0 END),0)
FROM evaluation_runs
WHERE started_at >= ?;
`
	var s evaluation.RunSummary
	if err := r.db.QueryRowContext(ctx, q, since.UTC()).Scan(&s.Total, &s.Succeeded, &s.Failed, &s.Cancelled); err != nil {
		return evaluation.RunSummary{}, err
	}
	return s, nil
}
