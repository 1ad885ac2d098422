package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS evaluation_runs (
  id            VARCHAR(64)  PRIMARY KEY,
  session_id    VARCHAR(64)  NOT NULL,
  workflow_name VARCHAR(255) NOT NULL,
  image_name    VARCHAR(255) NOT NULL,
  state         VARCHAR(16)  NOT NULL,
  error_kind    VARCHAR(32)  NOT NULL DEFAULT '',
  error_message VARCHAR(512) NOT NULL DEFAULT '',
  trap_count    INTEGER      NOT NULL DEFAULT 0,
  overall_score INTEGER      NOT NULL DEFAULT 0,
  started_at    TIMESTAMPTZ  NOT NULL,
  duration_ms   BIGINT       NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_evaluation_runs_started_at ON evaluation_runs (started_at);`

// EnsureSchema creates the run journal table when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
