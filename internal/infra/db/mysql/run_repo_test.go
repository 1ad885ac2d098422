package mysql

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
)

var runColumns = []string{
	"id", "session_id", "workflow_name", "image_name", "state", "error_kind", "error_message",
	"trap_count", "overall_score", "started_at", "duration_ms",
}

func TestSave(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO evaluation_runs")).
		WithArgs("r1", "s1", "Checkout", "-", "failed", "parse", "no json", 0, 0, started, int64(1500)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRunRepository(db)
	err = repo.Save(context.Background(), &evaluation.RunRecord{
		ID: "r1", SessionID: "s1", WorkflowName: "Checkout", State: "failed",
		ErrorKind: "parse", ErrorMessage: "no json", StartedAt: started, DurationMS: 1500,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO evaluation_runs").WillReturnError(errors.New("deadlock"))
	err = NewRunRepository(db).Save(context.Background(), &evaluation.RunRecord{ID: "r1", StartedAt: time.Now()})
	assert.ErrorContains(t, err, "deadlock")
}

func TestLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM evaluation_runs")).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows(runColumns).
			AddRow("r2", "s1", "Checkout", "a.png", "succeeded", "", "", 3, 7, started, int64(900)).
			AddRow("r1", "s1", "Checkout", "a.png", "cancelled", "cancelled", "evaluation cancelled", 0, 0, started.Add(-time.Minute), int64(100)))

	runs, err := NewRunRepository(db).Latest(context.Background(), 500)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)
	assert.Equal(t, 3, runs[0].TrapCount)
	assert.Equal(t, "cancelled", runs[1].ErrorKind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSummary(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE started_at >= ?")).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"total", "s", "f", "c"}).AddRow(5, 3, 1, 1))

	sum, err := NewRunRepository(db).Summary(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, evaluation.RunSummary{Total: 5, Succeeded: 3, Failed: 1, Cancelled: 1}, sum)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, clampLimit(0))
	assert.Equal(t, 5, clampLimit(5))
	assert.Equal(t, 100, clampLimit(1000))
}
