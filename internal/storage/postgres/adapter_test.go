package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbomtools/sbom-collector/internal/domain"
	apperrors "github.com/sbomtools/sbom-collector/internal/errors"
)

var runColumns = []string{
	"id", "owner", "owner_type", "run_date",
	"total", "processed", "succeeded", "failed", "skipped", "not_accessible",
	"duration_ms", "status", "created_at",
}

func newMockStorage(t *testing.T) (*postgresStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newWithDB(db).(*postgresStorage), mock
}

func sampleRun(id string, createdAt time.Time) *domain.RunRecord {
	return &domain.RunRecord{
		ID:            id,
		Owner:         "octo",
		OwnerType:     domain.OwnerTypeOrganization,
		RunDate:       "2025-06-01",
		Total:         10,
		Processed:     10,
		Succeeded:     7,
		Failed:        1,
		Skipped:       1,
		NotAccessible: 1,
		DurationMS:    4200,
		Status:        domain.RunStatusCompleted,
		CreatedAt:     createdAt,
	}
}

func runToRow(rows *sqlmock.Rows, run *domain.RunRecord) *sqlmock.Rows {
	return rows.AddRow(
		run.ID, run.Owner, string(run.OwnerType), run.RunDate,
		run.Total, run.Processed, run.Succeeded, run.Failed, run.Skipped, run.NotAccessible,
		run.DurationMS, run.Status, run.CreatedAt,
	)
}

func TestSaveRun(t *testing.T) {
	s, mock := newMockStorage(t)
	run := sampleRun("run-1", time.Now())

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(
			run.ID, run.Owner, string(run.OwnerType), run.RunDate,
			run.Total, run.Processed, run.Succeeded, run.Failed, run.Skipped, run.NotAccessible,
			run.DurationMS, run.Status, run.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SaveRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRuns(t *testing.T) {
	s, mock := newMockStorage(t)

	now := time.Now()
	rows := sqlmock.NewRows(runColumns)
	runToRow(rows, sampleRun("run-2", now))
	runToRow(rows, sampleRun("run-1", now.Add(-time.Hour)))

	mock.ExpectQuery("SELECT (.+) FROM runs WHERE owner = \\$1 ORDER BY created_at DESC LIMIT \\$2").
		WithArgs("octo", 20).
		WillReturnRows(rows)

	// limit 0 falls back to the default page size
	runs, err := s.GetRuns(context.Background(), "octo", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, domain.OwnerTypeOrganization, runs[0].OwnerType)
	assert.Equal(t, "run-1", runs[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestRun(t *testing.T) {
	s, mock := newMockStorage(t)

	rows := runToRow(sqlmock.NewRows(runColumns), sampleRun("run-9", time.Now()))
	mock.ExpectQuery("SELECT (.+) FROM runs WHERE owner = \\$1 ORDER BY created_at DESC LIMIT 1").
		WithArgs("octo").
		WillReturnRows(rows)

	run, err := s.GetLatestRun(context.Background(), "octo")
	require.NoError(t, err)
	assert.Equal(t, "run-9", run.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestRunNotFound(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery("SELECT (.+) FROM runs WHERE owner = \\$1").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetLatestRun(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetOwnerStats(t *testing.T) {
	s, mock := newMockStorage(t)

	last := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"count", "interrupted", "processed", "succeeded", "failed", "last"}).
		AddRow(3, 1, 30, 25, 2, last)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\)").
		WithArgs("octo").
		WillReturnRows(rows)

	stats, err := s.GetOwnerStats(context.Background(), "octo")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Runs)
	assert.Equal(t, 1, stats.Interrupted)
	assert.Equal(t, int64(30), stats.TotalProcessed)
	assert.Equal(t, int64(25), stats.TotalSucceeded)
	assert.Equal(t, int64(2), stats.TotalFailed)
	require.NotNil(t, stats.LastRunAt)
	assert.True(t, last.Equal(*stats.LastRunAt))
}

func TestGetOwnerStatsNoRuns(t *testing.T) {
	s, mock := newMockStorage(t)

	rows := sqlmock.NewRows([]string{"count", "interrupted", "processed", "succeeded", "failed", "last"}).
		AddRow(0, 0, 0, 0, 0, nil)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\)").
		WithArgs("nobody").
		WillReturnRows(rows)

	stats, err := s.GetOwnerStats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Runs)
	assert.Nil(t, stats.LastRunAt)
}

func TestMigrateCreatesSchema(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS runs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
