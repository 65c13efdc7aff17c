package postgres

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/sbomtools/sbom-collector/internal/domain"
	apperrors "github.com/sbomtools/sbom-collector/internal/errors"
	"github.com/sbomtools/sbom-collector/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// newWithDB wraps an existing connection; used by tests
func newWithDB(db *sql.DB) storage.Storage {
	return &postgresStorage{db: db}
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		owner_type TEXT NOT NULL DEFAULT 'user',
		run_date TEXT NOT NULL,
		total INTEGER NOT NULL,
		processed INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		not_accessible INTEGER NOT NULL,
		duration_ms BIGINT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_owner ON runs(owner);
	CREATE INDEX IF NOT EXISTS idx_runs_owner_created_at ON runs(owner, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRun persists one finished run
func (s *postgresStorage) SaveRun(ctx context.Context, run *domain.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, owner, owner_type, run_date, total, processed, succeeded, failed, skipped, not_accessible, duration_ms, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		run.ID, run.Owner, string(run.OwnerType), run.RunDate,
		run.Total, run.Processed, run.Succeeded, run.Failed, run.Skipped, run.NotAccessible,
		run.DurationMS, run.Status, run.CreatedAt,
	)
	return err
}

// GetRuns returns the most recent runs for an owner, newest first
func (s *postgresStorage) GetRuns(ctx context.Context, owner string, limit int) ([]*domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, owner_type, run_date, total, processed, succeeded, failed, skipped, not_accessible, duration_ms, status, created_at
		FROM runs WHERE owner = $1 ORDER BY created_at DESC LIMIT $2`,
		owner, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetLatestRun returns the newest run for an owner
func (s *postgresStorage) GetLatestRun(ctx context.Context, owner string) (*domain.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, owner_type, run_date, total, processed, succeeded, failed, skipped, not_accessible, duration_ms, status, created_at
		FROM runs WHERE owner = $1 ORDER BY created_at DESC LIMIT 1`,
		owner,
	)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("run")
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetOwnerStats aggregates the stored runs for an owner
func (s *postgresStorage) GetOwnerStats(ctx context.Context, owner string) (*domain.OwnerStats, error) {
	stats := &domain.OwnerStats{Owner: owner}
	var lastRun sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'interrupted' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(processed), 0),
		       COALESCE(SUM(succeeded), 0),
		       COALESCE(SUM(failed), 0),
		       MAX(created_at)
		FROM runs WHERE owner = $1`,
		owner,
	).Scan(&stats.Runs, &stats.Interrupted, &stats.TotalProcessed, &stats.TotalSucceeded, &stats.TotalFailed, &lastRun)
	if err != nil {
		return nil, err
	}
	if lastRun.Valid {
		stats.LastRunAt = &lastRun.Time
	}
	return stats, nil
}

// Close closes the database connection
func (s *postgresStorage) Close() error {
	return s.db.Close()
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.RunRecord, error) {
	var run domain.RunRecord
	var ownerType string
	err := row.Scan(
		&run.ID, &run.Owner, &ownerType, &run.RunDate,
		&run.Total, &run.Processed, &run.Succeeded, &run.Failed, &run.Skipped, &run.NotAccessible,
		&run.DurationMS, &run.Status, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.OwnerType = domain.OwnerType(ownerType)
	return &run, nil
}
