package storage

import (
	"context"

	"github.com/sbomtools/sbom-collector/internal/domain"
)

// Storage is the abstract interface for the run-history persistence layer
type Storage interface {
	// Run operations
	SaveRun(ctx context.Context, run *domain.RunRecord) error
	GetRuns(ctx context.Context, owner string, limit int) ([]*domain.RunRecord, error)
	GetLatestRun(ctx context.Context, owner string) (*domain.RunRecord, error)

	// Aggregate over stored runs
	GetOwnerStats(ctx context.Context, owner string) (*domain.OwnerStats, error)

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
