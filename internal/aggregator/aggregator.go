package aggregator

import (
	"context"

	"github.com/sbomtools/sbom-collector/internal/domain"
	"github.com/sbomtools/sbom-collector/internal/storage"
)

// Aggregator defines the interface for querying run history
type Aggregator interface {
	// ListRuns retrieves the most recent runs for an owner
	ListRuns(ctx context.Context, owner string, limit int) ([]*domain.RunRecord, error)

	// LatestRun retrieves the newest run for an owner
	LatestRun(ctx context.Context, owner string) (*domain.RunRecord, error)

	// OwnerStats aggregates the stored runs for an owner
	OwnerStats(ctx context.Context, owner string) (*domain.OwnerStats, error)
}

// aggregator implements the Aggregator interface
type aggregator struct {
	storage storage.Storage
}

// NewAggregator creates a new aggregator
func NewAggregator(storage storage.Storage) Aggregator {
	return &aggregator{
		storage: storage,
	}
}

// ListRuns retrieves the most recent runs for an owner
func (a *aggregator) ListRuns(ctx context.Context, owner string, limit int) ([]*domain.RunRecord, error) {
	return a.storage.GetRuns(ctx, owner, limit)
}

// LatestRun retrieves the newest run for an owner
func (a *aggregator) LatestRun(ctx context.Context, owner string) (*domain.RunRecord, error) {
	return a.storage.GetLatestRun(ctx, owner)
}

// OwnerStats aggregates the stored runs for an owner
func (a *aggregator) OwnerStats(ctx context.Context, owner string) (*domain.OwnerStats, error) {
	return a.storage.GetOwnerStats(ctx, owner)
}
