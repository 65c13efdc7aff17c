package collector

import (
	"context"

	"github.com/sbomtools/sbom-collector/internal/domain"
)

// Collector defines the interface for the GitHub API capability
type Collector interface {
	// ResolveOwner checks that the account exists and returns it with its
	// kind (user or organization). Absence is an owner-not-found error.
	ResolveOwner(ctx context.Context, name string) (*domain.Owner, error)

	// ListRepositories retrieves up to limit repositories for the owner,
	// with archived repositories filtered out. Any listing failure is a
	// discovery error.
	ListRepositories(ctx context.Context, owner *domain.Owner, limit int) ([]*domain.Repository, error)

	// FetchSBOM retrieves the raw dependency-graph SBOM JSON for one
	// repository. Failures carry a typed error code for classification.
	FetchSBOM(ctx context.Context, owner, repo string) ([]byte, error)
}
