package collector

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v55/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/sbomtools/sbom-collector/internal/domain"
	apperrors "github.com/sbomtools/sbom-collector/internal/errors"
	"github.com/sbomtools/sbom-collector/internal/logger"
)

// githubCollector implements Collector using the GitHub REST API
type githubCollector struct {
	client      *github.Client
	rateLimiter RateLimiter
}

// NewGitHubCollector creates a new GitHub collector
func NewGitHubCollector(token string) Collector {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	client := github.NewClient(tc)

	return &githubCollector{
		client:      client,
		rateLimiter: NewRateLimiter(0),
	}
}

// ResolveOwner checks that the account exists and determines its kind
func (c *githubCollector) ResolveOwner(ctx context.Context, name string) (*domain.Owner, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	user, resp, err := c.client.Users.Get(ctx, name)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, apperrors.NewOwnerNotFoundError(name)
		}
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, apperrors.NewUnauthorizedError("GitHub token rejected")
		}
		return nil, apperrors.NewInternalError(fmt.Sprintf("failed to look up owner %s", name), err)
	}
	c.updateRateLimitFromResponse(resp)

	ownerType := domain.OwnerTypeUser
	if strings.EqualFold(user.GetType(), "Organization") {
		ownerType = domain.OwnerTypeOrganization
	}

	return &domain.Owner{Name: name, Type: ownerType}, nil
}

// ListRepositories retrieves up to limit repositories for the owner,
// filtering out archived ones
func (c *githubCollector) ListRepositories(ctx context.Context, owner *domain.Owner, limit int) ([]*domain.Repository, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var allRepos []*domain.Repository
	fetched := 0

	appendPage := func(repos []*github.Repository) {
		for _, repo := range repos {
			fetched++
			if repo.GetArchived() {
				logger.Debug("skipping archived repository", zap.String("repo", repo.GetName()))
				continue
			}
			allRepos = append(allRepos, &domain.Repository{
				Owner:    owner.Name,
				Name:     repo.GetName(),
				FullName: repo.GetFullName(),
				Archived: false,
				Private:  repo.GetPrivate(),
			})
		}
	}

	if owner.Type == domain.OwnerTypeOrganization {
		opts := &github.RepositoryListByOrgOptions{
			Type:        "all",
			ListOptions: github.ListOptions{PerPage: 100},
		}
		for {
			repos, resp, err := c.client.Repositories.ListByOrg(ctx, owner.Name, opts)
			if err != nil {
				return nil, apperrors.NewDiscoveryError(fmt.Sprintf("failed to list repositories for %s", owner.Name), err)
			}
			c.updateRateLimitFromResponse(resp)
			appendPage(repos)

			if resp.NextPage == 0 || fetched >= limit {
				break
			}
			opts.Page = resp.NextPage

			if err := c.rateLimiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
	} else {
		opts := &github.RepositoryListOptions{
			Type:        "owner",
			ListOptions: github.ListOptions{PerPage: 100},
		}
		for {
			repos, resp, err := c.client.Repositories.List(ctx, owner.Name, opts)
			if err != nil {
				return nil, apperrors.NewDiscoveryError(fmt.Sprintf("failed to list repositories for %s", owner.Name), err)
			}
			c.updateRateLimitFromResponse(resp)
			appendPage(repos)

			if resp.NextPage == 0 || fetched >= limit {
				break
			}
			opts.Page = resp.NextPage

			if err := c.rateLimiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
	}

	if len(allRepos) > limit {
		allRepos = allRepos[:limit]
	}

	return allRepos, nil
}

// FetchSBOM retrieves the raw dependency-graph SBOM JSON for one repository.
// The body is captured verbatim so the persisted artifact is byte-faithful
// to what the API returned.
func (c *githubCollector) FetchSBOM(ctx context.Context, owner, repo string) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("repos/%s/%s/dependency-graph/sbom", owner, repo)
	req, err := c.client.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build SBOM request", err)
	}

	var buf bytes.Buffer
	resp, err := c.client.Do(ctx, req, &buf)
	if resp != nil {
		c.updateRateLimitFromResponse(resp)
	}
	if err != nil {
		return nil, classifyFetchError(owner, repo, err)
	}

	return buf.Bytes(), nil
}

// classifyFetchError maps a go-github error to a typed application error.
// Status codes drive the mapping, never substring matching.
func classifyFetchError(owner, repo string, err error) error {
	var rateErr *github.RateLimitError
	if stderrors.As(err, &rateErr) {
		return apperrors.NewRateLimitedError(fmt.Sprintf("rate limited fetching SBOM for %s/%s", owner, repo), err)
	}

	var abuseErr *github.AbuseRateLimitError
	if stderrors.As(err, &abuseErr) {
		return apperrors.NewRateLimitedError(fmt.Sprintf("secondary rate limit fetching SBOM for %s/%s", owner, repo), err)
	}

	var respErr *github.ErrorResponse
	if stderrors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusNotFound:
			return apperrors.NewNotFoundError(fmt.Sprintf("SBOM for %s/%s", owner, repo))
		case http.StatusForbidden, http.StatusTooManyRequests:
			return apperrors.NewRateLimitedError(fmt.Sprintf("rate limited fetching SBOM for %s/%s", owner, repo), err)
		case http.StatusUnauthorized:
			return apperrors.NewUnauthorizedError("GitHub token rejected")
		}
	}

	return apperrors.NewInternalError(fmt.Sprintf("failed to fetch SBOM for %s/%s", owner, repo), err)
}

// updateRateLimitFromResponse updates the rate limiter from API response
func (c *githubCollector) updateRateLimitFromResponse(resp *github.Response) {
	if resp != nil && resp.Rate.Remaining >= 0 {
		c.rateLimiter.UpdateLimit(resp.Rate.Remaining, resp.Rate.Reset.Time)
	}
}
