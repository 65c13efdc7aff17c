package fetcher

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sbomtools/sbom-collector/internal/artifact"
	"github.com/sbomtools/sbom-collector/internal/collector"
	"github.com/sbomtools/sbom-collector/internal/domain"
	apperrors "github.com/sbomtools/sbom-collector/internal/errors"
	"github.com/sbomtools/sbom-collector/internal/logger"
	"github.com/sbomtools/sbom-collector/internal/reporter"
	"github.com/sbomtools/sbom-collector/internal/runlog"
)

// Options configures a batch run
type Options struct {
	// RunDate names the artifacts, YYYY-MM-DD
	RunDate string

	// Cooldown is the pause before the single retry of a rate-limited fetch
	Cooldown time.Duration

	// Delay is the fixed pause between repositories
	Delay time.Duration

	// Workers bounds concurrent fetches; values below 1 mean sequential
	Workers int
}

// Fetcher runs the per-repository skip/fetch/retry/persist loop
type Fetcher struct {
	collector collector.Collector
	store     *artifact.Store
	log       *runlog.Writer
	rep       *reporter.Reporter
	opts      Options
}

// New creates a batch fetcher
func New(c collector.Collector, store *artifact.Store, log *runlog.Writer, rep *reporter.Reporter, opts Options) *Fetcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.RunDate == "" {
		opts.RunDate = time.Now().Format("2006-01-02")
	}
	return &Fetcher{
		collector: c,
		store:     store,
		log:       log,
		rep:       rep,
		opts:      opts,
	}
}

// Run processes the repositories in listing order and reports whether the
// run was interrupted. Outcomes never affect each other: every failure is
// recorded and the loop moves on.
func (f *Fetcher) Run(ctx context.Context, owner *domain.Owner, repos []*domain.Repository) bool {
	sem := make(chan struct{}, f.opts.Workers)
	var wg sync.WaitGroup
	interrupted := false

	for i, repo := range repos {
		if ctx.Err() != nil {
			interrupted = true
			break
		}

		// Acquiring before the marker keeps markers in listing order and,
		// with a single worker, makes the loop strictly sequential.
		select {
		case <-ctx.Done():
			interrupted = true
		case sem <- struct{}{}:
		}
		if interrupted {
			break
		}

		f.log.Marker(i+1, repo.Name)

		wg.Add(1)
		go func(r *domain.Repository) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, ok := f.processOne(ctx, owner, r)
			if !ok {
				// Aborted mid-fetch by cancellation: the repository was
				// not handled, so it must not be counted.
				return
			}
			f.rep.Record(r.Name, outcome)
		}(repo)

		if i < len(repos)-1 {
			if !f.pause(ctx, f.opts.Delay) {
				interrupted = true
				break
			}
		}
	}

	wg.Wait()
	if ctx.Err() != nil {
		interrupted = true
	}
	return interrupted
}

// processOne resolves the outcome for a single repository. ok is false only
// when processing was cut short by cancellation.
func (f *Fetcher) processOne(ctx context.Context, owner *domain.Owner, repo *domain.Repository) (domain.FetchOutcome, bool) {
	if f.store.Exists(repo.Name, f.opts.RunDate) {
		f.log.Printf("Skipping %s: artifact already exists", repo.Name)
		return domain.OutcomeSkipped, true
	}

	payload, err := f.fetchValidated(ctx, owner.Name, repo.Name)

	if err != nil && apperrors.IsRateLimited(err) {
		f.log.Printf("Rate limited on %s, cooling down for %s before one retry", repo.Name, f.opts.Cooldown)
		logger.Warn("rate limited, retrying once after cooldown",
			zap.String("repo", repo.Name),
			zap.Duration("cooldown", f.opts.Cooldown))
		if !f.pause(ctx, f.opts.Cooldown) {
			return "", false
		}
		// The retry goes through the same path as the first attempt,
		// including JSON validation. No third attempt is made.
		payload, err = f.fetchValidated(ctx, owner.Name, repo.Name)
	}

	if err != nil {
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return "", false
		}
		if apperrors.IsNotFound(err) {
			f.log.Printf("Warning: SBOM not accessible for %s: %v", repo.Name, err)
			logger.Warn("sbom not accessible", zap.String("repo", repo.Name), zap.Error(err))
			return domain.OutcomeNotAccessible, true
		}
		f.log.Printf("Failed to fetch SBOM for %s: %v", repo.Name, err)
		logger.Error("sbom fetch failed", zap.String("repo", repo.Name), zap.Error(err))
		return domain.OutcomeFailed, true
	}

	if err := f.store.Write(repo.Name, f.opts.RunDate, payload); err != nil {
		f.log.Printf("Failed to persist SBOM for %s: %v", repo.Name, err)
		logger.Error("artifact write failed", zap.String("repo", repo.Name), zap.Error(err))
		return domain.OutcomeFailed, true
	}

	f.log.Printf("Fetched SBOM for %s (%d bytes)", repo.Name, len(payload))
	return domain.OutcomeSucceeded, true
}

// fetchValidated performs one fetch attempt and rejects payloads that are
// not well-formed JSON, so a partial or corrupt response is never accepted.
func (f *Fetcher) fetchValidated(ctx context.Context, owner, repo string) ([]byte, error) {
	payload, err := f.collector.FetchSBOM(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	if !json.Valid(payload) {
		return nil, apperrors.NewInvalidPayloadError(fmt.Sprintf("SBOM payload for %s/%s is not valid JSON", owner, repo))
	}
	return payload, nil
}

// pause sleeps for d unless the context is cancelled first
func (f *Fetcher) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
