package fetcher

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbomtools/sbom-collector/internal/artifact"
	"github.com/sbomtools/sbom-collector/internal/domain"
	apperrors "github.com/sbomtools/sbom-collector/internal/errors"
	"github.com/sbomtools/sbom-collector/internal/reporter"
	"github.com/sbomtools/sbom-collector/internal/runlog"
)

const runDate = "2025-06-01"

type fetchResult struct {
	payload []byte
	err     error
}

// fakeCollector serves a scripted queue of results per repository
type fakeCollector struct {
	mu      sync.Mutex
	results map[string][]fetchResult
	calls   map[string]int
}

func newFakeCollector() *fakeCollector {
	return &fakeCollector{
		results: make(map[string][]fetchResult),
		calls:   make(map[string]int),
	}
}

func (f *fakeCollector) enqueue(repo string, payload []byte, err error) {
	f.results[repo] = append(f.results[repo], fetchResult{payload: payload, err: err})
}

func (f *fakeCollector) ResolveOwner(ctx context.Context, name string) (*domain.Owner, error) {
	return &domain.Owner{Name: name, Type: domain.OwnerTypeUser}, nil
}

func (f *fakeCollector) ListRepositories(ctx context.Context, owner *domain.Owner, limit int) ([]*domain.Repository, error) {
	return nil, nil
}

func (f *fakeCollector) FetchSBOM(ctx context.Context, owner, repo string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[repo]++
	queue := f.results[repo]
	if len(queue) == 0 {
		return []byte(`{"spdxVersion":"SPDX-2.3"}`), nil
	}
	next := queue[0]
	f.results[repo] = queue[1:]
	return next.payload, next.err
}

func (f *fakeCollector) callCount(repo string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[repo]
}

func repoList(owner string, names ...string) []*domain.Repository {
	repos := make([]*domain.Repository, 0, len(names))
	for _, n := range names {
		repos = append(repos, &domain.Repository{Owner: owner, Name: n, FullName: owner + "/" + n})
	}
	return repos
}

type harness struct {
	coll  *fakeCollector
	store *artifact.Store
	rep   *reporter.Reporter
	fet   *Fetcher
	owner *domain.Owner
}

func newHarness(t *testing.T, total int, opts Options) *harness {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)

	owner := &domain.Owner{Name: "octo", Type: domain.OwnerTypeUser}
	coll := newFakeCollector()
	rep := reporter.New(owner, runDate, total, nil, &bytes.Buffer{})

	opts.RunDate = runDate
	fet := New(coll, store, nil, rep, opts)

	return &harness{coll: coll, store: store, rep: rep, fet: fet, owner: owner}
}

func TestRunAllSucceed(t *testing.T) {
	h := newHarness(t, 3, Options{})
	repos := repoList("octo", "one", "two", "three")

	interrupted := h.fet.Run(context.Background(), h.owner, repos)

	assert.False(t, interrupted)
	s := h.rep.Summary()
	assert.Equal(t, 3, s.Processed)
	assert.Equal(t, 3, s.Succeeded)
	assert.Equal(t, domain.ExitOK, s.ExitCode())

	for _, r := range repos {
		assert.True(t, h.store.Exists(r.Name, runDate), r.Name)
	}
}

func TestNotAccessibleDoesNotFailRun(t *testing.T) {
	h := newHarness(t, 2, Options{})
	h.coll.enqueue("gone", nil, apperrors.NewNotFoundError("SBOM for octo/gone"))

	interrupted := h.fet.Run(context.Background(), h.owner, repoList("octo", "gone", "ok"))

	assert.False(t, interrupted)
	s := h.rep.Summary()
	assert.Equal(t, 1, s.NotAccessible)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 0, s.Failed)
	assert.Equal(t, domain.ExitOK, s.ExitCode())
	assert.False(t, h.store.Exists("gone", runDate))
}

func TestRateLimitedRetriesOnceThenSucceeds(t *testing.T) {
	h := newHarness(t, 1, Options{})
	h.coll.enqueue("slow", nil, apperrors.NewRateLimitedError("rate limited", nil))
	h.coll.enqueue("slow", []byte(`{"ok":true}`), nil)

	h.fet.Run(context.Background(), h.owner, repoList("octo", "slow"))

	assert.Equal(t, 2, h.coll.callCount("slow"))
	s := h.rep.Summary()
	assert.Equal(t, 1, s.Succeeded)
	assert.True(t, h.store.Exists("slow", runDate))
}

func TestRateLimitedRetriesOnlyOnce(t *testing.T) {
	h := newHarness(t, 1, Options{})
	h.coll.enqueue("slow", nil, apperrors.NewRateLimitedError("rate limited", nil))
	h.coll.enqueue("slow", nil, apperrors.NewRateLimitedError("rate limited again", nil))
	// A third attempt would consume this and succeed; it must not happen
	h.coll.enqueue("slow", []byte(`{"ok":true}`), nil)

	h.fet.Run(context.Background(), h.owner, repoList("octo", "slow"))

	assert.Equal(t, 2, h.coll.callCount("slow"))
	s := h.rep.Summary()
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 0, s.Succeeded)
	assert.Equal(t, domain.ExitTotalFailure, s.ExitCode())
}

func TestInvalidPayloadIsFailure(t *testing.T) {
	h := newHarness(t, 1, Options{})
	h.coll.enqueue("broken", []byte(`{"truncated":`), nil)

	h.fet.Run(context.Background(), h.owner, repoList("octo", "broken"))

	s := h.rep.Summary()
	assert.Equal(t, 1, s.Failed)
	assert.False(t, h.store.Exists("broken", runDate))
}

func TestRetryPayloadIsValidatedToo(t *testing.T) {
	h := newHarness(t, 1, Options{})
	h.coll.enqueue("slow", nil, apperrors.NewRateLimitedError("rate limited", nil))
	h.coll.enqueue("slow", []byte(`not json`), nil)

	h.fet.Run(context.Background(), h.owner, repoList("octo", "slow"))

	s := h.rep.Summary()
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 0, s.Succeeded)
	assert.False(t, h.store.Exists("slow", runDate))
}

func TestExistingArtifactIsSkipped(t *testing.T) {
	h := newHarness(t, 2, Options{})
	require.NoError(t, h.store.Write("done", runDate, []byte(`{}`)))

	h.fet.Run(context.Background(), h.owner, repoList("octo", "done", "fresh"))

	assert.Equal(t, 0, h.coll.callCount("done"))
	s := h.rep.Summary()
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Succeeded)
}

func TestSecondRunSkipsEverything(t *testing.T) {
	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)
	owner := &domain.Owner{Name: "octo", Type: domain.OwnerTypeUser}
	repos := repoList("octo", "one", "two")

	first := reporter.New(owner, runDate, len(repos), nil, &bytes.Buffer{})
	New(newFakeCollector(), store, nil, first, Options{RunDate: runDate}).Run(context.Background(), owner, repos)

	second := reporter.New(owner, runDate, len(repos), nil, &bytes.Buffer{})
	New(newFakeCollector(), store, nil, second, Options{RunDate: runDate}).Run(context.Background(), owner, repos)

	assert.Equal(t, first.Summary().Succeeded, second.Summary().Skipped)
	assert.Equal(t, 0, second.Summary().Succeeded+second.Summary().Failed)
}

func TestCancelledBeforeStart(t *testing.T) {
	h := newHarness(t, 2, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	interrupted := h.fet.Run(ctx, h.owner, repoList("octo", "one", "two"))

	assert.True(t, interrupted)
	s := h.rep.Summary()
	assert.Equal(t, 0, s.Processed)
}

func TestMarkersWrittenInOrder(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "run.log")
	log, err := runlog.Open(logPath)
	require.NoError(t, err)

	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)
	owner := &domain.Owner{Name: "octo", Type: domain.OwnerTypeUser}
	rep := reporter.New(owner, runDate, 3, log, &bytes.Buffer{})

	repos := repoList("octo", "alpha", "beta", "gamma")[:3]
	New(newFakeCollector(), store, log, rep, Options{RunDate: runDate}).Run(context.Background(), owner, repos)
	require.NoError(t, log.Close())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)

	want := []string{
		"About to process repo #1: alpha",
		"About to process repo #2: beta",
		"About to process repo #3: gamma",
	}
	last := -1
	for _, marker := range want {
		idx := bytes.Index(content, []byte(marker))
		require.GreaterOrEqual(t, idx, 0, marker)
		assert.Greater(t, idx, last)
		last = idx
	}
}

func TestWorkerPoolPreservesCounts(t *testing.T) {
	h := newHarness(t, 6, Options{Workers: 3})
	h.coll.enqueue("bad", nil, apperrors.NewInternalError("server error", nil))
	h.coll.enqueue("gone", nil, apperrors.NewNotFoundError("SBOM for octo/gone"))

	interrupted := h.fet.Run(context.Background(), h.owner,
		repoList("octo", "a", "bad", "b", "gone", "c", "d"))

	assert.False(t, interrupted)
	s := h.rep.Summary()
	assert.Equal(t, 6, s.Processed)
	assert.Equal(t, 4, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.NotAccessible)
	assert.Equal(t, domain.ExitPartialFailure, s.ExitCode())
}
