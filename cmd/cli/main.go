package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sbomtools/sbom-collector/internal/aggregator"
	"github.com/sbomtools/sbom-collector/internal/artifact"
	"github.com/sbomtools/sbom-collector/internal/collector"
	"github.com/sbomtools/sbom-collector/internal/config"
	"github.com/sbomtools/sbom-collector/internal/domain"
	apperrors "github.com/sbomtools/sbom-collector/internal/errors"
	"github.com/sbomtools/sbom-collector/internal/fetcher"
	"github.com/sbomtools/sbom-collector/internal/logger"
	"github.com/sbomtools/sbom-collector/internal/progress"
	"github.com/sbomtools/sbom-collector/internal/reporter"
	"github.com/sbomtools/sbom-collector/internal/runlog"
	"github.com/sbomtools/sbom-collector/internal/storage"
	"github.com/sbomtools/sbom-collector/internal/storage/postgres"
	"github.com/sbomtools/sbom-collector/internal/storage/sqlite"
	"github.com/sbomtools/sbom-collector/pkg/client"
)

var (
	outputDir     string
	workers       int
	maxRepos      int
	delaySeconds  int
	cooldownSecs  int
	watchLog      string
	watchTotal    int
	watchInterval int
	watchPID      int
	runsLimit     int
	runsRemote    bool
)

var rootCmd = &cobra.Command{
	Use:   "sbom-collector",
	Short: "GitHub dependency-graph SBOM collector",
	Long: `A CLI tool that enumerates the repositories of a GitHub account and
downloads a dependency-graph SBOM for each one, writing dated JSON
artifacts with a companion run log and a persisted run history.`,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [owner]",
	Short: "Fetch SBOMs for all repositories of an owner",
	Long: `Fetch the dependency-graph SBOM for every non-archived repository of a
GitHub user or organization. Already-downloaded repositories for the same
day are skipped, so an interrupted run can be resumed by re-running.

Exit codes: 0 all succeeded (or zero work), 1 partial failure, 2 total
failure, 130 interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the progress of a running fetch",
	Long: `Poll the shared run log and print a coarse completion percentage until
the fetch finishes or the watched process exits. Read-only; it never
affects the run itself.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var runsCmd = &cobra.Command{
	Use:   "runs [owner]",
	Short: "Show the run history for an owner",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuns,
}

func init() {
	fetchCmd.Flags().StringVar(&outputDir, "output", "", "output directory (default from OUTPUT_DIR)")
	fetchCmd.Flags().IntVar(&workers, "workers", 0, "concurrent fetch workers (default from FETCH_WORKERS)")
	fetchCmd.Flags().IntVar(&maxRepos, "max-repos", 0, "repository listing cap (default from MAX_REPOS)")
	fetchCmd.Flags().IntVar(&delaySeconds, "delay", -1, "seconds to pause between repositories (default from REQUEST_DELAY_SECONDS)")
	fetchCmd.Flags().IntVar(&cooldownSecs, "cooldown", -1, "seconds to wait before the rate-limit retry (default from RATE_LIMIT_COOLDOWN_SECONDS)")

	watchCmd.Flags().StringVar(&watchLog, "log", "", "run log to follow (default: today's log in the output directory)")
	watchCmd.Flags().IntVar(&watchTotal, "total", 0, "repository total (default: read from the log)")
	watchCmd.Flags().IntVar(&watchInterval, "interval", 30, "polling interval in seconds")
	watchCmd.Flags().IntVar(&watchPID, "pid", 0, "fetch process to watch for exit")

	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "number of runs to show")
	runsCmd.Flags().BoolVar(&runsRemote, "remote", false, "query the run-history API instead of local storage")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	name := args[0]
	if !domain.ValidOwnerName(name) {
		return apperrors.NewUsageError(fmt.Sprintf("invalid owner name %q: alphanumeric with internal hyphens only", name))
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFetchFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coll := collector.NewGitHubCollector(cfg.GitHubToken)

	fmt.Printf("Validating owner: %s\n", name)
	owner, err := coll.ResolveOwner(ctx, name)
	if err != nil {
		return err
	}

	fmt.Println("Fetching repositories...")
	repos, err := coll.ListRepositories(ctx, owner, cfg.MaxRepos)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d repositories\n", len(repos))

	runDate := time.Now().Format("2006-01-02")
	store, err := artifact.NewStore(cfg.OutputDir)
	if err != nil {
		return err
	}

	runLog, err := runlog.Open(store.LogPath(runDate))
	if err != nil {
		return err
	}

	runLog.Printf("Starting SBOM generation for %s (%s)", owner.Name, owner.Type)
	runLog.Printf("Found %d repositories to process", len(repos))

	rep := reporter.New(owner, runDate, len(repos), runLog, os.Stdout)

	interrupted := false
	if len(repos) == 0 {
		fmt.Println("No repositories to process")
	} else {
		f := fetcher.New(coll, store, runLog, rep, fetcher.Options{
			RunDate:  runDate,
			Cooldown: cfg.RateLimitCooldown,
			Delay:    cfg.RequestDelay,
			Workers:  cfg.FetchWorkers,
		})
		interrupted = f.Run(ctx, owner, repos)
	}

	if interrupted {
		rep.MarkInterrupted()
	}
	rep.Emit(true)

	summary := rep.Summary()
	saveRun(cfg, summary)

	// os.Exit bypasses defers, so flush explicitly
	runLog.Close()
	logger.Sync()
	os.Exit(summary.ExitCode())
	return nil
}

func applyFetchFlags(cfg *config.Config) {
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if workers > 0 {
		cfg.FetchWorkers = workers
	}
	if maxRepos > 0 {
		cfg.MaxRepos = maxRepos
	}
	if delaySeconds >= 0 {
		cfg.RequestDelay = time.Duration(delaySeconds) * time.Second
	}
	if cooldownSecs >= 0 {
		cfg.RateLimitCooldown = time.Duration(cooldownSecs) * time.Second
	}
}

// saveRun persists the run to the history storage. Best effort: a storage
// failure is reported but never changes the run's exit code.
func saveRun(cfg *config.Config, summary domain.RunSummary) {
	store, err := getStorage(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to open run history storage: %v\n", err)
		return
	}
	defer store.Close()

	status := domain.RunStatusCompleted
	if summary.Interrupted {
		status = domain.RunStatusInterrupted
	}
	record := &domain.RunRecord{
		ID:            uuid.New().String(),
		Owner:         summary.Owner,
		OwnerType:     summary.OwnerType,
		RunDate:       summary.RunDate,
		Total:         summary.Total,
		Processed:     summary.Processed,
		Succeeded:     summary.Succeeded,
		Failed:        summary.Failed,
		Skipped:       summary.Skipped,
		NotAccessible: summary.NotAccessible,
		DurationMS:    summary.Duration.Milliseconds(),
		Status:        status,
		CreatedAt:     time.Now(),
	}

	// A fresh context: the run context may already be cancelled
	if err := store.SaveRun(context.Background(), record); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save run history: %v\n", err)
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logPath := watchLog
	if logPath == "" {
		logPath = filepath.Join(cfg.OutputDir, artifact.LogFileName(time.Now().Format("2006-01-02")))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := &progress.Observer{
		LogPath:  logPath,
		Total:    watchTotal,
		Interval: time.Duration(watchInterval) * time.Second,
		PID:      watchPID,
		Out:      os.Stdout,
	}

	if err := obs.Watch(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	owner := args[0]
	if !domain.ValidOwnerName(owner) {
		return apperrors.NewUsageError(fmt.Sprintf("invalid owner name %q", owner))
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var runs []*domain.RunRecord
	var stats *domain.OwnerStats

	if runsRemote {
		cli := client.NewClient(cfg.APIEndpoint)
		runs, err = cli.GetRuns(owner, runsLimit)
		if err != nil {
			return fmt.Errorf("failed to get runs: %w", err)
		}
		stats, err = cli.GetOwnerStats(owner)
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}
	} else {
		store, err := getStorage(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer store.Close()

		agg := aggregator.NewAggregator(store)
		ctx := context.Background()

		runs, err = agg.ListRuns(ctx, owner, runsLimit)
		if err != nil {
			return fmt.Errorf("failed to get runs: %w", err)
		}
		stats, err = agg.OwnerStats(ctx, owner)
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}
	}

	fmt.Printf("\nRun history: %s\n\n", owner)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Date", "Status", "Total", "Processed", "Succeeded", "Skipped", "Not accessible", "Failed", "Duration"})
	for _, r := range runs {
		table.Append([]string{
			r.RunDate,
			r.Status,
			fmt.Sprintf("%d", r.Total),
			fmt.Sprintf("%d", r.Processed),
			fmt.Sprintf("%d", r.Succeeded),
			fmt.Sprintf("%d", r.Skipped),
			fmt.Sprintf("%d", r.NotAccessible),
			fmt.Sprintf("%d", r.Failed),
			(time.Duration(r.DurationMS) * time.Millisecond).Round(time.Second).String(),
		})
	}
	table.Render()

	fmt.Printf("\nTotal runs: %d (interrupted: %d), repositories processed: %d, succeeded: %d, failed: %d\n",
		stats.Runs, stats.Interrupted, stats.TotalProcessed, stats.TotalSucceeded, stats.TotalFailed)
	if stats.LastRunAt != nil {
		fmt.Printf("Last run: %s\n", stats.LastRunAt.Format(time.RFC3339))
	}

	return nil
}
