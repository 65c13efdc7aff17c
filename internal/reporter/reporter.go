package reporter

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/sbomtools/sbom-collector/internal/domain"
	"github.com/sbomtools/sbom-collector/internal/runlog"
)

// Reporter owns the RunSummary for one run. The batch fetcher feeds it one
// outcome per repository through Record; everything else only reads.
type Reporter struct {
	mu      sync.Mutex
	summary domain.RunSummary
	log     *runlog.Writer
	out     io.Writer
	emitted bool
}

// New creates a reporter for a run over total repositories
func New(owner *domain.Owner, runDate string, total int, log *runlog.Writer, out io.Writer) *Reporter {
	return &Reporter{
		summary: domain.RunSummary{
			Owner:     owner.Name,
			OwnerType: owner.Type,
			RunDate:   runDate,
			Total:     total,
			StartedAt: time.Now(),
		},
		log: log,
		out: out,
	}
}

// Record accumulates one repository outcome
func (r *Reporter) Record(repo string, outcome domain.FetchOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Apply(outcome)
}

// MarkInterrupted flags the run as interrupted before the final emit
func (r *Reporter) MarkInterrupted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Interrupted = true
}

// Summary returns a snapshot of the accumulated summary
func (r *Reporter) Summary() domain.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.summary
	s.Duration = time.Since(s.StartedAt)
	return s
}

// Emit writes the run summary to the live output and the run log. It runs
// at most once per process and never returns an error: a log write failure
// falls back to the live output alone.
func (r *Reporter) Emit(final bool) {
	r.mu.Lock()
	if final && r.emitted {
		r.mu.Unlock()
		return
	}
	if final {
		r.emitted = true
	}
	s := r.summary
	s.Duration = time.Since(s.StartedAt)
	r.mu.Unlock()

	status := "completed"
	if s.Interrupted {
		status = "interrupted"
	}

	fmt.Fprintf(r.out, "\nRun summary for %s (%s)\n", s.Owner, s.RunDate)
	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Total repositories", fmt.Sprintf("%d", s.Total)})
	table.Append([]string{"Processed", fmt.Sprintf("%d", s.Processed)})
	table.Append([]string{"Succeeded", fmt.Sprintf("%d", s.Succeeded)})
	table.Append([]string{"Skipped", fmt.Sprintf("%d", s.Skipped)})
	table.Append([]string{"Not accessible", fmt.Sprintf("%d", s.NotAccessible)})
	table.Append([]string{"Failed", fmt.Sprintf("%d", s.Failed)})
	table.Append([]string{"Duration", s.Duration.Round(time.Second).String()})
	table.Append([]string{"Status", status})
	table.Render()

	if r.log != nil {
		r.log.Printf("Run summary: owner=%s total=%d processed=%d succeeded=%d skipped=%d not_accessible=%d failed=%d duration=%s status=%s",
			s.Owner, s.Total, s.Processed, s.Succeeded, s.Skipped, s.NotAccessible, s.Failed,
			s.Duration.Round(time.Second), status)
		if final {
			r.log.Printf("%s: %s", runlog.FinishedMarker, status)
		}
	}
}
