package domain

import "time"

// Run status values persisted to the run history
const (
	RunStatusCompleted   = "completed"
	RunStatusInterrupted = "interrupted"
)

// Exit codes for the fetch command
const (
	ExitOK             = 0
	ExitPartialFailure = 1
	ExitTotalFailure   = 2
	ExitInterrupted    = 130
)

// RunSummary accumulates per-repository outcomes for one run. It is owned
// exclusively by the reporter; nothing else mutates it.
type RunSummary struct {
	Owner         string
	OwnerType     OwnerType
	RunDate       string // YYYY-MM-DD
	Total         int
	Processed     int
	Succeeded     int
	Failed        int
	Skipped       int
	NotAccessible int
	StartedAt     time.Time
	Duration      time.Duration
	Interrupted   bool
}

// Apply records a single repository outcome
func (s *RunSummary) Apply(outcome FetchOutcome) {
	s.Processed++
	switch outcome {
	case OutcomeSucceeded:
		s.Succeeded++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeNotAccessible:
		s.NotAccessible++
	case OutcomeFailed:
		s.Failed++
	}
}

// ExitCode derives the process exit code from the aggregate counts.
// NotAccessible repositories do not count as failures.
func (s *RunSummary) ExitCode() int {
	if s.Interrupted {
		return ExitInterrupted
	}
	if s.Failed == 0 {
		return ExitOK
	}
	if s.Succeeded == 0 {
		return ExitTotalFailure
	}
	return ExitPartialFailure
}

// RunRecord is a finished run as persisted to the run history
type RunRecord struct {
	ID            string    `json:"id"`
	Owner         string    `json:"owner"`
	OwnerType     OwnerType `json:"owner_type"`
	RunDate       string    `json:"run_date"`
	Total         int       `json:"total"`
	Processed     int       `json:"processed"`
	Succeeded     int       `json:"succeeded"`
	Failed        int       `json:"failed"`
	Skipped       int       `json:"skipped"`
	NotAccessible int       `json:"not_accessible"`
	DurationMS    int64     `json:"duration_ms"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// OwnerStats aggregates the stored runs for one owner
type OwnerStats struct {
	Owner          string     `json:"owner"`
	Runs           int        `json:"runs"`
	Interrupted    int        `json:"interrupted"`
	TotalProcessed int64      `json:"total_processed"`
	TotalSucceeded int64      `json:"total_succeeded"`
	TotalFailed    int64      `json:"total_failed"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
}
