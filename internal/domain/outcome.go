package domain

// FetchOutcome represents the terminal result of processing one repository
type FetchOutcome string

const (
	// OutcomeSucceeded means a valid SBOM payload was fetched and persisted
	OutcomeSucceeded FetchOutcome = "succeeded"

	// OutcomeSkipped means an artifact for (repository, run date) already existed
	OutcomeSkipped FetchOutcome = "skipped"

	// OutcomeNotAccessible means the SBOM endpoint returned not-found for the
	// repository. Counted separately from failures.
	OutcomeNotAccessible FetchOutcome = "not_accessible"

	// OutcomeFailed covers everything else, including a second failure after
	// the single rate-limit retry and payloads that are not well-formed JSON.
	OutcomeFailed FetchOutcome = "failed"
)
