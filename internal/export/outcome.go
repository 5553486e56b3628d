package export

import "errors"

// Outcome is the terminal state of one export cycle.
type Outcome string

const (
	// OutcomeSkippedLocked: another cycle holds the run lock.
	OutcomeSkippedLocked Outcome = "SKIPPED_LOCKED"
	// OutcomeSkippedOverloaded: the inbound staging directory is over
	// the configured file ceiling.
	OutcomeSkippedOverloaded Outcome = "SKIPPED_OVERLOADED"
	// OutcomeNothingToDo: the candidate batch came back empty.
	OutcomeNothingToDo Outcome = "NOTHING_TO_DO"
	// OutcomeCompleted: the batch was processed to the end.
	OutcomeCompleted Outcome = "COMPLETED"
	// OutcomeFatalAborted: a fatal condition aborted the cycle.
	OutcomeFatalAborted Outcome = "FATAL_ABORTED"
)

// ErrVolumeUnavailable indicates the external volume is not mounted or
// its sentinel marker file is missing.
var ErrVolumeUnavailable = errors.New("external volume not mounted or sentinel missing")
