package report

import (
	"errors"
	"fmt"
)

// Step identifies where in a lifecycle sequence a failure happened. The
// two-ledger sequences are not transactional and are never rolled back or
// auto-retried, so callers need to know exactly which step failed to
// resume without repeating side-effecting calls.
type Step string

const (
	StepClassify         Step = "classify"
	StepReadReport       Step = "read_report"
	StepSubmit           Step = "submit_report"
	StepRegisterReward   Step = "register_reward"
	StepConfigureRewards Step = "configure_rewards_target"
	StepFlagThreat       Step = "flag_threat"
	StepSetStatus        Step = "set_status"
)

// StepError wraps a failure with the lifecycle step that produced it.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

func stepErr(step Step, err error) error {
	return &StepError{Step: step, Err: err}
}

// ErrNotReported means an adjudication was attempted on a report that has
// already left the Reported state. Status transitions are one-way and the
// orchestrator never re-issues them.
var ErrNotReported = errors.New("report is no longer in Reported state")

// ListingRejectedError is returned when a listing URL classifies as a
// threat: the report has already been submitted and auto-verified, and
// the listing must not be created.
type ListingRejectedError struct {
	Label    string
	ReportID uint64
}

func (e *ListingRejectedError) Error() string {
	return fmt.Sprintf("listing url classified as %q; report %d submitted and verified, listing not allowed", e.Label, e.ReportID)
}
