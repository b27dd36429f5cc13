package updater

import (
	"fmt"
)

// Phase is a state of the install sequence.
type Phase string

// Phases in the order they are entered.
const (
	PhaseStart                Phase = "Start"
	PhaseFetchingEfiboot      Phase = "FetchingEfiboot"
	PhaseFetchingCore         Phase = "FetchingCore"
	PhaseSelectingVolume      Phase = "SelectingVolume"
	PhaseClearingStaleEntries Phase = "ClearingStaleEntries"
	PhaseWritingCore          Phase = "WritingCore"
	PhasePublishingBoot       Phase = "PublishingBoot"
	PhaseCleaningUp           Phase = "CleaningUp"
	PhaseDone                 Phase = "Done"
	PhaseFailed               Phase = "Failed"
)

// Committed reports whether the new boot entry is already visible in this phase.
func (p Phase) Committed() bool {
	return p == PhaseCleaningUp || p == PhaseDone
}

// PhaseError is returned when the install fails. Phase is the phase that failed.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("update failed in phase %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}
