package types

import "fmt"

// Status is the terminal classification of a single test attempt.
type Status string

const (
	StatusCompleted          Status = "Completed"
	StatusFailed             Status = "Failed"
	StatusNotRun             Status = "Not Run"
	StatusTimeout            Status = "Timeout"
	StatusSegFault           Status = "SEGFAULT"
	StatusIllegalInstruction Status = "ILLEGAL"
	StatusInterrupted        Status = "INTERRUPT"
	StatusNumericalFault     Status = "NUMERICAL"
	StatusOtherFault         Status = "OTHER_FAULT"
)

// AllStatuses lists every terminal status in a stable order.
var AllStatuses = []Status{
	StatusCompleted,
	StatusFailed,
	StatusNotRun,
	StatusTimeout,
	StatusSegFault,
	StatusIllegalInstruction,
	StatusInterrupted,
	StatusNumericalFault,
	StatusOtherFault,
}

// String implements the Stringer interface for Status
func (s Status) String() string {
	return string(s)
}

// IsValid reports whether s is one of the terminal statuses.
func (s Status) IsValid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsFault reports whether the status was produced by a hardware/runtime fault.
func (s Status) IsFault() bool {
	switch s {
	case StatusSegFault, StatusIllegalInstruction, StatusInterrupted, StatusNumericalFault, StatusOtherFault:
		return true
	}
	return false
}

// FaultKind is the platform independent kind of a fault that killed a process.
type FaultKind int

const (
	FaultNone FaultKind = iota
	FaultSegmentation
	FaultIllegalInstruction
	FaultInterrupt
	FaultNumerical
	FaultOther
)

func (k FaultKind) String() string {
	switch k {
	case FaultNone:
		return "none"
	case FaultSegmentation:
		return "segmentation"
	case FaultIllegalInstruction:
		return "illegal"
	case FaultInterrupt:
		return "interrupt"
	case FaultNumerical:
		return "numerical"
	case FaultOther:
		return "other"
	default:
		return fmt.Sprintf("FaultKind(%d)", int(k))
	}
}

// Status maps a fault kind to its terminal status.
func (k FaultKind) Status() Status {
	switch k {
	case FaultSegmentation:
		return StatusSegFault
	case FaultIllegalInstruction:
		return StatusIllegalInstruction
	case FaultInterrupt:
		return StatusInterrupted
	case FaultNumerical:
		return StatusNumericalFault
	default:
		return StatusOtherFault
	}
}

// AttemptState tracks where an execution unit is in its lifecycle.
// Everything except NotStarted and Running is terminal for the attempt.
type AttemptState string

const (
	StateNotStarted          AttemptState = "NOT_STARTED"
	StateBlockedByDependency AttemptState = "BLOCKED_BY_DEPENDENCY"
	StateMisconfigured       AttemptState = "MISCONFIGURED"
	StateMissingRequiredFile AttemptState = "MISSING_REQUIRED_FILE"
	StateMissingExecutable   AttemptState = "MISSING_EXECUTABLE"
	StateDisabled            AttemptState = "DISABLED"
	StateStopTimePassed      AttemptState = "STOP_TIME_PASSED"
	StateRunning             AttemptState = "RUNNING"
	StateFinished            AttemptState = "FINISHED"
)

// PreSpawn reports whether the state ends an attempt before a process is spawned.
func (s AttemptState) PreSpawn() bool {
	switch s {
	case StateBlockedByDependency, StateMisconfigured, StateMissingRequiredFile,
		StateMissingExecutable, StateDisabled, StateStopTimePassed:
		return true
	}
	return false
}

// Completion status strings recorded on outcomes.
const (
	CompletionCompleted         = "Completed"
	CompletionFailedToStart     = "Failed to start"
	CompletionFixtureFailed     = "Fixture dependency failed"
	CompletionMissingConfig     = "Missing Configuration"
	CompletionRequiredFiles     = "Required Files Missing"
	CompletionMissingExecutable = "Unable to find executable"
	CompletionDisabled          = "Disabled"
)
