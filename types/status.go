package types

// OutcomeStatus represents the terminal state of a single test leaf
type OutcomeStatus string

const (
	OutcomePassed  OutcomeStatus = "passed"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeErrored OutcomeStatus = "errored"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// IsFailure reports whether the status counts against the variant
func (s OutcomeStatus) IsFailure() bool {
	return s == OutcomeFailed || s == OutcomeErrored
}

// RunStatus represents the terminal state of a whole execution request
type RunStatus string

const (
	RunStatusCompleted  RunStatus = "completed"
	RunStatusTimedOut   RunStatus = "timed-out"
	RunStatusLoadFailed RunStatus = "load-failed"
)

// RunState is a step of the execution state machine.
//
//	Idle -> Loading -> (LoadFailed | Planning) -> Scheduled -> Running -> (Completed | TimedOut)
type RunState string

const (
	StateIdle       RunState = "idle"
	StateLoading    RunState = "loading"
	StateLoadFailed RunState = "load-failed"
	StatePlanning   RunState = "planning"
	StateScheduled  RunState = "scheduled"
	StateRunning    RunState = "running"
	StateCompleted  RunState = "completed"
	StateTimedOut   RunState = "timed-out"
)

var stateTransitions = map[RunState][]RunState{
	StateIdle:      {StateLoading},
	StateLoading:   {StateLoadFailed, StatePlanning},
	StatePlanning:  {StateScheduled},
	StateScheduled: {StateRunning},
	StateRunning:   {StateCompleted, StateTimedOut},
}

// CanTransition reports whether moving from one state to the other is allowed
func CanTransition(from, to RunState) bool {
	for _, next := range stateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition leaves this state
func (s RunState) IsTerminal() bool {
	return s == StateLoadFailed || s == StateCompleted || s == StateTimedOut
}

// RunStatus maps a terminal state onto the status reported to callers.
// Non-terminal states map to the empty status.
func (s RunState) RunStatus() RunStatus {
	switch s {
	case StateCompleted:
		return RunStatusCompleted
	case StateTimedOut:
		return RunStatusTimedOut
	case StateLoadFailed:
		return RunStatusLoadFailed
	default:
		return ""
	}
}
