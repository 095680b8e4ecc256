package execution

// State represents the orchestrator's durable position in the workflow
type State string

const (
	StateInitializing State = "initializing"
	StateResearching  State = "researching"
	StatePlanning     State = "planning"
	StateExecuting    State = "executing"
	StateReviewing    State = "reviewing"
	StateTesting      State = "testing"
	StateProposing    State = "proposing"

	// StateDeciding is the re-entry sentinel: the loop re-asks the agent
	// "what next" instead of resuming a stale action.
	StateDeciding State = "deciding"

	StateCompleted State = "completed"
	StateAbandoned State = "abandoned"

	StatePausedUserRequested State = "paused_user_requested"
	StatePausedAwaitingInput State = "paused_awaiting_input"
	StatePausedLoopDetected  State = "paused_loop_detected"
	StatePausedError         State = "paused_error"
	StatePausedNetwork       State = "paused_network"
)

// IsValid checks whether the state is a member of the closed state set
func (s State) IsValid() bool {
	switch s {
	case StateInitializing, StateResearching, StatePlanning, StateExecuting,
		StateReviewing, StateTesting, StateProposing, StateDeciding,
		StateCompleted, StateAbandoned,
		StatePausedUserRequested, StatePausedAwaitingInput,
		StatePausedLoopDetected, StatePausedError, StatePausedNetwork:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateAbandoned
}

// IsPaused reports whether the loop is halted awaiting an explicit resume
func (s State) IsPaused() bool {
	switch s {
	case StatePausedUserRequested, StatePausedAwaitingInput,
		StatePausedLoopDetected, StatePausedError, StatePausedNetwork:
		return true
	}
	return false
}

// String returns the string representation
func (s State) String() string {
	return string(s)
}

// StateForPhase maps a requested work phase to the running state
func StateForPhase(phase Phase) State {
	switch phase {
	case PhaseResearch:
		return StateResearching
	case PhasePlan:
		return StatePlanning
	case PhaseReview:
		return StateReviewing
	case PhaseTest:
		return StateTesting
	case PhasePropose:
		return StateProposing
	default:
		return StateExecuting
	}
}

// Phase is the unit of work the agent is asked to perform
type Phase string

const (
	PhaseResearch Phase = "research"
	PhasePlan     Phase = "plan"
	PhaseExecute  Phase = "execute"
	PhaseReview   Phase = "review"
	PhaseTest     Phase = "test"
	PhasePropose  Phase = "propose"
)

// IsValid checks if the phase is a known value
func (p Phase) IsValid() bool {
	switch p {
	case PhaseResearch, PhasePlan, PhaseExecute, PhaseReview, PhaseTest, PhasePropose:
		return true
	}
	return false
}

func (p Phase) String() string {
	return string(p)
}
