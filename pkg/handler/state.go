package handler

import "fmt"

// State is the lifecycle state of one exchange in a Chain.
type State int

const (
	StateMatching State = iota
	StateRunningBefore
	StateRunningAction
	StateRunningAfter
	StateHandlingError
	StateDone
)

var stateNames = [...]string{
	StateMatching:      "MATCHING",
	StateRunningBefore: "RUNNING_BEFORE",
	StateRunningAction: "RUNNING_ACTION",
	StateRunningAfter:  "RUNNING_AFTER",
	StateHandlingError: "HANDLING_ERROR",
	StateDone:          "DONE",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// validTransitions defines the allowed state transitions. A before-hook that
// halts ends the exchange without running the action; every running state
// may fail into error handling, which always ends in DONE.
var validTransitions = map[State][]State{
	StateMatching:      {StateRunningBefore, StateHandlingError},
	StateRunningBefore: {StateRunningAction, StateHandlingError, StateDone},
	StateRunningAction: {StateRunningAfter, StateHandlingError},
	StateRunningAfter:  {StateDone, StateHandlingError},
	StateHandlingError: {StateDone},
}

// ValidateTransition checks whether a transition from one state to another
// is allowed. DONE is terminal.
func ValidateTransition(from, to State) error {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("invalid state transition from %s to %s", from, to)
}
