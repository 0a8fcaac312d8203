package runner

// State is the lifecycle state of a Runner.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateSuspended
	StateCompleted
	StateCancelled
)

var stateNames = [...]string{
	StateCreated:   "CREATED",
	StateRunning:   "RUNNING",
	StateSuspended: "SUSPENDED",
	StateCompleted: "COMPLETED",
	StateCancelled: "CANCELLED",
}

// String returns the upper-case state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// IsTerminal returns true if the runner will never resume again.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// validTransitions defines the allowed runner state transitions.
var validTransitions = map[State][]State{
	StateCreated:   {StateRunning},
	StateRunning:   {StateSuspended, StateCompleted, StateCancelled},
	StateSuspended: {StateRunning, StateCancelled},
}

// CanTransitionTo returns true if moving from s to next is valid.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
