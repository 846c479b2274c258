package engine

// State is a position in the per-repository release state machine. States
// only advance in declaration order; StateFailed is reachable from any
// non-terminal state.
type State int

const (
	StateStart State = iota
	StateFileDetected
	StateRequestOpened
	StateFileUpdated
	StateMerged
	StateReleased
	StateBranchCreated
	StateFailed
)

var stateNames = map[State]string{
	StateStart:         "start",
	StateFileDetected:  "file_detected",
	StateRequestOpened: "request_opened",
	StateFileUpdated:   "file_updated",
	StateMerged:        "merged",
	StateReleased:      "released",
	StateBranchCreated: "branch_created",
	StateFailed:        "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ReleaseStates returns the states of a complete release in order, excluding
// StateStart and StateFailed.
func ReleaseStates() []State {
	return []State{
		StateFileDetected,
		StateRequestOpened,
		StateFileUpdated,
		StateMerged,
		StateReleased,
		StateBranchCreated,
	}
}
