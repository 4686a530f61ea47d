package pipeline

import "fmt"

// State is a step of the orchestrator's state machine.
type State int

const (
	StateIdle State = iota
	StateCrawling
	StateAnalyzingCode
	StateResolvingDependencies
	StateAnalyzingArchitecture
	StateMappingRelationships
	StateGeneratingVisualizations
	StateCompleted
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:                     "idle",
	StateCrawling:                 "crawling",
	StateAnalyzingCode:            "analyzing_code",
	StateResolvingDependencies:    "resolving_dependencies",
	StateAnalyzingArchitecture:    "analyzing_architecture",
	StateMappingRelationships:     "mapping_relationships",
	StateGeneratingVisualizations: "generating_visualizations",
	StateCompleted:                "completed",
	StateFailed:                   "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// next lists the forward step of every running state. Any non-terminal state
// may also end early in Completed (cancellation) or Failed (critical error).
var next = map[State]State{
	StateIdle:                     StateCrawling,
	StateCrawling:                 StateAnalyzingCode,
	StateAnalyzingCode:            StateResolvingDependencies,
	StateResolvingDependencies:    StateAnalyzingArchitecture,
	StateAnalyzingArchitecture:    StateMappingRelationships,
	StateMappingRelationships:     StateGeneratingVisualizations,
	StateGeneratingVisualizations: StateCompleted,
}

// canTransition reports whether from -> to is a legal move.
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed || to == StateCompleted {
		return true
	}
	return next[from] == to
}
