package orchestrator

// State is the position of a query in the orchestration loop.
type State int

const (
	// StateAwaitingModel waits for the next model response.
	StateAwaitingModel State = iota
	// StateExecutingTools runs the tool calls requested by the last response.
	StateExecutingTools
	// StateDone holds the final answer.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateExecutingTools:
		return "executing_tools"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
