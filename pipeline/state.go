package pipeline

// State is the lifecycle phase of a dispatched request.
type State int

const (
	StateReceived State = iota
	StateValidating
	StateAuthorizing
	StateExecuting
	StateCompleted
	StateRejected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateValidating:
		return "validating"
	case StateAuthorizing:
		return "authorizing"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateRejected:
		return "rejected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the lifecycle.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateRejected || s == StateFailed
}
