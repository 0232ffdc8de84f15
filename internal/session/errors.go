package session

import "fmt"

// InvalidStateError reports a command that is not valid for the session's
// current state. It is synchronous and recoverable: the caller may retry with
// a command that fits the state it observes next.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("session: cannot %s in state %s", e.Op, e.State)
}
