package agent

import "errors"

var (
	// ErrAlreadyOnCall rejects a dial while a call is active or wrap-up is
	// pending. Exactly one concurrent call per agent, no call waiting.
	ErrAlreadyOnCall = errors.New("agent: already on a call")

	// ErrNotRegistered rejects outbound dialing before the line is registered.
	ErrNotRegistered = errors.New("agent: not registered")

	// ErrNoActiveCall rejects call-scoped commands with no session to act on.
	ErrNoActiveCall = errors.New("agent: no active call")

	// ErrWrapUpPending rejects availability changes while a wrap-up is owed.
	ErrWrapUpPending = errors.New("agent: wrap-up pending")

	// ErrNoWrapUpPending rejects a wrap-up submission with nothing to wrap up.
	ErrNoWrapUpPending = errors.New("agent: no wrap-up pending")

	// ErrCoordinatorClosed is returned once the coordinator has shut down.
	ErrCoordinatorClosed = errors.New("agent: coordinator closed")

	// ErrWorkspaceCapReached rejects a call when the workspace is at its
	// concurrent-call limit.
	ErrWorkspaceCapReached = errors.New("agent: workspace concurrent call cap reached")
)
