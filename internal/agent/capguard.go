package agent

import "context"

// CapGuard limits concurrent calls per workspace. Acquire is called before a
// session is created, Release after it terminates. A nil guard means no cap.
//
// Implementations must be safe for concurrent use; coordinators for different
// agents in the same workspace share one guard.
type CapGuard interface {
	// Acquire reserves a call slot. ok=false means the workspace is at its
	// cap and the call must be refused.
	Acquire(ctx context.Context, workspaceID string) (ok bool, err error)
	Release(ctx context.Context, workspaceID string)
}
