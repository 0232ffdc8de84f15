package records

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("records: not found")
	ErrInvalidArgument = errors.New("records: invalid argument")
)

// Sink is the narrow persistence contract the call coordinator consumes.
//
// Implementations must enforce workspace filtering and must tolerate retried
// calls: Create with a session id that already has a row returns the existing
// record id instead of inserting a duplicate.
type Sink interface {
	Create(ctx context.Context, rec CallRecord) (string, error)
	Update(ctx context.Context, workspaceID, recordID string, upd Update) error

	// FindActiveOrUnwrapped returns the agent's records that have no
	// disposition yet, newest first. Used at agent-session startup to surface
	// calls left unwrapped after a crash or reload; the coordinator gates on
	// the first entry.
	FindActiveOrUnwrapped(ctx context.Context, workspaceID, agentID string) ([]CallRecord, error)

	// ListRecent returns the agent's most recent records, newest first.
	ListRecent(ctx context.Context, workspaceID, agentID string, limit int) ([]CallRecord, error)
}
