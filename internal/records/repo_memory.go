package records

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory record sink for tests and early development.
// It enforces workspace isolation on reads and idempotent create by session.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]CallRecord // by record id

	// FailNext makes the next n calls fail with the given error; used to
	// exercise the async writer's retry path.
	FailNext int
	FailErr  error

	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]CallRecord{}, clock: time.Now}
}

func (r *MemoryRepo) failing() error {
	if r.FailNext > 0 {
		r.FailNext--
		return r.FailErr
	}
	return nil
}

func (r *MemoryRepo) Create(ctx context.Context, rec CallRecord) (string, error) {
	if rec.WorkspaceID == "" || rec.AgentID == "" || rec.SessionID == "" {
		return "", ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failing(); err != nil {
		return "", err
	}
	for _, existing := range r.rows {
		if existing.WorkspaceID == rec.WorkspaceID && existing.SessionID == rec.SessionID {
			return existing.ID, nil
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := r.clock().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	r.rows[rec.ID] = rec
	return rec.ID, nil
}

func (r *MemoryRepo) Update(ctx context.Context, workspaceID, recordID string, upd Update) error {
	if workspaceID == "" || recordID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failing(); err != nil {
		return err
	}
	rec, ok := r.rows[recordID]
	if !ok || rec.WorkspaceID != workspaceID {
		return ErrNotFound
	}
	if upd.EndedAt != nil {
		t := *upd.EndedAt
		rec.EndedAt = &t
	}
	if upd.DurationSeconds != nil {
		rec.DurationSeconds = *upd.DurationSeconds
	}
	if upd.DispositionID != nil {
		rec.DispositionID = *upd.DispositionID
	}
	if upd.Notes != nil {
		rec.Notes = *upd.Notes
	}
	rec.UpdatedAt = r.clock().UTC()
	r.rows[recordID] = rec
	return nil
}

func (r *MemoryRepo) Get(workspaceID, recordID string) (CallRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[recordID]
	if !ok || rec.WorkspaceID != workspaceID {
		return CallRecord{}, false
	}
	return rec, true
}

func (r *MemoryRepo) FindActiveOrUnwrapped(ctx context.Context, workspaceID, agentID string) ([]CallRecord, error) {
	if workspaceID == "" || agentID == "" {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, 0)
	for _, rec := range r.rows {
		if rec.WorkspaceID == workspaceID && rec.AgentID == agentID && !rec.WrappedUp() {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) ListRecent(ctx context.Context, workspaceID, agentID string, limit int) ([]CallRecord, error) {
	if workspaceID == "" || agentID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 {
		limit = 20
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, 0)
	for _, rec := range r.rows {
		if rec.WorkspaceID == workspaceID && rec.AgentID == agentID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
