package dispositions

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory disposition repository for tests and early
// development. It enforces workspace isolation on reads.
type MemoryRepo struct {
	mu   sync.Mutex
	rows []Disposition
}

func NewMemoryRepo(rows ...Disposition) *MemoryRepo {
	return &MemoryRepo{rows: rows}
}

func (r *MemoryRepo) Get(ctx context.Context, workspaceID, id string) (Disposition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.rows {
		if d.WorkspaceID == workspaceID && d.ID == id {
			return d, nil
		}
	}
	return Disposition{}, ErrNotFound
}

func (r *MemoryRepo) List(ctx context.Context, workspaceID string) ([]Disposition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Disposition, 0)
	for _, d := range r.rows {
		if d.WorkspaceID == workspaceID {
			out = append(out, d)
		}
	}
	return out, nil
}
