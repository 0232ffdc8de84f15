package leads

import (
	"context"
	"sync"
	"time"
)

// MemoryDirectory is an in-memory lead directory for tests and early
// development. It enforces workspace isolation on reads.
type MemoryDirectory struct {
	mu    sync.Mutex
	Leads []Lead
}

func NewMemoryDirectory(rows ...Lead) *MemoryDirectory {
	return &MemoryDirectory{Leads: rows}
}

func (d *MemoryDirectory) FindByPhone(ctx context.Context, workspaceID, number string) (Lead, error) {
	if workspaceID == "" || number == "" {
		return Lead{}, ErrInvalidArgument
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range d.Leads {
		if l.WorkspaceID != workspaceID {
			continue
		}
		if PhonesMatch(l.Phone, number) || PhonesMatch(l.MobilePhone, number) || PhonesMatch(l.WorkPhone, number) {
			return l, nil
		}
	}
	return Lead{}, ErrNotFound
}

func (d *MemoryDirectory) Get(ctx context.Context, workspaceID, leadID string) (Lead, error) {
	if workspaceID == "" || leadID == "" {
		return Lead{}, ErrInvalidArgument
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range d.Leads {
		if l.WorkspaceID == workspaceID && l.ID == leadID {
			return l, nil
		}
	}
	return Lead{}, ErrNotFound
}

func (d *MemoryDirectory) UpdateContactTimestamps(ctx context.Context, workspaceID, leadID string, lastContactedAt time.Time, nextFollowupAt *time.Time) error {
	if workspaceID == "" || leadID == "" {
		return ErrInvalidArgument
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.Leads {
		if d.Leads[i].WorkspaceID == workspaceID && d.Leads[i].ID == leadID {
			t := lastContactedAt
			d.Leads[i].LastContactedAt = &t
			if nextFollowupAt != nil {
				f := *nextFollowupAt
				d.Leads[i].NextFollowupAt = &f
			}
			return nil
		}
	}
	return ErrNotFound
}
