package dispositions

// Disposition is a tenant-configured outcome category for a completed call.
//
// Multi-tenant invariant: WorkspaceID is required on every row; lookups must
// always be workspace-scoped.
type Disposition struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	Name        string `json:"name" db:"name"`

	// RequiresNote forces the wrap-up gate to demand a non-empty note.
	RequiresNote bool `json:"requires_note" db:"requires_note"`
}
