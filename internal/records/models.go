package records

import "time"

// CallRecord is the durable counterpart of a live call session: created at
// call start, updated at end and at wrap-up, never deleted by this subsystem.
//
// Multi-tenant invariant: WorkspaceID is required on every row.
//
// NOTE: This is a domain model only. Transport-specific identifiers (SIP
// call-id and the like) belong in SessionID/metadata, not extra columns here.
type CallRecord struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	AgentID     string `json:"agent_id" db:"agent_id"`

	// SessionID ties the row back to the in-memory session that produced it.
	SessionID string `json:"session_id" db:"session_id"`

	Direction         string `json:"direction" db:"direction"`
	CounterpartNumber string `json:"counterpart_number" db:"counterpart_number"`

	RelatedType string `json:"related_type,omitempty" db:"related_type"`
	RelatedID   string `json:"related_id,omitempty" db:"related_id"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// DurationSeconds is talk time; kept as int for JSON friendliness.
	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	// DispositionID stays empty until wrap-up completes.
	DispositionID string `json:"disposition_id,omitempty" db:"disposition_id"`
	Notes         string `json:"notes,omitempty" db:"notes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// WrappedUp reports whether post-call data entry has completed for this row.
func (r CallRecord) WrappedUp() bool { return r.DispositionID != "" }

// Update is a partial update applied to an existing record. Nil fields are
// left untouched.
type Update struct {
	EndedAt         *time.Time
	DurationSeconds *int
	DispositionID   *string
	Notes           *string
}
