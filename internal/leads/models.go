package leads

import "time"

// Lead is the slice of the CRM lead this subsystem needs: identity plus the
// phone fields used for caller matching and the contact timestamps the
// wrap-up flow maintains. Lead CRUD lives elsewhere.
type Lead struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	Name        string `json:"name" db:"name"`

	Phone       string `json:"phone" db:"phone"`
	MobilePhone string `json:"mobile_phone,omitempty" db:"mobile_phone"`
	WorkPhone   string `json:"work_phone,omitempty" db:"work_phone"`

	LastContactedAt *time.Time `json:"last_contacted_at,omitempty" db:"last_contacted_at"`
	NextFollowupAt  *time.Time `json:"next_followup_at,omitempty" db:"next_followup_at"`
}
