package leads

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("leads: not found")
	ErrInvalidArgument = errors.New("leads: invalid argument")
)

// Directory is the narrow lead-lookup contract the call coordinator consumes.
// Implementations must enforce workspace filtering.
type Directory interface {
	// FindByPhone matches number against primary, mobile and work phone
	// fields after normalization. Returns ErrNotFound when no lead matches;
	// callers treat that as normal flow, not an error condition.
	FindByPhone(ctx context.Context, workspaceID, number string) (Lead, error)

	// Get fetches a lead by id for click-to-call.
	Get(ctx context.Context, workspaceID, leadID string) (Lead, error)

	// UpdateContactTimestamps stamps last_contacted_at and, when non-nil,
	// next_followup_at.
	UpdateContactTimestamps(ctx context.Context, workspaceID, leadID string, lastContactedAt time.Time, nextFollowupAt *time.Time) error
}

// NormalizePhone reduces a phone number to digits with an optional leading
// plus, so "+1 (555) 123-4567" and "15551234567" compare equal aside from the
// country-code prefix. Matching additionally falls back to a suffix
// comparison of the last 10 digits to bridge that gap.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhonesMatch compares two raw numbers after normalization.
func PhonesMatch(a, b string) bool {
	na := strings.TrimPrefix(NormalizePhone(a), "+")
	nb := strings.TrimPrefix(NormalizePhone(b), "+")
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	// Suffix match on national significant digits.
	const n = 10
	if len(na) >= n && len(nb) >= n {
		return na[len(na)-n:] == nb[len(nb)-n:]
	}
	return false
}
