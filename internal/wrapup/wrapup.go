package wrapup

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"crm-softphone/internal/dispositions"
	"crm-softphone/internal/leads"
	"crm-softphone/internal/records"
)

// Enforcer validates and applies post-call wrap-up submissions.
//
// The gate itself (the agent being stuck in InWrapUp) is owned by the agent
// coordinator; this type holds the validation rules and the persistence
// effects of a successful submission. Validation failures are returned to the
// caller and change nothing, so the gate stays open and entered data is not
// lost.
//
// Persistence effects go through the async record writer and are best-effort:
// once a submission validates, the agent is released regardless of storage
// health. Sink failures retry in the background.
type Enforcer struct {
	dispositions *dispositions.Service
	writer       *records.Writer
	directory    leads.Directory
	log          *slog.Logger
	clock        func() time.Time
}

func NewEnforcer(d *dispositions.Service, w *records.Writer, dir leads.Directory, log *slog.Logger) *Enforcer {
	return &Enforcer{dispositions: d, writer: w, directory: dir, log: log, clock: time.Now}
}

// Submission carries the wrap-up form contents.
type Submission struct {
	DispositionID    string     `json:"disposition_id"`
	Notes            string     `json:"notes"`
	ScheduleFollowUp bool       `json:"schedule_follow_up"`
	FollowUpDate     *time.Time `json:"follow_up_date,omitempty"`
}

// CallContext identifies the just-ended call the submission wraps up.
type CallContext struct {
	WorkspaceID string
	AgentID     string
	SessionID   string

	// LeadID is set when the call was linked to a lead.
	LeadID string
}

// Submit validates the submission and, on success, records disposition and
// notes on the call record and stamps the linked lead's contact timestamps.
// Returns *ValidationError for rejected input.
func (e *Enforcer) Submit(ctx context.Context, call CallContext, sub Submission) error {
	if call.WorkspaceID == "" || call.SessionID == "" {
		return errors.New("wrapup: call context incomplete")
	}

	ve := &ValidationError{Fields: map[string]string{}}

	if sub.DispositionID == "" {
		ve.Fields["disposition_id"] = "disposition is required"
		return ve
	}
	disp, err := e.dispositions.Get(ctx, call.WorkspaceID, sub.DispositionID)
	if err != nil {
		if errors.Is(err, dispositions.ErrNotFound) {
			ve.Fields["disposition_id"] = "unknown disposition"
			return ve
		}
		return err
	}

	if disp.RequiresNote && strings.TrimSpace(sub.Notes) == "" {
		ve.Fields["notes"] = "notes are required for this disposition"
	}
	now := e.clock().UTC()
	if sub.ScheduleFollowUp {
		if sub.FollowUpDate == nil {
			ve.Fields["follow_up_date"] = "follow-up date is required"
		} else if !sub.FollowUpDate.After(now) {
			ve.Fields["follow_up_date"] = "follow-up date must be in the future"
		}
	}
	if len(ve.Fields) > 0 {
		return ve
	}

	notes := sub.Notes
	e.writer.EnqueueUpdate(call.WorkspaceID, call.SessionID, records.Update{
		DispositionID: &sub.DispositionID,
		Notes:         &notes,
	})

	if call.LeadID != "" {
		var followup *time.Time
		if sub.ScheduleFollowUp {
			followup = sub.FollowUpDate
		}
		if err := e.directory.UpdateContactTimestamps(ctx, call.WorkspaceID, call.LeadID, now, followup); err != nil {
			// Lead bookkeeping is best-effort; the wrap-up itself stands.
			e.log.Warn("lead contact timestamps not updated",
				"workspace_id", call.WorkspaceID, "lead_id", call.LeadID, "err", err)
		}
	}
	return nil
}
