package agent

import (
	"time"

	"crm-softphone/internal/session"
	"crm-softphone/internal/signaling"
)

// Availability is the agent's console presence.
type Availability string

const (
	AvailabilityOffline   Availability = "offline"
	AvailabilityAvailable Availability = "available"
	AvailabilityAway      Availability = "away"
	AvailabilityInWrapUp  Availability = "in_wrap_up"
)

// EventType enumerates what the coordinator reports to the UI layer.
type EventType string

const (
	EventRegistrationChanged EventType = "registration_changed"
	EventIncomingCallOffered EventType = "incoming_call_offered"
	EventCallStateChanged    EventType = "call_state_changed"
	EventCallEnded           EventType = "call_ended"
	EventWrapUpRequired      EventType = "wrap_up_required"
	EventWrapUpCompleted     EventType = "wrap_up_completed"
)

// Event is one UI-facing state change. It is a snapshot: consumers never get
// a reference into coordinator-owned state.
type Event struct {
	Type        EventType `json:"type"`
	WorkspaceID string    `json:"workspace_id"`
	AgentID     string    `json:"agent_id"`
	At          time.Time `json:"at"`

	Registration signaling.RegistrationState `json:"registration_state,omitempty"`
	RegReason    string                      `json:"registration_reason,omitempty"`

	Availability Availability `json:"availability,omitempty"`

	SessionID         string `json:"session_id,omitempty"`
	CallState         string `json:"call_state,omitempty"`
	Direction         string `json:"direction,omitempty"`
	CounterpartNumber string `json:"counterpart_number,omitempty"`
	RelatedType       string `json:"related_type,omitempty"`
	RelatedID         string `json:"related_id,omitempty"`
	DurationSeconds   int    `json:"duration_seconds,omitempty"`
	EndReason         string `json:"end_reason,omitempty"`
}

// Notifier fans coordinator events out to the UI/notification layer.
// Implementations must not block; the coordinator calls this from its event
// loop.
type Notifier interface {
	Publish(ev Event)
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) Publish(Event) {}

func snapshotEvent(t EventType, workspaceID, agentID string, at time.Time, av Availability, s *session.CallSession) Event {
	ev := Event{
		Type:        t,
		WorkspaceID: workspaceID,
		AgentID:     agentID,
		At:          at,
		Availability: av,
	}
	if s != nil {
		ev.SessionID = s.ID
		ev.CallState = s.State().String()
		ev.Direction = string(s.Direction)
		ev.CounterpartNumber = s.CounterpartNumber
		if s.Related != nil {
			ev.RelatedType = s.Related.Type
			ev.RelatedID = s.Related.ID
		}
	}
	return ev
}
