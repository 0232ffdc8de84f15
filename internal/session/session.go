package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a call session.
type State int

const (
	// StateRinging is the initial state: an outbound dial was issued or an
	// inbound invite was offered, and no media path exists yet.
	StateRinging State = iota
	// StateEstablishing is after accept/dial acknowledgment, awaiting media.
	StateEstablishing
	// StateActive is a fully established call with media flowing.
	StateActive
	// StateOnHold is an established call placed on hold by the agent.
	StateOnHold
	// StateTerminating is after a hangup command or remote bye, awaiting
	// signaling cleanup confirmation.
	StateTerminating
	// StateTerminated is the final state. A session never leaves it; the next
	// call gets a fresh session.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRinging:
		return "ringing"
	case StateEstablishing:
		return "establishing"
	case StateActive:
		return "active"
	case StateOnHold:
		return "on_hold"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// IsTerminal reports whether this is the final state.
func (s State) IsTerminal() bool { return s == StateTerminated }

// validTransitions defines which state transitions are allowed.
// Active/OnHold -> Terminated directly covers abnormal endings
// (media or transport failure) that skip the Terminating handshake.
var validTransitions = map[State][]State{
	StateRinging:      {StateEstablishing, StateTerminating, StateTerminated},
	StateEstablishing: {StateActive, StateTerminating, StateTerminated},
	StateActive:       {StateOnHold, StateTerminating, StateTerminated},
	StateOnHold:       {StateActive, StateTerminating, StateTerminated},
	StateTerminating:  {StateTerminated},
	StateTerminated:   {},
}

// CanTransitionTo checks if a transition from the current state is valid.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Direction of a call, fixed at session creation.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// RelatedEntity links a session to a CRM entity matched by phone number.
type RelatedEntity struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// CallSession is the live, in-memory representation of one telephony call.
//
// Ownership: all mutation goes through the methods below, and those are only
// called from the owning coordinator's event loop. The struct itself carries
// no locking.
//
// The session ID is assigned at dial/invite time and is distinct from the
// persisted call-record id, which the record sink assigns on create.
type CallSession struct {
	ID                string         `json:"id"`
	WorkspaceID       string         `json:"workspace_id"`
	AgentID           string         `json:"agent_id"`
	Direction         Direction      `json:"direction"`
	CounterpartNumber string         `json:"counterpart_number"`
	Related           *RelatedEntity `json:"related_entity,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	state  State
	muted  bool
	onHold bool
}

// New creates a session in Ringing.
func New(workspaceID, agentID string, dir Direction, counterpart string, now time.Time) *CallSession {
	return &CallSession{
		ID:                uuid.NewString(),
		WorkspaceID:       workspaceID,
		AgentID:           agentID,
		Direction:         dir,
		CounterpartNumber: counterpart,
		CreatedAt:         now,
		state:             StateRinging,
	}
}

func (cs *CallSession) State() State { return cs.state }
func (cs *CallSession) Muted() bool  { return cs.muted }
func (cs *CallSession) OnHold() bool { return cs.onHold }

// Transition moves the session to next, stamping StartedAt on the first entry
// into Active and EndedAt on entry into Terminated. Both are set exactly once.
func (cs *CallSession) Transition(next State, now time.Time) error {
	if !cs.state.CanTransitionTo(next) {
		return &InvalidStateError{Op: "transition to " + next.String(), State: cs.state}
	}
	cs.state = next

	switch next {
	case StateActive:
		if cs.StartedAt == nil {
			t := now
			cs.StartedAt = &t
		}
	case StateTerminated:
		if cs.EndedAt == nil {
			t := now
			cs.EndedAt = &t
		}
		cs.muted = false
		cs.onHold = false
	}
	return nil
}

// SetMuted toggles the mute flag. Only meaningful on an established call;
// rejected, not silently ignored, elsewhere.
func (cs *CallSession) SetMuted(muted bool) error {
	if cs.state != StateActive && cs.state != StateOnHold {
		return &InvalidStateError{Op: "mute", State: cs.state}
	}
	cs.muted = muted
	return nil
}

// SetHold moves the session between Active and OnHold. Repeating the current
// hold state is a no-op.
func (cs *CallSession) SetHold(hold bool, now time.Time) error {
	if cs.state != StateActive && cs.state != StateOnHold {
		return &InvalidStateError{Op: "hold", State: cs.state}
	}
	next := StateActive
	if hold {
		next = StateOnHold
	}
	if cs.state != next {
		if err := cs.Transition(next, now); err != nil {
			return err
		}
	}
	cs.onHold = hold
	return nil
}

// CanSendDigit reports whether DTMF is allowed right now. Digits are only
// valid on an active (not held, not ringing) call.
func (cs *CallSession) CanSendDigit() error {
	if cs.state != StateActive {
		return &InvalidStateError{Op: "send digit", State: cs.state}
	}
	return nil
}

// Duration returns the talk time. Clamped at zero: clock skew between the
// establishing and terminating observers must never yield a negative value.
func (cs *CallSession) Duration() time.Duration {
	if cs.StartedAt == nil || cs.EndedAt == nil {
		return 0
	}
	d := cs.EndedAt.Sub(*cs.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}
