package signaling

import (
	"context"
	"time"
)

// Adapter is the provider-agnostic boundary to the call signaling transport
// (SIP over WebSocket, a CPaaS SDK, an in-process loopback for tests).
//
// Rules:
// - No transport SDK calls outside signaling adapters.
// - Commands are fire-and-forget: an error return means the command could not
//   be submitted; outcomes arrive asynchronously on Events().
// - Delivery contract the coordinator relies on: every Dial/Accept eventually
//   yields exactly one of EventSessionEstablished or EventSessionTerminated,
//   and every established session eventually yields exactly one
//   EventSessionTerminated. Adapters that cannot uphold this (transport died
//   silently) are backstopped by the coordinator's liveness timeout.
type Adapter interface {
	Name() string

	Register(ctx context.Context, creds Credentials) error
	Unregister(ctx context.Context) error

	Dial(ctx context.Context, sessionID, number string) error
	Accept(ctx context.Context, sessionID string) error
	Reject(ctx context.Context, sessionID string) error
	Hangup(ctx context.Context, sessionID string) error

	Mute(ctx context.Context, sessionID string, muted bool) error
	Hold(ctx context.Context, sessionID string, hold bool) error
	SendDigit(ctx context.Context, sessionID string, digit rune) error

	// Events delivers normalized transport events in emission order.
	// The channel is closed when the adapter shuts down.
	Events() <-chan Event
}

// Credentials identify the agent line at the signaling server.
type Credentials struct {
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"-"`
}

// Validate fails fast on malformed credentials so registration failures of
// the "you never filled the form in" kind never reach the transport.
func (c Credentials) Validate() error {
	if c.URI == "" {
		return ErrMissingURI
	}
	if c.Username == "" {
		return ErrMissingUsername
	}
	return nil
}

// EventType enumerates the normalized event vocabulary.
type EventType string

const (
	EventRegistrationChanged EventType = "registration_changed"
	EventIncomingInvite      EventType = "incoming_invite"
	EventSessionEstablished  EventType = "session_established"
	EventSessionTerminated   EventType = "session_terminated"
	EventMediaFailure        EventType = "media_failure"
)

// RegistrationState mirrors the transport's registration lifecycle.
type RegistrationState string

const (
	RegistrationUnregistered RegistrationState = "unregistered"
	RegistrationRegistering  RegistrationState = "registering"
	RegistrationRegistered   RegistrationState = "registered"
	RegistrationFailed       RegistrationState = "failed"
)

// Event is one normalized signaling event.
//
// SessionID is set for all session-scoped events and is the correlation key
// the coordinator uses to discard stale deliveries. Registration events leave
// it empty.
type Event struct {
	Type      EventType         `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	From      string            `json:"from,omitempty"`
	Reg       RegistrationState `json:"registration_state,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	At        time.Time         `json:"at"`
}
