package session

import (
	"errors"
	"testing"
	"time"
)

func TestSession_NormalOutboundLifecycle(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := New("w1", "a1", DirectionOutbound, "+15551234567", now)

	if s.State() != StateRinging {
		t.Fatalf("expected ringing, got %s", s.State())
	}
	if err := s.Transition(StateEstablishing, now); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := s.Transition(StateActive, now.Add(2*time.Second)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.StartedAt == nil || !s.StartedAt.Equal(now.Add(2*time.Second)) {
		t.Fatalf("started_at not stamped on entry into active: %v", s.StartedAt)
	}
	if err := s.Transition(StateTerminating, now.Add(30*time.Second)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := s.Transition(StateTerminated, now.Add(31*time.Second)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.EndedAt == nil || !s.EndedAt.Equal(now.Add(31*time.Second)) {
		t.Fatalf("ended_at not stamped on termination: %v", s.EndedAt)
	}
	if got := s.Duration(); got != 29*time.Second {
		t.Fatalf("expected duration 29s, got %s", got)
	}
}

func TestSession_TimestampsSetExactlyOnce(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := New("w1", "a1", DirectionInbound, "+15550001111", now)

	mustTransition(t, s, StateEstablishing, now)
	mustTransition(t, s, StateActive, now.Add(time.Second))
	first := *s.StartedAt

	// Hold and resume must not re-stamp started_at.
	if err := s.SetHold(true, now.Add(5*time.Second)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := s.SetHold(false, now.Add(9*time.Second)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !s.StartedAt.Equal(first) {
		t.Fatalf("started_at re-stamped: %v vs %v", s.StartedAt, first)
	}
}

func TestSession_DurationClampedOnClockSkew(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := New("w1", "a1", DirectionOutbound, "+15551234567", now)
	mustTransition(t, s, StateEstablishing, now)
	mustTransition(t, s, StateActive, now)
	// Terminated with a clock earlier than started_at.
	mustTransition(t, s, StateTerminated, now.Add(-10*time.Second))

	if got := s.Duration(); got != 0 {
		t.Fatalf("expected clamped duration 0, got %s", got)
	}
}

func TestSession_AbnormalFailureSkipsTerminating(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := New("w1", "a1", DirectionInbound, "+15550001111", now)
	mustTransition(t, s, StateEstablishing, now)
	mustTransition(t, s, StateActive, now)

	// Media failure: Active -> Terminated directly.
	if err := s.Transition(StateTerminated, now.Add(time.Minute)); err != nil {
		t.Fatalf("expected direct termination on failure, got %v", err)
	}
	if s.EndedAt == nil {
		t.Fatalf("ended_at not stamped on abnormal termination")
	}
}

func TestSession_TerminatedIsTerminal(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := New("w1", "a1", DirectionOutbound, "+15551234567", now)
	mustTransition(t, s, StateTerminated, now)

	for _, next := range []State{StateRinging, StateEstablishing, StateActive, StateOnHold, StateTerminating, StateTerminated} {
		if err := s.Transition(next, now); err == nil {
			t.Fatalf("expected rejection of transition out of terminated into %s", next)
		}
	}
}

func TestSession_MuteHoldRejectedOutsideEstablishedCall(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := New("w1", "a1", DirectionOutbound, "+15551234567", now)

	var ise *InvalidStateError
	if err := s.SetMuted(true); !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError for mute while ringing, got %v", err)
	}
	if err := s.SetHold(true, now); !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError for hold while ringing, got %v", err)
	}
	if err := s.CanSendDigit(); !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError for digit while ringing, got %v", err)
	}

	mustTransition(t, s, StateEstablishing, now)
	mustTransition(t, s, StateActive, now)

	if err := s.SetMuted(true); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !s.Muted() {
		t.Fatalf("expected muted")
	}
	if err := s.CanSendDigit(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// DTMF is rejected while on hold, mute is allowed.
	if err := s.SetHold(true, now); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := s.CanSendDigit(); !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError for digit on hold, got %v", err)
	}

	// Flags reset on termination.
	mustTransition(t, s, StateTerminated, now)
	if s.Muted() || s.OnHold() {
		t.Fatalf("expected media flags cleared after termination")
	}
}

func TestSession_RejectWhileRinging(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := New("w1", "a1", DirectionInbound, "+15550001111", now)

	if err := s.Transition(StateTerminated, now); err != nil {
		t.Fatalf("reject while ringing should terminate: %v", err)
	}
	if s.StartedAt != nil {
		t.Fatalf("rejected call must not have started_at")
	}
	if got := s.Duration(); got != 0 {
		t.Fatalf("expected 0 duration for rejected call, got %s", got)
	}
}

func mustTransition(t *testing.T, s *CallSession, next State, now time.Time) {
	t.Helper()
	if err := s.Transition(next, now); err != nil {
		t.Fatalf("transition to %s failed: %v", next, err)
	}
}
