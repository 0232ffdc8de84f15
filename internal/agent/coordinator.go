package agent

import (
	"context"
	"log/slog"
	"time"

	"crm-softphone/internal/leads"
	"crm-softphone/internal/records"
	"crm-softphone/internal/session"
	"crm-softphone/internal/signaling"
	"crm-softphone/internal/wrapup"
)

// Config tunes one agent's coordinator.
type Config struct {
	// MandatoryWrapUp gates the agent in InWrapUp after every call until a
	// disposition is recorded. When false the gate is skipped entirely and
	// disposition/notes become optional follow-up edits.
	MandatoryWrapUp bool

	// LivenessTimeout bounds how long an established call may go without any
	// adapter event before the coordinator forces a synthetic termination.
	// Protects against transports that die silently.
	LivenessTimeout time.Duration

	// CancelTimeout bounds how long a Terminating session waits for transport
	// confirmation before being forced to Terminated.
	CancelTimeout time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.LivenessTimeout <= 0 {
		out.LivenessTimeout = 4 * time.Hour
	}
	if out.CancelTimeout <= 0 {
		out.CancelTimeout = 10 * time.Second
	}
	return out
}

// Coordinator owns one agent's telephony state: registration, availability,
// and the at-most-one active call session.
//
// Concurrency model: all command and event handling is serialized through a
// single goroutine. Public methods post a closure into the mailbox and wait
// for its reply; adapter events and timer fires enter the same mailbox. No
// two mutations of coordinator state ever interleave, which is what upholds
// the single-active-session invariant under racing dials and invites.
type Coordinator struct {
	workspaceID string
	agentID     string

	cfg       Config
	adapter   signaling.Adapter
	sink      records.Sink
	writer    *records.Writer
	directory leads.Directory
	enforcer  *wrapup.Enforcer
	notifier  Notifier
	caps      CapGuard
	log       *slog.Logger
	clock     func() time.Time

	mailbox chan func()
	done    chan struct{}

	// Loop-owned state. Touched only from run().
	reg       signaling.RegistrationState
	avail     Availability
	prevAvail Availability
	sess      *session.CallSession
	wrapCtx   *wrapup.CallContext
	capHeld   bool

	livenessTimer *time.Timer
	cancelTimer   *time.Timer
}

// Deps bundles the coordinator's collaborators.
type Deps struct {
	Adapter   signaling.Adapter
	Sink      records.Sink
	Writer    *records.Writer
	Directory leads.Directory
	Enforcer  *wrapup.Enforcer
	Notifier  Notifier
	Caps      CapGuard
	Logger    *slog.Logger
	Clock     func() time.Time
}

// New starts a coordinator for one agent. It immediately checks the record
// sink for calls left unwrapped by a crash or reload; if any exist the agent
// comes up in InWrapUp and must wrap the orphaned call before taking new ones.
func New(workspaceID, agentID string, cfg Config, deps Deps) *Coordinator {
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	c := &Coordinator{
		workspaceID: workspaceID,
		agentID:     agentID,
		cfg:         cfg.withDefaults(),
		adapter:     deps.Adapter,
		sink:        deps.Sink,
		writer:      deps.Writer,
		directory:   deps.Directory,
		enforcer:    deps.Enforcer,
		notifier:    deps.Notifier,
		caps:        deps.Caps,
		log: deps.Logger.With(
			"workspace_id", workspaceID, "agent_id", agentID),
		clock:   deps.Clock,
		mailbox: make(chan func(), 128),
		done:    make(chan struct{}),

		reg:       signaling.RegistrationUnregistered,
		avail:     AvailabilityOffline,
		prevAvail: AvailabilityAvailable,
	}

	c.recoverUnwrapped()

	go c.run()
	go c.pumpEvents()
	return c
}

// Close stops the event loop. The adapter is not touched; callers unregister
// first if they want a clean sign-off.
func (c *Coordinator) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *Coordinator) run() {
	for {
		select {
		case <-c.done:
			return
		case fn := <-c.mailbox:
			fn()
		}
	}
}

// pumpEvents feeds adapter events into the serialized mailbox.
func (c *Coordinator) pumpEvents() {
	for ev := range c.adapter.Events() {
		e := ev
		c.post(func() { c.handleEvent(e) })
	}
}

// post enqueues work for the loop. Returns false if the coordinator is
// closed.
func (c *Coordinator) post(fn func()) bool {
	select {
	case <-c.done:
		return false
	case c.mailbox <- fn:
		return true
	}
}

// call posts fn and waits for completion, propagating its error.
func (c *Coordinator) call(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	if !c.post(func() { reply <- fn() }) {
		return ErrCoordinatorClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrCoordinatorClosed
	case err := <-reply:
		return err
	}
}

/* ===================== public command surface ===================== */

// Register validates credentials and submits a transport registration.
// Malformed credentials fail fast; network and auth failures surface later as
// a RegistrationFailed event with a reason, so the agent can retry.
func (c *Coordinator) Register(ctx context.Context, creds signaling.Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	return c.call(ctx, func() error {
		c.setRegistration(signaling.RegistrationRegistering, "")
		if err := c.adapter.Register(ctx, creds); err != nil {
			c.setRegistration(signaling.RegistrationFailed, err.Error())
		}
		// Adapter acknowledgment arrives as a RegistrationChanged event.
		return nil
	})
}

// Unregister signs the line off. If a call is active it is hung up first,
// best-effort. Local state always ends Unregistered even when the transport
// unregister fails; the agent is going offline either way.
func (c *Coordinator) Unregister(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.sess != nil && !c.sess.State().IsTerminal() {
			if err := c.adapter.Hangup(ctx, c.sess.ID); err != nil {
				c.log.Warn("hangup before unregister failed", "err", err)
			}
			c.terminateLocally("unregister", c.clock().UTC())
		}
		if err := c.adapter.Unregister(ctx); err != nil {
			c.log.Warn("transport unregister failed", "err", err)
		}
		c.setRegistration(signaling.RegistrationUnregistered, "")
		return nil
	})
}

// Dial starts an outbound call. Returns the new session id.
func (c *Coordinator) Dial(ctx context.Context, number string) (string, error) {
	var sessionID string
	err := c.call(ctx, func() error {
		if c.hasActiveOrPendingCall() {
			return ErrAlreadyOnCall
		}
		if c.reg != signaling.RegistrationRegistered {
			return ErrNotRegistered
		}
		if !c.acquireCap(ctx) {
			return ErrWorkspaceCapReached
		}
		now := c.clock().UTC()
		s := session.New(c.workspaceID, c.agentID, session.DirectionOutbound, number, now)
		c.attachLead(ctx, s, number)
		c.sess = s
		c.snapshotAvailability()
		sessionID = s.ID

		c.createRecord(s, now)
		if err := c.adapter.Dial(ctx, s.ID, number); err != nil {
			// Could not even submit the command; tear the session down.
			c.terminateLocally("dial submit failed: "+err.Error(), now)
			return err
		}
		c.publishCallState(EventCallStateChanged)
		return nil
	})
	return sessionID, err
}

// Accept answers the ringing inbound call.
func (c *Coordinator) Accept(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.sess == nil {
			return ErrNoActiveCall
		}
		if c.sess.Direction != session.DirectionInbound || c.sess.State() != session.StateRinging {
			return &session.InvalidStateError{Op: "accept", State: c.sess.State()}
		}
		if err := c.sess.Transition(session.StateEstablishing, c.clock().UTC()); err != nil {
			return err
		}
		if err := c.adapter.Accept(ctx, c.sess.ID); err != nil {
			c.terminateLocally("accept submit failed: "+err.Error(), c.clock().UTC())
			return err
		}
		c.publishCallState(EventCallStateChanged)
		return nil
	})
}

// Reject declines the ringing inbound call.
func (c *Coordinator) Reject(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.sess == nil {
			return ErrNoActiveCall
		}
		if c.sess.Direction != session.DirectionInbound || c.sess.State() != session.StateRinging {
			return &session.InvalidStateError{Op: "reject", State: c.sess.State()}
		}
		if err := c.adapter.Reject(ctx, c.sess.ID); err != nil {
			c.log.Warn("reject command failed", "err", err)
		}
		c.terminateLocally("rejected", c.clock().UTC())
		return nil
	})
}

// Hangup ends the current call. Idempotent: calling it again while the
// session is already terminating (or gone) is a no-op, not an error.
func (c *Coordinator) Hangup(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.sess == nil || c.sess.State().IsTerminal() {
			return nil
		}
		if c.sess.State() == session.StateTerminating {
			return nil
		}
		now := c.clock().UTC()
		if err := c.adapter.Hangup(ctx, c.sess.ID); err != nil {
			c.log.Warn("hangup command failed", "err", err)
		}
		// Terminating immediately, whether or not the transport confirms.
		// Covers cancel-while-ringing too; the timer below bounds the wait
		// for the transport's SessionTerminated.
		if err := c.sess.Transition(session.StateTerminating, now); err != nil {
			c.log.Warn("hangup transition rejected", "err", err)
			return nil
		}
		c.publishCallState(EventCallStateChanged)
		c.armCancelTimer(c.sess.ID)
		return nil
	})
}

// Mute toggles microphone mute on the established call.
func (c *Coordinator) Mute(ctx context.Context, muted bool) error {
	return c.call(ctx, func() error {
		if c.sess == nil {
			return ErrNoActiveCall
		}
		if err := c.sess.SetMuted(muted); err != nil {
			return err
		}
		if err := c.adapter.Mute(ctx, c.sess.ID, muted); err != nil {
			c.log.Warn("mute command failed", "err", err)
		}
		c.publishCallState(EventCallStateChanged)
		return nil
	})
}

// Hold places the established call on or off hold.
func (c *Coordinator) Hold(ctx context.Context, hold bool) error {
	return c.call(ctx, func() error {
		if c.sess == nil {
			return ErrNoActiveCall
		}
		if err := c.sess.SetHold(hold, c.clock().UTC()); err != nil {
			return err
		}
		if err := c.adapter.Hold(ctx, c.sess.ID, hold); err != nil {
			c.log.Warn("hold command failed", "err", err)
		}
		c.publishCallState(EventCallStateChanged)
		return nil
	})
}

// SendDigit sends a DTMF digit on the active call.
func (c *Coordinator) SendDigit(ctx context.Context, digit rune) error {
	return c.call(ctx, func() error {
		if c.sess == nil {
			return ErrNoActiveCall
		}
		if err := c.sess.CanSendDigit(); err != nil {
			return err
		}
		return c.adapter.SendDigit(ctx, c.sess.ID, digit)
	})
}

// SubmitWrapUp completes the pending wrap-up. Validation failures leave the
// gate open; the agent stays in InWrapUp until a valid submission succeeds.
func (c *Coordinator) SubmitWrapUp(ctx context.Context, sub wrapup.Submission) error {
	return c.call(ctx, func() error {
		if c.wrapCtx == nil {
			return ErrNoWrapUpPending
		}
		if err := c.enforcer.Submit(ctx, *c.wrapCtx, sub); err != nil {
			return err
		}
		sessionID := c.wrapCtx.SessionID
		c.wrapCtx = nil
		c.sess = nil
		c.writer.Forget(sessionID)
		c.avail = c.restoredAvailability()
		c.notifier.Publish(snapshotEvent(EventWrapUpCompleted, c.workspaceID, c.agentID, c.clock().UTC(), c.avail, nil))
		return nil
	})
}

// SetAvailability changes console presence. Rejected while a call is active
// or a wrap-up is pending.
func (c *Coordinator) SetAvailability(ctx context.Context, av Availability) error {
	return c.call(ctx, func() error {
		if av == AvailabilityInWrapUp {
			return ErrWrapUpPending
		}
		if c.sess != nil && !c.sess.State().IsTerminal() {
			return ErrAlreadyOnCall
		}
		if c.wrapCtx != nil {
			return ErrWrapUpPending
		}
		c.avail = av
		c.notifier.Publish(snapshotEvent(EventCallStateChanged, c.workspaceID, c.agentID, c.clock().UTC(), c.avail, nil))
		return nil
	})
}

// State returns a point-in-time snapshot for the UI.
func (c *Coordinator) State(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.call(ctx, func() error {
		snap = Snapshot{
			WorkspaceID:  c.workspaceID,
			AgentID:      c.agentID,
			Registration: c.reg,
			Availability: c.avail,
		}
		if c.sess != nil {
			s := *c.sess
			snap.Session = &s
		}
		if c.wrapCtx != nil {
			snap.WrapUpSessionID = c.wrapCtx.SessionID
		}
		return nil
	})
	return snap, err
}

// Snapshot is a copy of the coordinator's observable state.
type Snapshot struct {
	WorkspaceID     string
	AgentID         string
	Registration    signaling.RegistrationState
	Availability    Availability
	Session         *session.CallSession
	WrapUpSessionID string
}

/* ===================== event handling (loop-owned) ===================== */

func (c *Coordinator) handleEvent(ev signaling.Event) {
	switch ev.Type {
	case signaling.EventRegistrationChanged:
		c.setRegistration(ev.Reg, ev.Reason)
		return
	case signaling.EventIncomingInvite:
		c.handleIncomingInvite(ev)
		return
	}

	// Session-scoped events: discard stale deliveries. A late event for a
	// session that is no longer current must never corrupt the next call.
	if c.sess == nil || ev.SessionID != c.sess.ID {
		c.log.Warn("discarding stale signaling event",
			"event", string(ev.Type), "session_id", ev.SessionID)
		return
	}

	now := c.eventTime(ev)
	switch ev.Type {
	case signaling.EventSessionEstablished:
		if c.sess.State().IsTerminal() {
			c.log.Warn("established event after termination ignored", "session_id", ev.SessionID)
			return
		}
		if c.sess.State() == session.StateRinging {
			if err := c.sess.Transition(session.StateEstablishing, now); err != nil {
				c.log.Warn("establish transition rejected", "err", err)
				return
			}
		}
		if err := c.sess.Transition(session.StateActive, now); err != nil {
			c.log.Warn("active transition rejected", "err", err)
			return
		}
		c.armLivenessTimer(c.sess.ID)
		c.publishCallState(EventCallStateChanged)

	case signaling.EventSessionTerminated:
		reason := ev.Reason
		if reason == "" {
			reason = "remote bye"
		}
		c.terminateLocally(reason, now)

	case signaling.EventMediaFailure:
		reason := ev.Reason
		if reason == "" {
			reason = "media failure"
		}
		c.terminateLocally(reason, now)
	}
}

func (c *Coordinator) handleIncomingInvite(ev signaling.Event) {
	// Busy: exactly one concurrent call per agent, no call waiting. The
	// rejecting agent sees nothing; this is normal flow.
	if c.hasActiveOrPendingCall() {
		if err := c.adapter.Reject(context.Background(), ev.SessionID); err != nil {
			c.log.Warn("busy reject failed", "session_id", ev.SessionID, "err", err)
		}
		c.log.Debug("auto-rejected invite while busy", "session_id", ev.SessionID, "from", ev.From)
		return
	}
	if !c.acquireCap(context.Background()) {
		if err := c.adapter.Reject(context.Background(), ev.SessionID); err != nil {
			c.log.Warn("cap reject failed", "session_id", ev.SessionID, "err", err)
		}
		c.log.Info("rejected invite, workspace call cap reached", "session_id", ev.SessionID)
		return
	}

	now := c.eventTime(ev)
	s := session.New(c.workspaceID, c.agentID, session.DirectionInbound, ev.From, now)
	// Correlate with the transport's session id so later events match.
	if ev.SessionID != "" {
		s.ID = ev.SessionID
	}
	c.attachLead(context.Background(), s, ev.From)
	c.sess = s
	c.snapshotAvailability()
	c.createRecord(s, now)
	c.publishCallState(EventIncomingCallOffered)
}

/* ===================== loop-owned helpers ===================== */

// acquireCap reserves a workspace call slot. Guard failures err open: a
// broken limiter must not take calling down with it.
func (c *Coordinator) acquireCap(ctx context.Context) bool {
	if c.caps == nil {
		return true
	}
	ok, err := c.caps.Acquire(ctx, c.workspaceID)
	if err != nil {
		c.log.Warn("call cap check failed, allowing call", "err", err)
		return true
	}
	if ok {
		c.capHeld = true
	}
	return ok
}

func (c *Coordinator) releaseCap() {
	if c.caps == nil || !c.capHeld {
		return
	}
	c.capHeld = false
	c.caps.Release(context.Background(), c.workspaceID)
}

func (c *Coordinator) hasActiveOrPendingCall() bool {
	if c.sess != nil && !c.sess.State().IsTerminal() {
		return true
	}
	return c.wrapCtx != nil
}

func (c *Coordinator) snapshotAvailability() {
	if c.avail == AvailabilityAvailable || c.avail == AvailabilityAway {
		c.prevAvail = c.avail
	}
}

// restoredAvailability is the post-wrap-up presence: the pre-call value,
// never silently Offline.
func (c *Coordinator) restoredAvailability() Availability {
	if c.prevAvail == AvailabilityAvailable || c.prevAvail == AvailabilityAway {
		return c.prevAvail
	}
	return AvailabilityAvailable
}

func (c *Coordinator) setRegistration(st signaling.RegistrationState, reason string) {
	if c.reg == st {
		return
	}
	c.reg = st
	ev := snapshotEvent(EventRegistrationChanged, c.workspaceID, c.agentID, c.clock().UTC(), c.avail, nil)
	ev.Registration = st
	ev.RegReason = reason
	c.notifier.Publish(ev)
}

// leadLookupTimeout bounds the directory query done on the event loop. A hung
// leads database must not wedge the agent's command handling.
const leadLookupTimeout = 2 * time.Second

func (c *Coordinator) attachLead(ctx context.Context, s *session.CallSession, number string) {
	if c.directory == nil || number == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, leadLookupTimeout)
	defer cancel()
	lead, err := c.directory.FindByPhone(ctx, c.workspaceID, number)
	if err != nil {
		// No match is normal flow; the call proceeds unlinked.
		return
	}
	s.Related = &session.RelatedEntity{Type: "lead", ID: lead.ID}
}

func (c *Coordinator) createRecord(s *session.CallSession, now time.Time) {
	rec := records.CallRecord{
		WorkspaceID:       c.workspaceID,
		AgentID:           c.agentID,
		SessionID:         s.ID,
		Direction:         string(s.Direction),
		CounterpartNumber: s.CounterpartNumber,
		StartedAt:         now,
	}
	if s.Related != nil {
		rec.RelatedType = s.Related.Type
		rec.RelatedID = s.Related.ID
	}
	c.writer.EnqueueCreate(rec)
}

// terminateLocally drives the session to Terminated, persists end-of-call
// data, and opens (or skips) the wrap-up gate.
func (c *Coordinator) terminateLocally(reason string, now time.Time) {
	if c.sess == nil || c.sess.State().IsTerminal() {
		return
	}
	if err := c.sess.Transition(session.StateTerminated, now); err != nil {
		c.log.Warn("forced termination rejected", "err", err)
		return
	}
	c.stopTimers()
	c.releaseCap()

	dur := int(c.sess.Duration().Seconds())
	ended := now
	c.writer.EnqueueUpdate(c.workspaceID, c.sess.ID, records.Update{
		EndedAt:         &ended,
		DurationSeconds: &dur,
	})

	ev := snapshotEvent(EventCallEnded, c.workspaceID, c.agentID, now, c.avail, c.sess)
	ev.DurationSeconds = dur
	ev.EndReason = reason
	c.notifier.Publish(ev)

	if !c.cfg.MandatoryWrapUp {
		c.sess = nil
		c.avail = c.restoredAvailability()
		return
	}

	wc := wrapup.CallContext{
		WorkspaceID: c.workspaceID,
		AgentID:     c.agentID,
		SessionID:   c.sess.ID,
	}
	if c.sess.Related != nil && c.sess.Related.Type == "lead" {
		wc.LeadID = c.sess.Related.ID
	}
	c.wrapCtx = &wc
	c.avail = AvailabilityInWrapUp
	c.notifier.Publish(snapshotEvent(EventWrapUpRequired, c.workspaceID, c.agentID, now, c.avail, c.sess))
}

func (c *Coordinator) publishCallState(t EventType) {
	c.notifier.Publish(snapshotEvent(t, c.workspaceID, c.agentID, c.clock().UTC(), c.avail, c.sess))
}

func (c *Coordinator) eventTime(ev signaling.Event) time.Time {
	if !ev.At.IsZero() {
		return ev.At.UTC()
	}
	return c.clock().UTC()
}

/* ===================== timers ===================== */

func (c *Coordinator) armLivenessTimer(sessionID string) {
	if c.livenessTimer != nil {
		c.livenessTimer.Stop()
	}
	c.livenessTimer = time.AfterFunc(c.cfg.LivenessTimeout, func() {
		c.post(func() {
			if c.sess == nil || c.sess.ID != sessionID || c.sess.State().IsTerminal() {
				return
			}
			c.log.Warn("liveness timeout, forcing termination", "session_id", sessionID)
			c.terminateLocally("liveness timeout", c.clock().UTC())
		})
	})
}

func (c *Coordinator) armCancelTimer(sessionID string) {
	if c.cancelTimer != nil {
		c.cancelTimer.Stop()
	}
	c.cancelTimer = time.AfterFunc(c.cfg.CancelTimeout, func() {
		c.post(func() {
			if c.sess == nil || c.sess.ID != sessionID || c.sess.State().IsTerminal() {
				return
			}
			c.log.Warn("termination unconfirmed, forcing", "session_id", sessionID)
			c.terminateLocally("termination timeout", c.clock().UTC())
		})
	})
}

func (c *Coordinator) stopTimers() {
	if c.livenessTimer != nil {
		c.livenessTimer.Stop()
		c.livenessTimer = nil
	}
	if c.cancelTimer != nil {
		c.cancelTimer.Stop()
		c.cancelTimer = nil
	}
}

/* ===================== startup recovery ===================== */

// recoverUnwrapped surfaces calls left unwrapped by a crash or reload. Runs
// before the loop starts, so plain field writes are safe.
func (c *Coordinator) recoverUnwrapped() {
	if !c.cfg.MandatoryWrapUp || c.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	open, err := c.sink.FindActiveOrUnwrapped(ctx, c.workspaceID, c.agentID)
	if err != nil {
		c.log.Warn("unwrapped-call recovery query failed", "err", err)
		return
	}
	if len(open) == 0 {
		return
	}
	rec := open[0]
	if len(open) > 1 {
		c.log.Warn("multiple unwrapped calls found, gating on newest", "count", len(open))
	}
	c.writer.Remember(rec.SessionID, rec.ID)
	wc := wrapup.CallContext{
		WorkspaceID: c.workspaceID,
		AgentID:     c.agentID,
		SessionID:   rec.SessionID,
	}
	if rec.RelatedType == "lead" {
		wc.LeadID = rec.RelatedID
	}
	c.wrapCtx = &wc
	c.avail = AvailabilityInWrapUp
	c.log.Info("recovered unwrapped call, wrap-up required", "record_id", rec.ID, "session_id", rec.SessionID)
}
