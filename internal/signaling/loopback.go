package signaling

import (
	"context"
	"sync"
	"time"
)

// Loopback is an in-process adapter for tests and local development.
//
// It accepts every command, records it, and lets the driver (a test, or the
// dev console's fake far end) inject events with Emit. Registration is
// answered automatically: Register emits registering then registered,
// Unregister emits unregistered.
//
// Loopback makes no attempt to emulate a real signaling server beyond that;
// session progress events are always injected by the driver.
type Loopback struct {
	mu       sync.Mutex
	closed   bool
	events   chan Event
	commands []Command
	clock    func() time.Time

	// AutoRegister controls whether Register/Unregister answer themselves.
	AutoRegister bool
	// RejectRegister, when non-empty, makes Register fail with this reason.
	RejectRegister string
}

// Command is a recorded adapter command, for test assertions.
type Command struct {
	Op        string
	SessionID string
	Number    string
	Flag      bool
	Digit     rune
}

func NewLoopback() *Loopback {
	return &Loopback{
		events:       make(chan Event, 64),
		clock:        time.Now,
		AutoRegister: true,
	}
}

func (l *Loopback) Name() string { return "loopback" }

// Emit injects an event as if the transport produced it.
func (l *Loopback) Emit(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if ev.At.IsZero() {
		ev.At = l.clock()
	}
	l.events <- ev
}

// Commands returns a copy of every command submitted so far.
func (l *Loopback) Commands() []Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Command, len(l.commands))
	copy(out, l.commands)
	return out
}

// Close shuts the adapter down and closes the event channel.
func (l *Loopback) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.events)
}

func (l *Loopback) record(cmd Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.commands = append(l.commands, cmd)
	return nil
}

func (l *Loopback) Register(ctx context.Context, creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	if err := l.record(Command{Op: "register"}); err != nil {
		return err
	}
	if l.AutoRegister {
		l.Emit(Event{Type: EventRegistrationChanged, Reg: RegistrationRegistering})
		if l.RejectRegister != "" {
			l.Emit(Event{Type: EventRegistrationChanged, Reg: RegistrationFailed, Reason: l.RejectRegister})
		} else {
			l.Emit(Event{Type: EventRegistrationChanged, Reg: RegistrationRegistered})
		}
	}
	return nil
}

func (l *Loopback) Unregister(ctx context.Context) error {
	if err := l.record(Command{Op: "unregister"}); err != nil {
		return err
	}
	if l.AutoRegister {
		l.Emit(Event{Type: EventRegistrationChanged, Reg: RegistrationUnregistered})
	}
	return nil
}

func (l *Loopback) Dial(ctx context.Context, sessionID, number string) error {
	return l.record(Command{Op: "dial", SessionID: sessionID, Number: number})
}

func (l *Loopback) Accept(ctx context.Context, sessionID string) error {
	return l.record(Command{Op: "accept", SessionID: sessionID})
}

func (l *Loopback) Reject(ctx context.Context, sessionID string) error {
	return l.record(Command{Op: "reject", SessionID: sessionID})
}

func (l *Loopback) Hangup(ctx context.Context, sessionID string) error {
	return l.record(Command{Op: "hangup", SessionID: sessionID})
}

func (l *Loopback) Mute(ctx context.Context, sessionID string, muted bool) error {
	return l.record(Command{Op: "mute", SessionID: sessionID, Flag: muted})
}

func (l *Loopback) Hold(ctx context.Context, sessionID string, hold bool) error {
	return l.record(Command{Op: "hold", SessionID: sessionID, Flag: hold})
}

func (l *Loopback) SendDigit(ctx context.Context, sessionID string, digit rune) error {
	return l.record(Command{Op: "send_digit", SessionID: sessionID, Digit: digit})
}

func (l *Loopback) Events() <-chan Event { return l.events }
