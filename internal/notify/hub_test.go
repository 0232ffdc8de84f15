package notify

import (
	"log/slog"
	"testing"
	"time"

	"crm-softphone/internal/agent"
)

func TestHub_DeliversToMatchingSubscriberOnly(t *testing.T) {
	h := NewHub(slog.Default())
	a := h.Subscribe("w1", "agent-a")
	defer a.Close()
	b := h.Subscribe("w1", "agent-b")
	defer b.Close()

	h.Publish(agent.Event{Type: agent.EventCallEnded, WorkspaceID: "w1", AgentID: "agent-a"})

	select {
	case ev := <-a.Events():
		if ev.Type != agent.EventCallEnded {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("subscriber a got nothing")
	}
	select {
	case ev := <-b.Events():
		t.Fatalf("subscriber b got another agent's event: %+v", ev)
	default:
	}
}

func TestHub_MultipleSubscribersPerAgent(t *testing.T) {
	h := NewHub(slog.Default())
	tab1 := h.Subscribe("w1", "agent-a")
	defer tab1.Close()
	tab2 := h.Subscribe("w1", "agent-a")
	defer tab2.Close()

	h.Publish(agent.Event{Type: agent.EventWrapUpRequired, WorkspaceID: "w1", AgentID: "agent-a"})

	for _, sub := range []*Subscription{tab1, tab2} {
		select {
		case <-sub.Events():
		case <-time.After(time.Second):
			t.Fatalf("subscriber missed the event")
		}
	}
}

func TestHub_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := NewHub(slog.Default())
	s := h.Subscribe("w1", "agent-a")
	defer s.Close()

	// Overfill the buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriptionBuffer*2; i++ {
			h.Publish(agent.Event{Type: agent.EventCallStateChanged, WorkspaceID: "w1", AgentID: "agent-a"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on slow subscriber")
	}
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	h := NewHub(slog.Default())
	s := h.Subscribe("w1", "agent-a")
	s.Close()
	s.Close()

	// Publishing after close must not panic on the closed channel.
	h.Publish(agent.Event{Type: agent.EventCallEnded, WorkspaceID: "w1", AgentID: "agent-a"})
}
