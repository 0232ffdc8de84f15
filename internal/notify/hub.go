// Package notify delivers coordinator events to connected softphone UIs.
//
// The Hub handles in-process delivery to websocket subscribers; the Broker
// fans events out through Redis so every API instance sees every event no
// matter which instance hosts the agent's coordinator.
package notify

import (
	"log/slog"
	"sync"

	"crm-softphone/internal/agent"
)

const subscriptionBuffer = 32

// Hub routes events to local subscribers keyed by workspace+agent.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
	log  *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{subs: map[string]map[*Subscription]struct{}{}, log: log}
}

// Subscription is one consumer's event stream.
type Subscription struct {
	hub *Hub
	key string
	ch  chan agent.Event

	once sync.Once
}

func (s *Subscription) Events() <-chan agent.Event { return s.ch }

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if set, ok := s.hub.subs[s.key]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.hub.subs, s.key)
			}
		}
		close(s.ch)
	})
}

func subKey(workspaceID, agentID string) string { return workspaceID + "|" + agentID }

// Subscribe attaches a consumer for one agent's events. Multiple subscribers
// per agent are allowed; an agent may have the console open in two tabs.
func (h *Hub) Subscribe(workspaceID, agentID string) *Subscription {
	s := &Subscription{
		hub: h,
		key: subKey(workspaceID, agentID),
		ch:  make(chan agent.Event, subscriptionBuffer),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[s.key]
	if !ok {
		set = map[*Subscription]struct{}{}
		h.subs[s.key] = set
	}
	set[s] = struct{}{}
	return s
}

// Publish delivers to every local subscriber of the event's agent. Never
// blocks: a consumer that cannot keep up loses events, and the UI re-syncs
// from the state endpoint.
func (h *Hub) Publish(ev agent.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[subKey(ev.WorkspaceID, ev.AgentID)] {
		select {
		case s.ch <- ev:
		default:
			h.log.Warn("dropping event for slow subscriber",
				"workspace_id", ev.WorkspaceID, "agent_id", ev.AgentID, "event", string(ev.Type))
		}
	}
}
