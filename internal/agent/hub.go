package agent

import (
	"log/slog"
	"sync"

	"crm-softphone/internal/leads"
	"crm-softphone/internal/records"
	"crm-softphone/internal/signaling"
	"crm-softphone/internal/wrapup"
)

// AdapterFactory builds the signaling adapter for one agent's line. The hub
// calls it once per agent session.
type AdapterFactory func(workspaceID, agentID string) signaling.Adapter

// Hub owns the per-agent coordinators. One coordinator per workspace+agent;
// lookups create on first use.
type Hub struct {
	cfg     Config
	factory AdapterFactory

	sink      records.Sink
	writer    *records.Writer
	directory leads.Directory
	enforcer  *wrapup.Enforcer
	notifier  Notifier
	caps      CapGuard
	log       *slog.Logger

	mu           sync.Mutex
	coordinators map[string]*Coordinator
}

func NewHub(cfg Config, factory AdapterFactory, sink records.Sink, writer *records.Writer,
	directory leads.Directory, enforcer *wrapup.Enforcer, notifier Notifier, caps CapGuard, log *slog.Logger) *Hub {
	return &Hub{
		cfg:          cfg,
		factory:      factory,
		sink:         sink,
		writer:       writer,
		directory:    directory,
		enforcer:     enforcer,
		notifier:     notifier,
		caps:         caps,
		log:          log,
		coordinators: map[string]*Coordinator{},
	}
}

func key(workspaceID, agentID string) string { return workspaceID + "|" + agentID }

// Get returns the agent's coordinator, starting one on first use.
func (h *Hub) Get(workspaceID, agentID string) *Coordinator {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := key(workspaceID, agentID)
	if c, ok := h.coordinators[k]; ok {
		return c
	}
	c := New(workspaceID, agentID, h.cfg, Deps{
		Adapter:   h.factory(workspaceID, agentID),
		Sink:      h.sink,
		Writer:    h.writer,
		Directory: h.directory,
		Enforcer:  h.enforcer,
		Notifier:  h.notifier,
		Caps:      h.caps,
		Logger:    h.log,
	})
	h.coordinators[k] = c
	return c
}

// Close shuts every coordinator down.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.coordinators {
		c.Close()
	}
	h.coordinators = map[string]*Coordinator{}
}
