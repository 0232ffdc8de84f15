package notify

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"crm-softphone/internal/agent"

	"github.com/redis/go-redis/v9"
)

// deadRedis listens and reads but never answers, so any command against it
// hangs until its context deadline.
func deadRedis(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				_, _ = io.Copy(io.Discard, c)
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestBroker_PublishNeverBlocksCaller(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: deadRedis(t)})
	defer rdb.Close()

	hub := NewHub(slog.Default())
	b := NewBroker(rdb, hub, slog.Default())
	defer b.Close()

	sub := hub.Subscribe("w1", "a1")
	defer sub.Close()

	// The caller stands in for a coordinator's event loop: it must return
	// immediately even though Redis is hanging.
	start := time.Now()
	b.Publish(agent.Event{Type: agent.EventCallStateChanged, WorkspaceID: "w1", AgentID: "a1"})
	if el := time.Since(start); el > 500*time.Millisecond {
		t.Fatalf("publish blocked the caller for %s", el)
	}

	// The worker times out against Redis and falls back to local delivery.
	select {
	case ev := <-sub.Events():
		if ev.WorkspaceID != "w1" || ev.AgentID != "a1" {
			t.Fatalf("unexpected event delivered: %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("event never delivered locally after redis failure")
	}
}

func TestBroker_FullQueueDeliversLocally(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: deadRedis(t)})
	defer rdb.Close()

	hub := NewHub(slog.Default())
	b := NewBroker(rdb, hub, slog.Default())
	defer b.Close()

	sub := hub.Subscribe("w1", "a1")
	defer sub.Close()

	// Saturate the queue while the worker is stuck on the first event; the
	// overflow must come out of the hub directly, still without blocking the
	// caller. The worker drains at most one event before its Redis timeout,
	// hence the extra slack.
	for i := 0; i < brokerQueueLen+2; i++ {
		b.Publish(agent.Event{Type: agent.EventCallStateChanged, WorkspaceID: "w1", AgentID: "a1"})
	}
	select {
	case <-sub.Events():
	case <-time.After(2 * time.Second):
		t.Fatalf("overflow event not delivered locally")
	}
}
