package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"crm-softphone/internal/agent"

	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix  = "softphone:events:"
	brokerQueueLen = 256
)

// Broker fans events out through Redis pub/sub. Coordinators publish to the
// broker; every instance's Run loop feeds its local hub, so websocket clients
// get events regardless of which instance owns the coordinator.
type Broker struct {
	rdb *redis.Client
	hub *Hub
	log *slog.Logger

	queue chan agent.Event
	done  chan struct{}
	once  sync.Once
}

func NewBroker(rdb *redis.Client, hub *Hub, log *slog.Logger) *Broker {
	b := &Broker{
		rdb:   rdb,
		hub:   hub,
		log:   log,
		queue: make(chan agent.Event, brokerQueueLen),
		done:  make(chan struct{}),
	}
	go b.publishLoop()
	return b
}

func channel(workspaceID, agentID string) string {
	return channelPrefix + workspaceID + ":" + agentID
}

// Publish implements the coordinator's notifier. It only enqueues; the Redis
// round-trip happens on the broker's own goroutine, so a slow Redis never
// stalls an agent's event loop. A full queue degrades to local-only delivery
// rather than losing the event entirely.
func (b *Broker) Publish(ev agent.Event) {
	select {
	case b.queue <- ev:
	default:
		b.log.Warn("event queue full, delivering locally only",
			"event", string(ev.Type), "agent_id", ev.AgentID)
		b.hub.Publish(ev)
	}
}

func (b *Broker) publishLoop() {
	for {
		select {
		case <-b.done:
			return
		case ev := <-b.queue:
			b.publishOne(ev)
		}
	}
}

// publishOne pushes a single event through Redis. Failures degrade to
// local-only delivery.
func (b *Broker) publishOne(ev agent.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Error("event marshal failed", "event", string(ev.Type), "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisPublishTimeout)
	defer cancel()
	if err := b.rdb.Publish(ctx, channel(ev.WorkspaceID, ev.AgentID), payload).Err(); err != nil {
		b.log.Warn("event publish failed, delivering locally only", "err", err)
		b.hub.Publish(ev)
	}
}

// Close stops the publish worker. Events still queued are dropped; by then the
// coordinators feeding the broker are shutting down too.
func (b *Broker) Close() {
	b.once.Do(func() { close(b.done) })
}

// Run consumes the event channels and feeds the local hub. Blocks until ctx
// is canceled.
func (b *Broker) Run(ctx context.Context) error {
	sub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev agent.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("dropping malformed event payload", "channel", msg.Channel, "err", err)
				continue
			}
			b.hub.Publish(ev)
		}
	}
}
