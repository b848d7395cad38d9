package workers

import (
	"chat-core/contract"
	"chat-core/domain/event"
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"
)

// EventFanout pushes events to the live connections of an actor.
//
// It provides best-effort delivery with no guarantees regarding durability
// or retries. An offline actor simply misses the event and catches up by
// listing chats and messages.
//
// Intents of one actor always land on the same shard, so an actor receives
// its events in emission order.
//
// EventFanout is safe for concurrent use by multiple goroutines.
type EventFanout struct {
	log             *slog.Logger
	registry        contract.IRegistry
	shards          []chan event.Intent
	deliveryTimeout time.Duration
	now             func() time.Time
}

func NewEventFanout(log *slog.Logger, registry contract.IRegistry,
	shardCount, bufferSize int, deliveryTimeout time.Duration) *EventFanout {
	if shardCount < 1 {
		shardCount = 1
	}
	shards := make([]chan event.Intent, shardCount)
	for i := range shards {
		shards[i] = make(chan event.Intent, bufferSize)
	}
	return &EventFanout{
		log:             log,
		registry:        registry,
		shards:          shards,
		deliveryTimeout: deliveryTimeout,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Emit enqueues the event and returns immediately. A full shard drops it.
func (f *EventFanout) Emit(actorID string, kind event.Kind, payload any) {
	intent := event.Intent{
		ActorID: actorID,
		Event:   event.Event{Kind: kind, Payload: payload, At: f.now()},
	}
	select {
	case f.shards[f.shardOf(actorID)] <- intent:
	default:
		f.log.Warn("Fan-out buffer full, event dropped", "actor_id", actorID, "kind", kind)
	}
}

// Workers returns one worker per shard, to be run by the supervisor.
func (f *EventFanout) Workers() []contract.Worker {
	workers := make([]contract.Worker, len(f.shards))
	for i := range f.shards {
		workers[i] = &FanoutShard{fanout: f, intents: f.shards[i]}
	}
	return workers
}

// Channels exposes the shard buffers to capacity monitoring.
func (f *EventFanout) Channels() []NamedChannel {
	channels := make([]NamedChannel, len(f.shards))
	for i, shard := range f.shards {
		channels[i] = NamedChannel{
			Name:     fmt.Sprintf("fanout-shard-%d", i),
			Length:   func() int { return len(shard) },
			Capacity: cap(shard),
		}
	}
	return channels
}

// Deliver pushes one event to each connection of the actor. A failing
// connection is logged and skipped.
func (f *EventFanout) Deliver(ctx context.Context, intent event.Intent) {
	conns := f.registry.ConnectionsOf(intent.ActorID)
	if len(conns) == 0 {
		f.log.Debug("Actor offline, event skipped", "actor_id", intent.ActorID, "kind", intent.Event.Kind)
		return
	}
	for _, conn := range conns {
		deliveryCtx, cancel := context.WithTimeout(ctx, f.deliveryTimeout)
		err := conn.Consume(deliveryCtx, intent.Event)
		cancel()
		if err != nil {
			f.log.Warn("Event delivery failed",
				"actor_id", intent.ActorID,
				"connection_id", conn.ID(),
				"kind", intent.Event.Kind,
				"error", err)
		}
	}
}

func (f *EventFanout) shardOf(actorID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(actorID))
	return int(h.Sum32() % uint32(len(f.shards)))
}

// FanoutShard drains the intents of one shard.
type FanoutShard struct {
	fanout  *EventFanout
	intents chan event.Intent
}

func (s *FanoutShard) Run(ctx context.Context) error {
	for {
		select {
		case intent := <-s.intents:
			if ctx.Err() != nil {
				return nil
			}
			s.fanout.Deliver(ctx, intent)
		case <-ctx.Done():
			s.fanout.log.Debug("Context done, stopping fan-out shard")
			return nil
		}
	}
}
