package bus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Channel is the Redis Pub/Sub channel used to fan events out across
// engine instances.
const Channel = "live_bets_broadcast"

// RedisBridge mirrors the local bus over a Redis Pub/Sub channel so that
// clients connected to one instance still see settlements executed on
// another. Events published locally go out on the channel; events arriving
// from other instances are re-published locally. Each bridge carries an
// instance id so it can skip its own echoes.
type RedisBridge struct {
	bus *Bus
	rdb *redis.Client
	id  string
}

// NewRedisBridge creates a bridge between the local bus and Redis.
func NewRedisBridge(b *Bus, rdb *redis.Client) *RedisBridge {
	return &RedisBridge{bus: b, rdb: rdb, id: uuid.New().String()}
}

// Publish serializes the event and publishes it on the Redis channel.
// Heartbeats stay local — every instance runs its own ticker.
func (r *RedisBridge) Publish(ctx context.Context, evt Event) {
	if evt.Type == TypeHeartbeat {
		return
	}
	evt.Origin = r.id
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := r.rdb.Publish(ctx, Channel, data).Err(); err != nil {
		slog.Warn("redis publish failed", "channel", Channel, "err", err)
	}
}

// Run mirrors in both directions until the context is cancelled: local
// events go out on the Redis channel, events from other instances are
// re-published locally. Must be called in a goroutine.
func (r *RedisBridge) Run(ctx context.Context) {
	go r.forwardLocal(ctx)

	sub := r.rdb.Subscribe(ctx, Channel)
	defer sub.Close()
	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				slog.Warn("redis bridge unmarshal failed", "err", err)
				continue
			}
			if evt.Origin == r.id {
				continue
			}
			r.bus.Publish(evt)
		}
	}
}

// forwardLocal consumes the local bus and pushes locally originated events
// onto the Redis channel. Events carrying an Origin already travelled the
// channel once and are not forwarded again.
func (r *RedisBridge) forwardLocal(ctx context.Context) {
	ch, cancel := r.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.Origin != "" {
				continue
			}
			r.Publish(ctx, evt)
		}
	}
}
