// Package bus provides the pub/sub layer that decouples settlement (and
// other mutators) from live subscribers. Delivery is at-most-once per
// currently registered subscriber — there is no durable queue. Subscribers
// that connect after a publication never see it; reconnecting clients are
// reconciled through a fresh room join instead.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Event types published on the bus.
const (
	TypeHeartbeat     = "heartbeat"
	TypeBetPlaced     = "bet_placed"
	TypeBetWin        = "bet_win"
	TypeBetLost       = "bet_lost"
	TypeMarketSettled = "market_settled"
	TypeMarketVoided  = "market_voided"
)

// Event is a single pub/sub message. Fields beyond Type are populated
// per event type.
type Event struct {
	Type             string          `json:"type"`
	EventID          string          `json:"eventId,omitempty"`
	MarketID         string          `json:"marketId,omitempty"`
	WagerID          string          `json:"wagerId,omitempty"`
	UserID           string          `json:"userId,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	WinningOptionKey string          `json:"winningOptionKey,omitempty"`
	Message          string          `json:"message,omitempty"`
	Timestamp        time.Time       `json:"ts"`

	// Origin identifies the engine instance that first published the
	// event. Used by the Redis bridge to suppress its own echoes.
	Origin string `json:"origin,omitempty"`
}

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind starts losing events rather than blocking
// settlement.
const subscriberBuffer = 64

// Bus fans events out to all registered subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber and returns its channel along with
// an unsubscribe function. Unsubscribing closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if ch, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Publish delivers the event to every current subscriber. Publication
// never blocks: a full subscriber channel drops the event for that
// subscriber only.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// SubscriberCount returns the number of registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// RunHeartbeat publishes a heartbeat event on the given interval until the
// context is cancelled. Heartbeats keep long-lived subscriptions alive and
// let clients detect silent disconnects.
func (b *Bus) RunHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Publish(Event{Type: TypeHeartbeat, Message: "live-update"})
		}
	}
}
