package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"
)

// Kafka topics mirrored from the bus for downstream consumers
// (analytics, notification workers). The engine only produces here;
// nothing in the live path consumes.
const (
	TopicWagerPlaced  = "wager_placed"
	TopicWagerSettled = "wager_settled"
	TopicMarketClosed = "market_closed"
)

// KafkaMirror subscribes to the bus and forwards placement and settlement
// events to Kafka topics. Mirroring is best-effort: a broker outage is
// logged and the event dropped, never allowed to stall settlement.
type KafkaMirror struct {
	placed  *kafka.Writer
	wagers  *kafka.Writer
	markets *kafka.Writer
}

// NewKafkaMirror creates writers against the given broker list
// ("host:9092,host2:9092").
func NewKafkaMirror(brokers string) *KafkaMirror {
	addrs := strings.Split(brokers, ",")
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:                   kafka.TCP(addrs...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		}
	}
	return &KafkaMirror{
		placed:  newWriter(TopicWagerPlaced),
		wagers:  newWriter(TopicWagerSettled),
		markets: newWriter(TopicMarketClosed),
	}
}

// Close flushes and closes the underlying writers.
func (m *KafkaMirror) Close() {
	m.placed.Close()
	m.wagers.Close()
	m.markets.Close()
}

// Run consumes the bus until the context is cancelled, forwarding wager
// outcomes and market closures. Must be called in a goroutine.
func (m *KafkaMirror) Run(ctx context.Context, b *Bus) {
	ch, cancel := b.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			m.forward(ctx, evt)
		}
	}
}

func (m *KafkaMirror) forward(ctx context.Context, evt Event) {
	var w *kafka.Writer
	switch evt.Type {
	case TypeBetPlaced:
		w = m.placed
	case TypeBetWin, TypeBetLost:
		w = m.wagers
	case TypeMarketSettled, TypeMarketVoided:
		w = m.markets
	default:
		return
	}

	value, err := json.Marshal(evt)
	if err != nil {
		return
	}
	msg := kafka.Message{Key: []byte(evt.MarketID), Value: value, Time: evt.Timestamp}
	if err := w.WriteMessages(ctx, msg); err != nil {
		slog.Warn("kafka mirror write failed", "type", evt.Type, "err", err)
	}
}
