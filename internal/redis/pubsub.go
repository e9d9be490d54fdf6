package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"pulsebridge/internal/domain"
)

// Broker is the broadcast channel: verified webhook payloads are republished
// here and picked up by the dispatcher (cross-instance via Redis Pub/Sub).
type Broker struct {
	rdb     *goredis.Client
	channel string
}

var _ domain.Publisher = (*Broker)(nil)

func NewBroker(rdb *goredis.Client, channel string) *Broker {
	return &Broker{rdb: rdb, channel: channel}
}

// Publish republishes a verified event onto the broadcast channel.
func (b *Broker) Publish(ctx context.Context, event domain.BroadcastEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish broadcast event: %w", err)
	}
	return nil
}

// Subscription represents an active broadcast channel subscription.
type Subscription struct {
	sub    *goredis.PubSub
	Ch     <-chan domain.BroadcastEvent
	cancel context.CancelFunc
}

// Close unsubscribes and closes the subscription.
func (s *Subscription) Close() {
	s.cancel()
	_ = s.sub.Close()
}

// Subscribe starts receiving broadcast events. The returned channel is
// buffered; the dispatcher drains it with latest-wins semantics, so slow
// consumption loses superseded payloads by design rather than backing up.
func (b *Broker) Subscribe(ctx context.Context) *Subscription {
	sub := b.rdb.Subscribe(ctx, b.channel)

	subCtx, cancel := context.WithCancel(ctx)
	ch := make(chan domain.BroadcastEvent, 16)

	go func() {
		defer close(ch)
		msgCh := sub.Channel()
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				var event domain.BroadcastEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					slog.Error("Failed to unmarshal broadcast event", "error", err)
					continue
				}
				select {
				case ch <- event:
				case <-subCtx.Done():
					return
				}
			case <-subCtx.Done():
				return
			}
		}
	}()

	return &Subscription{
		sub:    sub,
		Ch:     ch,
		cancel: cancel,
	}
}
