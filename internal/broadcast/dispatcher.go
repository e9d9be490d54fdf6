// Package broadcast drives fanout cycles from the broadcast channel.
package broadcast

import (
	"context"
	"log/slog"

	"pulsebridge/internal/domain"
	"pulsebridge/internal/metrics"
)

// Engine is the fanout entry point the dispatcher invokes per cycle.
type Engine interface {
	Fanout(ctx context.Context, payload string) (domain.FanoutResult, error)
}

// Dispatcher consumes republished events and triggers fanout cycles.
// When several events are already buffered at wakeup, only the most recent
// one is delivered — earlier payloads in the batch are superseded and
// intentionally dropped, not queued (latest-wins).
type Dispatcher struct {
	events <-chan domain.BroadcastEvent
	engine Engine
}

func NewDispatcher(events <-chan domain.BroadcastEvent, engine Engine) *Dispatcher {
	return &Dispatcher{events: events, engine: engine}
}

// Run blocks until ctx is cancelled or the event channel closes. A cancelled
// context abandons in-flight pushes; evictions already issued stand.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.events:
			if !ok {
				return
			}
			event, dropped := d.drainLatest(event)
			if dropped > 0 {
				metrics.BroadcastMessagesDropped.Add(float64(dropped))
				slog.Info("Superseded broadcast payloads dropped", "dropped", dropped)
			}

			result, err := d.engine.Fanout(ctx, event.Payload)
			if err != nil {
				slog.Error("Fanout cycle failed", "event_type", event.Type, "error", err)
				continue
			}
			slog.Info("Fanout cycle complete",
				"event_type", event.Type,
				"delivered", result.Delivered,
				"stale_cleaned", result.StaleCleaned,
			)
		}
	}
}

// drainLatest empties the buffered backlog and returns the newest event plus
// the number of superseded ones.
func (d *Dispatcher) drainLatest(latest domain.BroadcastEvent) (domain.BroadcastEvent, int) {
	dropped := 0
	for {
		select {
		case event, ok := <-d.events:
			if !ok {
				return latest, dropped
			}
			dropped++
			latest = event
		default:
			return latest, dropped
		}
	}
}
