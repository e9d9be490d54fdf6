package domain

import "context"

// ConnectionRegistry is the store of live connection identifiers.
// Entries are registered when the transport reports a new connection and
// removed either by an explicit disconnect or by fanout reconciliation.
type ConnectionRegistry interface {
	// Register upserts a connection identifier. Idempotent: registering an
	// already-known id is not an error and creates no duplicate entry.
	Register(ctx context.Context, connectionID string) error

	// List returns one page of connection identifiers starting at cursor.
	// A zero next-cursor marks exhaustion. Pages may repeat identifiers
	// across rescans; callers must deduplicate.
	List(ctx context.Context, cursor uint64, count int64) (ids []string, next uint64, err error)

	// Remove deletes a connection identifier. Removing an absent id is a no-op.
	Remove(ctx context.Context, connectionID string) error
}

// Pusher delivers a payload to a single connection. Implementations report
// ErrConnectionGone when the endpoint is permanently unreachable; every other
// failure (including timeouts) is transient and leaves the registration intact.
type Pusher interface {
	Push(ctx context.Context, connectionID string, payload []byte) error
}

// Publisher republishes a verified webhook payload onto the broadcast channel.
type Publisher interface {
	Publish(ctx context.Context, event BroadcastEvent) error
}

// BroadcastEvent is one message on the broadcast channel. Payload carries the
// verified inbound body verbatim; Type is the provider's event-type hint.
type BroadcastEvent struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

// FanoutResult aggregates one fanout cycle. StaleCleaned counts attempted
// evictions, whether or not the underlying delete succeeded.
type FanoutResult struct {
	Delivered    int `json:"delivered"`
	StaleCleaned int `json:"staleCleaned"`
}
