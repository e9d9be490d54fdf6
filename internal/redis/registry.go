package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"pulsebridge/internal/domain"
)

// ConnectionRegistry stores connection identifiers in a Redis set.
// SADD gives idempotent registration, SSCAN gives resumable cursor-paginated
// enumeration, and SREM gives idempotent removal. Each operation is
// individually atomic; concurrent fanout cycles scan with independent
// cursors and never block one another.
type ConnectionRegistry struct {
	rdb *goredis.Client
	key string
}

var _ domain.ConnectionRegistry = (*ConnectionRegistry)(nil)

func NewConnectionRegistry(rdb *goredis.Client, key string) *ConnectionRegistry {
	return &ConnectionRegistry{rdb: rdb, key: key}
}

// Register upserts a connection identifier. Re-registering a known id leaves
// the set unchanged.
func (r *ConnectionRegistry) Register(ctx context.Context, connectionID string) error {
	if err := r.rdb.SAdd(ctx, r.key, connectionID).Err(); err != nil {
		return fmt.Errorf("failed to register connection: %w", err)
	}
	return nil
}

// List returns one SSCAN page of connection identifiers. The returned cursor
// resumes the scan; zero marks exhaustion. SSCAN guarantees every member
// present for the whole scan is returned at least once, but may repeat
// members when the set is mutated mid-scan.
func (r *ConnectionRegistry) List(ctx context.Context, cursor uint64, count int64) ([]string, uint64, error) {
	ids, next, err := r.rdb.SScan(ctx, r.key, cursor, "", count).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan connections: %w", err)
	}
	return ids, next, nil
}

// Remove deletes a connection identifier. Removing an absent id is a no-op.
func (r *ConnectionRegistry) Remove(ctx context.Context, connectionID string) error {
	if err := r.rdb.SRem(ctx, r.key, connectionID).Err(); err != nil {
		return fmt.Errorf("failed to remove connection: %w", err)
	}
	return nil
}

// Count returns the current registry size. Used by health and metrics
// reporting, not by the fanout path.
func (r *ConnectionRegistry) Count(ctx context.Context) (int64, error) {
	n, err := r.rdb.SCard(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count connections: %w", err)
	}
	return n, nil
}
