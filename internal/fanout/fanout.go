// Package fanout delivers one broadcast payload to every registered
// connection and reconciles the registry by evicting connections whose
// endpoints are permanently gone.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pulsebridge/internal/domain"
	"pulsebridge/internal/metrics"
)

const defaultPageSize = 100

// Engine runs fanout cycles. Each cycle snapshots the registry at its own
// enumeration time; overlapping cycles do not share state.
type Engine struct {
	registry      domain.ConnectionRegistry
	pusher        domain.Pusher
	maxConcurrent int
	pushTimeout   time.Duration
	pageSize      int64
}

func NewEngine(registry domain.ConnectionRegistry, pusher domain.Pusher, maxConcurrent int, pushTimeout time.Duration) *Engine {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Engine{
		registry:      registry,
		pusher:        pusher,
		maxConcurrent: maxConcurrent,
		pushTimeout:   pushTimeout,
		pageSize:      defaultPageSize,
	}
}

// Fanout pushes payload to every currently-registered connection and evicts
// the ones whose endpoints are gone. Pushes are independent: one failure
// never aborts delivery to the rest. Transient failures (including timeouts)
// leave the registration intact for the next cycle.
//
// The returned StaleCleaned counts attempted evictions — a failed delete is
// still counted, since the entry is confirmed stale and a later cycle will
// retry the removal.
func (e *Engine) Fanout(ctx context.Context, payload string) (domain.FanoutResult, error) {
	ids, err := e.snapshot(ctx)
	if err != nil {
		return domain.FanoutResult{}, fmt.Errorf("failed to enumerate connections: %w", err)
	}

	var (
		mu        sync.Mutex
		delivered int
		stale     []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)

	data := []byte(payload)
	for _, id := range ids {
		g.Go(func() error {
			pushCtx, cancel := context.WithTimeout(gctx, e.pushTimeout)
			defer cancel()

			start := time.Now()
			err := e.pusher.Push(pushCtx, id, data)
			metrics.PushDuration.Observe(time.Since(start).Seconds())

			switch {
			case err == nil:
				metrics.PushesTotal.WithLabelValues("ok").Inc()
				mu.Lock()
				delivered++
				mu.Unlock()
			case errors.Is(err, domain.ErrConnectionGone):
				metrics.PushesTotal.WithLabelValues("gone").Inc()
				mu.Lock()
				stale = append(stale, id)
				mu.Unlock()
			default:
				// Transient: the next broadcast will try this connection again.
				metrics.PushesTotal.WithLabelValues("transient").Inc()
				slog.Debug("Push failed, keeping connection registered", "connection_id", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	staleCleaned := e.evict(ctx, stale)

	metrics.FanoutCyclesTotal.Inc()
	metrics.FanoutDeliveredTotal.Add(float64(delivered))
	metrics.FanoutStaleCleanedTotal.Add(float64(staleCleaned))

	return domain.FanoutResult{Delivered: delivered, StaleCleaned: staleCleaned}, nil
}

// snapshot follows the registry's continuation cursor to exhaustion.
// Registry size is unbounded, so paging is required behavior, not an
// optimization. Ids are deduplicated because a scan over a set mutating
// under it may return members more than once.
func (e *Engine) snapshot(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	var cursor uint64

	for {
		page, next, err := e.registry.List(ctx, cursor, e.pageSize)
		if err != nil {
			return nil, err
		}
		for _, id := range page {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		if next == 0 {
			return ids, nil
		}
		cursor = next
	}
}

// evict removes stale connections, best-effort. Delete failures are
// deliberately swallowed: the entry is already confirmed gone and the next
// cycle's reconciliation will attempt the removal again, so escalating here
// would only fail a broadcast that has in fact been delivered.
func (e *Engine) evict(ctx context.Context, stale []string) int {
	cleaned := 0
	for _, id := range stale {
		if err := e.registry.Remove(ctx, id); err != nil {
			slog.Warn("Failed to evict stale connection", "connection_id", id, "error", err)
		}
		cleaned++
	}
	return cleaned
}
