package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/stratacache/go-strata-cache/internal/manager"
	"github.com/stratacache/go-strata-cache/internal/shared/bytes"
)

type Logger interface {
	Interval() time.Duration
	Close() error
}

// Logs periodically emits per-interval engine counters: memory tier traffic,
// write-back backlog and prefetch activity.
type Logs struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
	mgr      *manager.Manager
	interval time.Duration
}

func New(ctx context.Context, logger *slog.Logger, mgr *manager.Manager, interval time.Duration) *Logs {
	ctx, cancel := context.WithCancel(ctx)
	l := &Logs{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		mgr:      mgr,
		interval: interval,
	}
	go l.loop()
	return l
}

func (l *Logs) Interval() time.Duration {
	return l.interval
}

func (l *Logs) Close() error {
	l.cancel()
	return nil
}

func (l *Logs) loop() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	prev := newSnapshot(l.mgr.Stats())

	for {
		select {
		case <-l.ctx.Done():
			return

		case <-ticker.C:
			stats := l.mgr.Stats()
			cur := newSnapshot(stats)
			d := deltaSnapshot(prev, cur)
			prev = cur

			common := []any{"interval", l.interval.String()}

			sizeBytes := stats.Memory.SizeBytes
			if sizeBytes < 0 {
				sizeBytes = 0
			}
			l.logger.Info("memory_tier",
				append(common,
					"hits", int64(d.hits),
					"misses", int64(d.misses),
					"sets", int64(d.sets),
					"evictions", int64(d.evictions),
					"expirations", int64(d.expirations),
					"entries", stats.Memory.Entries,
					"size", bytes.FmtMem(uint64(sizeBytes)),
				)...,
			)

			if d.prefetches > 0 || d.prefetchErrs > 0 {
				l.logger.Info("pre_cacher",
					append(common,
						"prefetches", int64(d.prefetches),
						"stored", int64(d.prefetchStored),
						"errors", int64(d.prefetchErrs),
					)...,
				)
			}

			if stats.PendingWrites > 0 {
				l.logger.Info("write_back",
					append(common, "pending", stats.PendingWrites)...,
				)
			}

			if d.contextChanges > 0 {
				l.logger.Info("context_policy",
					append(common, "changes", int64(d.contextChanges))...,
				)
			}
		}
	}
}
