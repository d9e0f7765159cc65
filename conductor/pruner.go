package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/keremk/renku-sub000/internal/platform/env"
	"github.com/keremk/renku-sub000/internal/repo"
)

type runLogPruner struct {
	logger    *slog.Logger
	store     repo.RunLogRepository
	interval  time.Duration
	retention time.Duration
}

// startRunLogPruner periodically drops archived log entries older than
// the retention window. A zero retention disables pruning.
func startRunLogPruner(ctx context.Context, logger *slog.Logger, store repo.RunLogRepository) {
	if store == nil {
		return
	}
	interval, err := env.Duration("CONDUCTOR_PRUNE_INTERVAL", time.Hour)
	if err != nil {
		logger.Error("invalid prune interval", "error", err)
		return
	}
	retention, err := env.Duration("CONDUCTOR_RUN_LOG_RETENTION", 0)
	if err != nil {
		logger.Error("invalid run log retention", "error", err)
		return
	}
	if retention <= 0 {
		return
	}
	p := &runLogPruner{
		logger:    logger,
		store:     store,
		interval:  interval,
		retention: retention,
	}
	go p.run(ctx)
}

func (p *runLogPruner) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pruneOnce(ctx)
		}
	}
}

func (p *runLogPruner) pruneOnce(ctx context.Context) {
	pruneCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-p.retention)
	pruned, err := p.store.PruneBefore(pruneCtx, cutoff)
	if err != nil {
		p.logger.Error("prune run logs failed", "error", err)
		return
	}
	if pruned > 0 {
		p.logger.Info("pruned run logs", "entries", pruned, "cutoff", cutoff)
	}
}
