package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/playperu/riftbound/internal/store"
)

const defaultPruneInterval = 6 * time.Hour

// ScanPruner periodically deletes scan rows older than the retention
// period. A retention of 0 disables pruning.
type ScanPruner struct {
	store     store.ScanStore
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewScanPruner(s store.ScanStore, retention, interval time.Duration, logger *slog.Logger) *ScanPruner {
	if interval <= 0 {
		interval = defaultPruneInterval
	}
	return &ScanPruner{
		store:     s,
		retention: retention,
		interval:  interval,
		logger:    logger.With("component", "scan_pruner"),
		now:       time.Now,
	}
}

// Run prunes once immediately, then on every interval until ctx is done.
func (p *ScanPruner) Run(ctx context.Context) error {
	if p.retention <= 0 {
		p.logger.Info("scan pruner disabled")
		<-ctx.Done()
		return nil
	}
	p.logger.Info("scan pruner started", "retention", p.retention, "interval", p.interval)

	p.Prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

func (p *ScanPruner) Prune(ctx context.Context) int64 {
	cutoff := p.now().UTC().Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("pruning scans", "error", err)
		return 0
	}
	if deleted > 0 {
		p.logger.Info("pruned scans", "deleted", deleted, "cutoff", cutoff.Format(time.RFC3339))
	}
	return deleted
}
