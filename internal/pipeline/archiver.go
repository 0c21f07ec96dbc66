// Package pipeline runs the background maintenance jobs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Archiver periodically moves terminal order records older than the
// retention window to cold storage.
type Archiver struct {
	blob      domain.Archiver
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewArchiver creates an Archiver keeping retentionDays of records in the
// database and running every interval.
func NewArchiver(blob domain.Archiver, retentionDays int, interval time.Duration, logger *slog.Logger) *Archiver {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Archiver{
		blob:      blob,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  interval,
		logger:    logger.With(slog.String("component", "archiver")),
		now:       time.Now,
	}
}

// Cutoff returns the update time before which terminal records are archived.
func (a *Archiver) Cutoff() time.Time {
	return a.now().UTC().Add(-a.retention)
}

// Run executes a single archive pass.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	cutoff := a.Cutoff()
	start := a.now()
	n, err := a.blob.ArchiveRecords(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("pipeline: archive before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	a.logger.InfoContext(ctx, "archive run complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("archived", n),
		slog.Duration("took", a.now().Sub(start)),
	)
	return n, nil
}

// RunEvery runs a pass immediately and then every interval until ctx ends.
// A failed pass is logged and retried at the next tick.
func (a *Archiver) RunEvery(ctx context.Context) error {
	a.logger.Info("archiver started",
		slog.Duration("interval", a.interval),
		slog.Duration("retention", a.retention),
	)
	t := time.NewTicker(a.interval)
	defer t.Stop()
	for {
		if _, err := a.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("archive run failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return ctx.Err()
		case <-t.C:
		}
	}
}
