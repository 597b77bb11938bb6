// Package sweeper enforces the retention policy.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gyaneshwarpardhi/auditlog/internal/config"
	"github.com/gyaneshwarpardhi/auditlog/internal/metrics"
	"github.com/gyaneshwarpardhi/auditlog/internal/store"
)

// Sweeper deletes events older than the configured retention horizon.
// It runs under a suture supervisor via Serve.
type Sweeper struct {
	store store.Store
	cfg   config.Provider
	log   *slog.Logger
	now   func() time.Time
}

// New returns a Sweeper reading retention settings from cfg on every run.
func New(st store.Store, cfg config.Provider, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{store: st, cfg: cfg, log: log, now: time.Now}
}

// Cutoff is the instant before which events are expired.
func (s *Sweeper) Cutoff() time.Time {
	days := s.cfg.Config().Retention.Days
	if days < 1 {
		days = 1
	}
	return s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
}

// Sweep deletes every event older than the retention horizon.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.Cutoff()
	n, err := s.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.log.Info("retention sweep complete", "deleted", n, "cutoff", cutoff.Format(time.RFC3339))
	return n, nil
}

// DeleteBefore deletes every event strictly older than t.
// It returns store.ErrUnavailable without touching anything when the table is missing.
func (s *Sweeper) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	if !s.store.Exists(ctx) {
		metrics.Sweeps.WithLabelValues("unavailable").Inc()
		return 0, store.ErrUnavailable
	}
	n, err := s.store.DeleteOlderThan(ctx, t)
	if err != nil {
		metrics.Sweeps.WithLabelValues("failed").Inc()
		return 0, fmt.Errorf("sweep: %w", err)
	}
	metrics.Sweeps.WithLabelValues("ok").Inc()
	metrics.SweptEvents.Add(float64(n))
	return n, nil
}

// Serve implements suture.Service. It sweeps immediately and then every
// retention.interval until ctx is cancelled. Failed sweeps are retried on the next tick.
func (s *Sweeper) Serve(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.Warn("retention sweep failed, retrying next tick", "err", err)
			}
			timer.Reset(s.interval())
		}
	}
}

func (s *Sweeper) interval() time.Duration {
	if d := s.cfg.Config().Retention.Interval; d > 0 {
		return d
	}
	return config.DefaultSweepInterval
}

// String names the service in supervisor logs.
func (s *Sweeper) String() string { return "retention-sweeper" }
