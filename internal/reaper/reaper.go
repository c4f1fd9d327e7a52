// Package reaper runs the periodic sweep that reverts deliveries
// whose lease expired back to PENDING. Grounded on the original
// implementation's reap_expired_leases background task, re-expressed
// as a Go ticker loop with an optional cron-expression override for
// operators staggering reap windows across several relays sharing one
// Postgres instance.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/chatrelay/internal/config"
)

// Reaper is the background lease-expiry sweep.
type Reaper struct {
	reap     func(ctx context.Context) (int, error)
	logger   *slog.Logger
	interval time.Duration
	cron     string

	stop   chan struct{}
	done   chan struct{}
}

// New builds a Reaper. reap is typically queue.Service.ReapExpiredLeases.
func New(cfg config.ReapConfig, reap func(ctx context.Context) (int, error), logger *slog.Logger) *Reaper {
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Reaper{
		reap:     reap,
		logger:   logger,
		interval: interval,
		cron:     cfg.Cron,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop in a background goroutine until Stop is
// called or ctx is canceled.
func (r *Reaper) Start(ctx context.Context) {
	go func() {
		defer close(r.done)
		if r.cron != "" {
			r.runCron(ctx)
			return
		}
		r.runFixedInterval(ctx)
	}()
}

func (r *Reaper) runFixedInterval(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// runCron polls once a second, firing a sweep whenever gronx reports
// the configured expression matches the current minute — coarser than
// the fixed-interval tick, but cron expressions are minute-granular by
// nature.
func (r *Reaper) runCron(ctx context.Context) {
	g := gronx.New()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastFired time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case now := <-ticker.C:
			if now.Truncate(time.Minute).Equal(lastFired) {
				continue
			}
			due, err := g.IsDue(r.cron, now)
			if err != nil {
				r.logger.Error("reap cron expression invalid", "cron", r.cron, "error", err)
				continue
			}
			if due {
				lastFired = now.Truncate(time.Minute)
				r.sweep(ctx)
			}
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	n, err := r.reap(ctx)
	if err != nil {
		r.logger.Error("lease reap failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("reaped expired leases", "count", n)
	}
}

// Stop cancels the sweep loop and waits for it to exit.
func (r *Reaper) Stop() {
	close(r.stop)
	<-r.done
}
