package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Sweeper drops entries idle for longer than maxAge and reports how many went.
// *sessions.Store and *sessions.NotifiedStore satisfy it.
type Sweeper interface {
	Sweep(maxAge time.Duration) int
}

// Refresher reloads a cached value. *cache.TTL[[]string] satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) ([]string, error)
}

// Invalidator drops a cached decision. *hours.Gate satisfies it.
type Invalidator interface {
	Invalidate()
}

// SweepJob removes idle conversation contexts and expired out-of-hours
// records. maxAge is read on every run so config changes apply.
func SweepJob(contexts Sweeper, contextAge func() time.Duration, notified Sweeper, notifiedAge func() time.Duration) JobFunc {
	return func(context.Context) error {
		c := contexts.Sweep(contextAge())
		n := notified.Sweep(notifiedAge())
		if c > 0 || n > 0 {
			slog.Info("sweep finished", "contexts_removed", c, "notified_removed", n)
		}
		return nil
	}
}

// HolidayRefreshJob reloads the holiday list and drops the cached
// business-hours decision so today's status is re-evaluated.
func HolidayRefreshJob(holidays Refresher, gate Invalidator) JobFunc {
	return func(ctx context.Context) error {
		days, err := holidays.Refresh(ctx)
		gate.Invalidate()
		if err != nil {
			return fmt.Errorf("refresh holidays: %w", err)
		}
		slog.Info("holidays refreshed", "count", len(days))
		return nil
	}
}
