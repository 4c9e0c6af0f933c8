package cmd

import (
	"fmt"
	"time"

	"github.com/nextlevelbuilder/deskbot/internal/cache"
	"github.com/nextlevelbuilder/deskbot/internal/config"
	"github.com/nextlevelbuilder/deskbot/internal/cron"
	"github.com/nextlevelbuilder/deskbot/internal/hours"
	"github.com/nextlevelbuilder/deskbot/internal/sessions"
)

// registerCronJobs schedules the idle sweeps and, with a holiday source, the
// daily holiday refresh.
func registerCronJobs(runner *cron.Runner, cfg *config.Config, store *sessions.Store, notified *sessions.NotifiedStore, holidayCache *cache.TTL[[]string], gate *hours.Gate, withHolidays bool) error {
	sweep := cron.SweepJob(
		store, func() time.Duration { return cfg.SessionSettings().IdleTimeout() },
		notified, func() time.Duration { return cfg.SessionSettings().NotifiedTimeout() },
	)
	if err := runner.Add("sweep", cfg.Cron.Sweep, sweep); err != nil {
		return fmt.Errorf("cron: %w", err)
	}

	if !withHolidays {
		return nil
	}
	if err := runner.Add("holiday_refresh", cfg.Cron.HolidayRefresh, cron.HolidayRefreshJob(holidayCache, gate)); err != nil {
		return fmt.Errorf("cron: %w", err)
	}
	return nil
}
