// Package hours decides whether inbound traffic is handled now or deflected
// with an out-of-hours notice.
package hours

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/nextlevelbuilder/deskbot/internal/cache"
	"github.com/nextlevelbuilder/deskbot/internal/config"
)

// DecisionTTL is how long an evaluated decision is reused.
const DecisionTTL = 5 * time.Minute

// DateLayout is the calendar date format used by holiday lists.
const DateLayout = "2006-01-02"

// Decision is the outcome of a gate evaluation, tagged with its reason.
type Decision int

const (
	Open Decision = iota
	ClosedByDay
	ClosedByHour
	ClosedByHoliday
	OpenDueToLookupFailure // holiday lookup failed; availability wins
)

// IsOpen reports whether traffic should be processed.
func (d Decision) IsOpen() bool {
	return d == Open || d == OpenDueToLookupFailure
}

func (d Decision) String() string {
	switch d {
	case Open:
		return "open"
	case ClosedByDay:
		return "closed_by_day"
	case ClosedByHour:
		return "closed_by_hour"
	case ClosedByHoliday:
		return "closed_by_holiday"
	case OpenDueToLookupFailure:
		return "open_due_to_lookup_failure"
	default:
		return "unknown"
	}
}

// Schedule is the subset of policy the decision depends on.
type Schedule struct {
	Start int
	End   int
	Days  []int
}

// Decide evaluates the schedule at now. lookup is only called when day and
// hour both pass; its error turns the result into OpenDueToLookupFailure.
func Decide(now time.Time, s Schedule, lookup func() ([]string, error)) Decision {
	if !slices.Contains(s.Days, int(now.Weekday())) {
		return ClosedByDay
	}
	if h := now.Hour(); h < s.Start || h >= s.End {
		return ClosedByHour
	}
	holidays, err := lookup()
	if err != nil {
		return OpenDueToLookupFailure
	}
	if slices.Contains(holidays, now.Format(DateLayout)) {
		return ClosedByHoliday
	}
	return Open
}

// Holidays yields the current holiday list (YYYY-MM-DD dates).
// *cache.TTL[[]string] satisfies it.
type Holidays interface {
	Get(ctx context.Context) ([]string, error)
}

// Gate evaluates the business-hours policy against the shared config,
// caching decisions for DecisionTTL.
type Gate struct {
	cfg      *config.Config
	holidays Holidays
	decision *cache.TTL[Decision]
	now      func() time.Time
}

// NewGate creates a gate reading policy from cfg.
func NewGate(cfg *config.Config, holidays Holidays) *Gate {
	return &Gate{
		cfg:      cfg,
		holidays: holidays,
		decision: cache.NewTTL[Decision]("business_hours", DecisionTTL, nil),
		now:      time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	g.decision.WithClock(now)
	return g
}

// Evaluate returns the current decision, from cache when fresh.
// Fail-open results are not cached so the next call retries the lookup.
func (g *Gate) Evaluate(ctx context.Context) Decision {
	if d, ok := g.decision.Peek(); ok {
		return d
	}

	start, end := g.cfg.Hours()
	sched := Schedule{Start: start, End: end, Days: g.cfg.BusinessDays()}
	now := g.now().In(g.cfg.Location())

	var lookupErr error
	d := Decide(now, sched, func() ([]string, error) {
		if g.holidays == nil {
			return nil, nil
		}
		days, err := g.holidays.Get(ctx)
		lookupErr = err
		return days, err
	})

	switch d {
	case OpenDueToLookupFailure:
		slog.Error("holiday lookup failed, treating as business hours", "error", lookupErr)
	case ClosedByHoliday:
		slog.Info("today is a holiday", "date", now.Format(DateLayout))
		g.decision.Set(d)
	default:
		g.decision.Set(d)
	}
	return d
}

// IsOpenNow reports whether inbound traffic should be processed now.
func (g *Gate) IsOpenNow(ctx context.Context) bool {
	return g.Evaluate(ctx).IsOpen()
}

// SetHours validates and stores new business hours, effective immediately.
func (g *Gate) SetHours(start, end int) error {
	if err := g.cfg.SetHours(start, end); err != nil {
		return err
	}
	g.decision.Invalidate()
	return nil
}

// SetBusinessDays validates and stores new business weekdays, effective immediately.
func (g *Gate) SetBusinessDays(days []int) error {
	if err := g.cfg.SetBusinessDays(days); err != nil {
		return err
	}
	g.decision.Invalidate()
	return nil
}

// Invalidate drops the cached decision.
func (g *Gate) Invalidate() {
	g.decision.Invalidate()
}
