package hours

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/deskbot/internal/config"
)

type fakeHolidays struct {
	dates []string
	err   error
	calls int
}

func (f *fakeHolidays) Get(context.Context) ([]string, error) {
	f.calls++
	return f.dates, f.err
}

// 2026-03-02 is a Monday.
func at(day, hour int) time.Time {
	return time.Date(2026, 3, day, hour, 30, 0, 0, time.Local)
}

func TestDecide(t *testing.T) {
	weekdays := Schedule{Start: 8, End: 16, Days: []int{1, 2, 3, 4, 5}}
	none := func() ([]string, error) { return nil, nil }
	failing := func() ([]string, error) { return nil, errors.New("airtable 503") }

	tests := []struct {
		name   string
		now    time.Time
		lookup func() ([]string, error)
		want   Decision
	}{
		{"weekday within hours", at(2, 10), none, Open},
		{"sunday ignores hour", at(1, 10), none, ClosedByDay},
		{"saturday even at lookup failure", at(7, 10), failing, ClosedByDay},
		{"before opening", at(2, 7), none, ClosedByHour},
		{"end hour is exclusive", at(2, 16), none, ClosedByHour},
		{"start hour is inclusive", at(2, 8), none, Open},
		{"holiday", at(3, 10), func() ([]string, error) { return []string{"2026-03-03"}, nil }, ClosedByHoliday},
		{"other day is holiday", at(4, 10), func() ([]string, error) { return []string{"2026-03-03"}, nil }, Open},
		{"lookup failure fails open", at(2, 10), failing, OpenDueToLookupFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.now, weekdays, tt.lookup)
			assert.Equal(t, tt.want, got, "got %s", got)
		})
	}
}

func TestDecide_SkipsLookupWhenClosed(t *testing.T) {
	called := false
	lookup := func() ([]string, error) { called = true; return nil, nil }

	Decide(at(1, 10), Schedule{Start: 8, End: 16, Days: []int{1}}, lookup)
	Decide(at(2, 20), Schedule{Start: 8, End: 16, Days: []int{1}}, lookup)
	assert.False(t, called)
}

func TestDecision_IsOpen(t *testing.T) {
	assert.True(t, Open.IsOpen())
	assert.True(t, OpenDueToLookupFailure.IsOpen())
	assert.False(t, ClosedByDay.IsOpen())
	assert.False(t, ClosedByHour.IsOpen())
	assert.False(t, ClosedByHoliday.IsOpen())
	assert.Equal(t, "closed_by_holiday", ClosedByHoliday.String())
}

func newTestGate(h Holidays, now *time.Time) *Gate {
	cfg := config.Default()
	return NewGate(cfg, h).WithClock(func() time.Time { return *now })
}

func TestGate_CachesDecision(t *testing.T) {
	now := at(2, 10)
	h := &fakeHolidays{}
	g := newTestGate(h, &now)
	ctx := context.Background()

	assert.True(t, g.IsOpenNow(ctx))
	assert.True(t, g.IsOpenNow(ctx))
	assert.Equal(t, 1, h.calls)

	// Still cached: hours closed in reality but decision reused.
	now = now.Add(4 * time.Minute)
	h.dates = []string{"2026-03-02"}
	assert.True(t, g.IsOpenNow(ctx))

	now = now.Add(time.Minute)
	assert.Equal(t, ClosedByHoliday, g.Evaluate(ctx))
}

func TestGate_LookupFailureIsNotCached(t *testing.T) {
	now := at(2, 10)
	h := &fakeHolidays{err: errors.New("boom")}
	g := newTestGate(h, &now)
	ctx := context.Background()

	assert.Equal(t, OpenDueToLookupFailure, g.Evaluate(ctx))
	assert.True(t, g.IsOpenNow(ctx))
	assert.Equal(t, 2, h.calls)

	h.err = nil
	h.dates = []string{"2026-03-02"}
	assert.False(t, g.IsOpenNow(ctx))
}

func TestGate_SetHoursTakesEffectImmediately(t *testing.T) {
	now := at(2, 17)
	g := newTestGate(&fakeHolidays{}, &now)
	ctx := context.Background()

	assert.Equal(t, ClosedByHour, g.Evaluate(ctx))

	require.NoError(t, g.SetHours(9, 18))
	assert.True(t, g.IsOpenNow(ctx), "17:30 inside 9-18")

	now = at(2, 19)
	g.Invalidate()
	assert.False(t, g.IsOpenNow(ctx), "19:30 outside 9-18")
}

func TestGate_SetHoursRejectsInvalidRange(t *testing.T) {
	now := at(2, 10)
	g := newTestGate(&fakeHolidays{}, &now)

	err := g.SetHours(18, 9)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidRange)
	assert.True(t, g.IsOpenNow(context.Background()))
}

func TestGate_SetBusinessDays(t *testing.T) {
	now := at(7, 10) // Saturday
	g := newTestGate(&fakeHolidays{}, &now)
	ctx := context.Background()

	assert.Equal(t, ClosedByDay, g.Evaluate(ctx))
	require.NoError(t, g.SetBusinessDays([]int{1, 2, 3, 4, 5, 6}))
	assert.Equal(t, Open, g.Evaluate(ctx))

	assert.ErrorIs(t, g.SetBusinessDays([]int{9}), config.ErrInvalidRange)
}

func TestGate_NilHolidaySource(t *testing.T) {
	now := at(2, 10)
	g := newTestGate(nil, &now)
	assert.Equal(t, Open, g.Evaluate(context.Background()))
}
