package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, time.March, 2, 10, 5, 0, 0, time.UTC)

func TestRunner_AddRejectsInvalidExpression(t *testing.T) {
	r := NewRunner().WithClock(func() time.Time { return base })
	assert.Error(t, r.Add("bad", "not a cron", func(context.Context) error { return nil }))
	assert.True(t, r.Next().IsZero())
}

func TestRunner_RunDueFiresAndReschedules(t *testing.T) {
	r := NewRunner().WithClock(func() time.Time { return base })

	var sweeps, refreshes int
	require.NoError(t, r.Add("sweep", "*/30 * * * *", func(context.Context) error { sweeps++; return nil }))
	require.NoError(t, r.Add("holidays", "0 6 * * *", func(context.Context) error {
		refreshes++
		return errors.New("airtable down")
	}))

	assert.Equal(t, time.Date(2026, time.March, 2, 10, 30, 0, 0, time.UTC), r.Next())

	assert.Zero(t, r.RunDue(context.Background(), base.Add(time.Minute)))
	assert.Equal(t, 1, r.RunDue(context.Background(), time.Date(2026, time.March, 2, 10, 30, 0, 0, time.UTC)))
	assert.Equal(t, 1, sweeps)
	assert.Equal(t, time.Date(2026, time.March, 2, 11, 0, 0, 0, time.UTC), r.Next())

	n := r.RunDue(context.Background(), time.Date(2026, time.March, 3, 6, 0, 0, 0, time.UTC))
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, sweeps)
	assert.Equal(t, 1, refreshes, "failing jobs stay scheduled")
	assert.Equal(t, time.Date(2026, time.March, 3, 6, 30, 0, 0, time.UTC), r.Next())
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	r := NewRunner()
	require.NoError(t, r.Add("sweep", "*/30 * * * *", func(context.Context) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

type fakeSweeper struct {
	ages    []time.Duration
	removed int
}

func (f *fakeSweeper) Sweep(maxAge time.Duration) int {
	f.ages = append(f.ages, maxAge)
	return f.removed
}

type fakeRefresher struct {
	days []string
	err  error
}

func (f fakeRefresher) Refresh(context.Context) ([]string, error) { return f.days, f.err }

type fakeGate struct{ invalidated int }

func (g *fakeGate) Invalidate() { g.invalidated++ }

func TestSweepJob(t *testing.T) {
	contexts := &fakeSweeper{removed: 2}
	notified := &fakeSweeper{}
	job := SweepJob(contexts, func() time.Duration { return 6 * time.Hour }, notified, func() time.Duration { return 12 * time.Hour })

	require.NoError(t, job(context.Background()))
	assert.Equal(t, []time.Duration{6 * time.Hour}, contexts.ages)
	assert.Equal(t, []time.Duration{12 * time.Hour}, notified.ages)
}

func TestHolidayRefreshJob(t *testing.T) {
	gate := &fakeGate{}

	require.NoError(t, HolidayRefreshJob(fakeRefresher{days: []string{"2026-12-25"}}, gate)(context.Background()))
	assert.Equal(t, 1, gate.invalidated)

	err := HolidayRefreshJob(fakeRefresher{err: errors.New("status 503")}, gate)(context.Background())
	assert.ErrorContains(t, err, "503")
	assert.Equal(t, 2, gate.invalidated)
}
