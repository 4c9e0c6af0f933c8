package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

// counter returns a RefreshFunc that yields 1, 2, 3... or fails while *fail is set.
func counter(calls *int, fail *bool) RefreshFunc[int] {
	return func(context.Context) (int, error) {
		if *fail {
			return 0, errors.New("source down")
		}
		*calls++
		return *calls, nil
	}
}

func TestTTL_ServesCachedValueUntilExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	calls, fail := 0, false
	c := NewTTL("test", 5*time.Minute, counter(&calls, &fail)).WithClock(clock.Now)
	ctx := context.Background()

	v, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	clock.Advance(4*time.Minute + 59*time.Second)
	v, _ = c.Get(ctx)
	assert.Equal(t, 1, v, "still fresh")

	clock.Advance(time.Second)
	v, _ = c.Get(ctx)
	assert.Equal(t, 2, v, "expiry is exclusive")
	assert.Equal(t, 2, calls)
}

func TestTTL_FailedRefreshFallsBackToPrevious(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	calls, fail := 0, false
	c := NewTTL("test", time.Minute, counter(&calls, &fail)).WithClock(clock.Now)
	ctx := context.Background()

	_, err := c.Get(ctx)
	require.NoError(t, err)

	fail = true
	clock.Advance(2 * time.Minute)
	v, err := c.Get(ctx)
	require.NoError(t, err, "refresh errors are not raised when a previous value exists")
	assert.Equal(t, 1, v)

	fail = false
	v, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v, "expiry untouched after failure, so the next Get retries")
}

func TestTTL_FailedRefreshWithoutPreviousValue(t *testing.T) {
	calls, fail := 0, true
	c := NewTTL("test", time.Minute, counter(&calls, &fail))

	v, err := c.Get(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoValue)
	assert.Contains(t, err.Error(), "source down")
	assert.Zero(t, v)
}

func TestTTL_InvalidateForcesRefresh(t *testing.T) {
	calls, fail := 0, false
	c := NewTTL("test", time.Hour, counter(&calls, &fail))
	ctx := context.Background()

	c.Get(ctx)
	c.Invalidate()
	v, _ := c.Get(ctx)
	assert.Equal(t, 2, v)
}

func TestTTL_RefreshReportsErrorAndKeepsValue(t *testing.T) {
	calls, fail := 0, false
	c := NewTTL("test", time.Hour, counter(&calls, &fail))
	ctx := context.Background()

	c.Get(ctx)
	fail = true
	v, err := c.Refresh(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, v)

	v, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v, "previous value still fresh after a failed forced refresh")
}

func TestTTL_SetAndPeek(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := NewTTL[string]("test", time.Minute, nil).WithClock(clock.Now)

	_, ok := c.Peek()
	assert.False(t, ok)

	c.Set("open")
	v, ok := c.Peek()
	assert.True(t, ok)
	assert.Equal(t, "open", v)

	clock.Advance(time.Minute)
	_, ok = c.Peek()
	assert.False(t, ok)
}
