// Package cron runs the gateway's periodic maintenance jobs on standard
// five-field cron expressions.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// JobFunc is one run of a periodic job.
type JobFunc func(ctx context.Context) error

type job struct {
	name string
	expr string
	fn   JobFunc
	next time.Time
}

// Runner fires registered jobs when their expression is due. Jobs run
// sequentially on the runner goroutine; a slow job delays the others.
type Runner struct {
	mu   sync.Mutex
	jobs []*job
	now  func() time.Time
}

func NewRunner() *Runner {
	return &Runner{now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Add registers fn under expr. Invalid expressions are rejected.
func (r *Runner) Add(name, expr string, fn JobFunc) error {
	if g := gronx.New(); !g.IsValid(expr) {
		return fmt.Errorf("cron job %s: invalid expression %q", name, expr)
	}
	next, err := gronx.NextTickAfter(expr, r.now(), false)
	if err != nil {
		return fmt.Errorf("cron job %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, &job{name: name, expr: expr, fn: fn, next: next})
	slog.Info("cron job registered", "job", name, "expr", expr, "next", next)
	return nil
}

// Next returns the earliest scheduled run, or the zero time with no jobs.
func (r *Runner) Next() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next time.Time
	for _, j := range r.jobs {
		if next.IsZero() || j.next.Before(next) {
			next = j.next
		}
	}
	return next
}

// Run fires jobs until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	for {
		next := r.Next()
		if next.IsZero() {
			<-ctx.Done()
			return nil
		}

		t := time.NewTimer(max(next.Sub(r.now()), 0))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		r.RunDue(ctx, r.now())
	}
}

// RunDue runs every job scheduled at or before at and reschedules it.
func (r *Runner) RunDue(ctx context.Context, at time.Time) int {
	r.mu.Lock()
	var due []*job
	for _, j := range r.jobs {
		if !j.next.After(at) {
			due = append(due, j)
		}
	}
	r.mu.Unlock()

	for _, j := range due {
		start := time.Now()
		if err := j.fn(ctx); err != nil {
			slog.Error("cron job failed", "job", j.name, "error", err)
		} else {
			slog.Debug("cron job finished", "job", j.name, "duration_ms", time.Since(start).Milliseconds())
		}

		next, err := gronx.NextTickAfter(j.expr, at, false)
		if err != nil {
			slog.Error("cron job reschedule failed, disabling", "job", j.name, "error", err)
			next = time.Time{}
		}
		r.mu.Lock()
		j.next = next
		if next.IsZero() {
			r.removeLocked(j)
		}
		r.mu.Unlock()
	}
	return len(due)
}

func (r *Runner) removeLocked(target *job) {
	for i, j := range r.jobs {
		if j == target {
			r.jobs = append(r.jobs[:i], r.jobs[i+1:]...)
			return
		}
	}
}
