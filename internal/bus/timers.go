package bus

import (
	"sync"
	"time"
)

// Timers runs at most one delayed callback per key. Scheduling a key again
// cancels the previous callback for that key.
type Timers struct {
	mu      sync.Mutex
	entries map[string]*timerEntry
	seq     uint64
	stopped bool
}

type timerEntry struct {
	timer *time.Timer
	id    uint64
}

func NewTimers() *Timers {
	return &Timers{entries: make(map[string]*timerEntry)}
}

// Schedule arranges for fn to run after delay unless the key is rescheduled
// or canceled first. A callback whose timer was superseded never runs, even
// if its timer had already fired.
func (t *Timers) Schedule(key string, delay time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}

	if prev, ok := t.entries[key]; ok {
		prev.timer.Stop()
	}
	t.seq++
	id := t.seq
	entry := &timerEntry{id: id}
	entry.timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		cur, ok := t.entries[key]
		if !ok || cur.id != id {
			t.mu.Unlock()
			return
		}
		delete(t.entries, key)
		t.mu.Unlock()
		fn()
	})
	t.entries[key] = entry
}

// Cancel stops the callback for key. Reports whether one was scheduled.
func (t *Timers) Cancel(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(t.entries, key)
	return true
}

// Pending reports whether key has a scheduled callback.
func (t *Timers) Pending(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key]
	return ok
}

// Len returns the number of scheduled callbacks.
func (t *Timers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Stop cancels everything and rejects further scheduling.
func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, entry := range t.entries {
		entry.timer.Stop()
		delete(t.entries, key)
	}
	t.stopped = true
}
