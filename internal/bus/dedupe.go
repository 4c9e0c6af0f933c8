package bus

import (
	"sync"
	"time"
)

// Defaults for inbound message-id deduplication.
const (
	DefaultDedupeTTL     = 20 * time.Minute
	DefaultDedupeEntries = 5000
)

// DedupeCache remembers recently seen message ids so a bridge replaying
// history after a reconnect does not trigger a second reply.
type DedupeCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	max   int
	seen  map[string]time.Time
	order []string // insertion order, oldest first
	now   func() time.Time
}

func NewDedupeCache(ttl time.Duration, maxEntries int) *DedupeCache {
	return &DedupeCache{
		ttl:  ttl,
		max:  maxEntries,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Seen records id and reports whether it was already recorded within the TTL.
// An empty id is never considered a duplicate.
func (d *DedupeCache) Seen(id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.evictLocked(now)

	if at, ok := d.seen[id]; ok && now.Sub(at) < d.ttl {
		return true
	}
	d.seen[id] = now
	d.order = append(d.order, id)
	for len(d.seen) > d.max && len(d.order) > 0 {
		delete(d.seen, d.order[0])
		d.order = d.order[1:]
	}
	return false
}

func (d *DedupeCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *DedupeCache) evictLocked(now time.Time) {
	for len(d.order) > 0 {
		id := d.order[0]
		if now.Sub(d.seen[id]) < d.ttl {
			return
		}
		delete(d.seen, id)
		d.order = d.order[1:]
	}
}
