package sessions

import (
	"sync"
	"time"
)

// NotifiedStore remembers which chats already received the out-of-hours
// notice, so each chat gets it at most once per expiry window.
type NotifiedStore struct {
	mu      sync.Mutex
	records map[string]time.Time
	now     func() time.Time
}

func NewNotifiedStore() *NotifiedStore {
	return &NotifiedStore{records: make(map[string]time.Time), now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (n *NotifiedStore) WithClock(now func() time.Time) *NotifiedStore {
	n.now = now
	return n
}

// MarkIfAbsent records chatID and returns true if it was not recorded yet.
// Exactly one of several concurrent callers wins.
func (n *NotifiedStore) MarkIfAbsent(chatID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.records[chatID]; ok {
		return false
	}
	n.records[chatID] = n.now()
	return true
}

// Clear forgets chatID.
func (n *NotifiedStore) Clear(chatID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.records, chatID)
}

// Has reports whether chatID is recorded.
func (n *NotifiedStore) Has(chatID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.records[chatID]
	return ok
}

// Sweep drops records older than maxAge and returns how many were dropped.
func (n *NotifiedStore) Sweep(maxAge time.Duration) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	cutoff := n.now().Add(-maxAge)
	removed := 0
	for id, at := range n.records {
		if at.Before(cutoff) {
			delete(n.records, id)
			removed++
		}
	}
	return removed
}

func (n *NotifiedStore) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.records)
}
