package sessions

import (
	"slices"
	"sync"
	"time"

	"github.com/nextlevelbuilder/deskbot/internal/providers"
)

// DefaultMaxTurns bounds a conversation, system turn included.
const DefaultMaxTurns = 15

// Session is the rolling context of one chat.
type Session struct {
	ChatID          string
	Messages        []providers.Message // Messages[0] is always the system turn
	LastInteraction time.Time
	Pending         bool // a reply cycle is accumulating or in flight
}

// Store holds every live conversation in memory.
type Store struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	maxTurns int
	prompt   func() string
	now      func() time.Time
}

// NewStore creates a store. prompt is read whenever a conversation is
// created or reset, so prompt changes only affect new contexts.
func NewStore(maxTurns int, prompt func() string) *Store {
	if maxTurns < 2 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{
		sessions: make(map[string]*Session),
		maxTurns: maxTurns,
		prompt:   prompt,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) systemTurn() providers.Message {
	return providers.Message{Role: providers.RoleSystem, Content: s.prompt()}
}

// getOrCreateLocked must be called with mu held for writing.
func (s *Store) getOrCreateLocked(chatID string) *Session {
	if sess, ok := s.sessions[chatID]; ok {
		return sess
	}
	sess := &Session{
		ChatID:          chatID,
		Messages:        []providers.Message{s.systemTurn()},
		LastInteraction: s.now(),
	}
	s.sessions[chatID] = sess
	return sess
}

// GetOrCreate ensures a context exists for chatID. Idempotent.
func (s *Store) GetOrCreate(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(chatID)
}

// Append adds a turn and evicts the oldest non-system turns beyond the cap.
func (s *Store) Append(chatID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(chatID)
	sess.Messages = append(sess.Messages, providers.Message{Role: role, Content: content})
	sess.LastInteraction = s.now()

	if over := len(sess.Messages) - s.maxTurns; over > 0 {
		sess.Messages = slices.Delete(sess.Messages, 1, 1+over)
	}
}

// Turns returns a copy of the conversation, system turn first.
func (s *Store) Turns(chatID string) []providers.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		return nil
	}
	return slices.Clone(sess.Messages)
}

// SetPending marks whether a reply cycle is outstanding for chatID.
func (s *Store) SetPending(chatID string, pending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(chatID).Pending = pending
}

// IsPending reports the pending flag; unknown chats are not pending.
func (s *Store) IsPending(chatID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[chatID]
	return ok && sess.Pending
}

// PendingCount returns how many chats have a reply cycle outstanding.
func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.Pending {
			n++
		}
	}
	return n
}

// Reset replaces the conversation with a fresh system turn. The pending flag
// is kept so an in-flight cycle still releases normally.
func (s *Store) Reset(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(chatID)
	sess.Messages = []providers.Message{s.systemTurn()}
	sess.LastInteraction = s.now()
}

// Sweep removes idle conversations and returns how many were dropped.
// Pending chats are kept regardless of age.
func (s *Store) Sweep(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for id, sess := range s.sessions {
		if !sess.Pending && sess.LastInteraction.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
