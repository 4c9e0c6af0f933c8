package bus

import (
	"log/slog"
	"sync"
	"time"
)

// FlushFunc receives the ordered texts of a batch once its quiet period ends.
type FlushFunc func(chatID string, texts []string)

// Aggregator accumulates message bodies per chat and flushes them after a
// quiet period with no new messages.
//
// A batch is either armed (its quiet-period timer is running) or held
// (collected while a reply is in flight, waiting to be armed for the next
// cycle).
type Aggregator struct {
	quiet  time.Duration
	flush  FlushFunc
	timers *Timers

	mu      sync.Mutex
	batches map[string]*batch
}

type batch struct {
	texts []string
	armed bool
}

func NewAggregator(quiet time.Duration, flush FlushFunc) *Aggregator {
	return &Aggregator{
		quiet:   quiet,
		flush:   flush,
		timers:  NewTimers(),
		batches: make(map[string]*batch),
	}
}

// Offer appends text to the chat's batch and restarts its quiet period.
func (a *Aggregator) Offer(chatID, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b := a.batchLocked(chatID)
	b.texts = append(b.texts, text)
	a.armLocked(chatID, b)

	slog.Debug("aggregator: message buffered", "chat_id", chatID, "buffered", len(b.texts))
}

// Join adds text for a chat that already has a reply cycle outstanding. If
// the chat's batch is still armed the text is debounced into it and Join
// returns true. Otherwise the reply is in flight: the text is held for the
// next cycle and Join returns false.
func (a *Aggregator) Join(chatID, text string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	b := a.batchLocked(chatID)
	b.texts = append(b.texts, text)
	if b.armed {
		a.armLocked(chatID, b)
		return true
	}
	slog.Debug("aggregator: message held for next cycle", "chat_id", chatID, "held", len(b.texts))
	return false
}

// Arm starts the quiet period of a held batch. Reports false when nothing is held.
func (a *Aggregator) Arm(chatID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.batches[chatID]
	if !ok || len(b.texts) == 0 {
		return false
	}
	a.armLocked(chatID, b)
	return true
}

// Drain removes and returns the chat's batch without flushing it.
func (a *Aggregator) Drain(chatID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.batches[chatID]
	if !ok {
		return nil
	}
	delete(a.batches, chatID)
	a.timers.Cancel(chatID)
	return b.texts
}

// Len returns the number of chats with a batch, armed or held.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.batches)
}

// Stop cancels every quiet-period timer. Buffered texts are discarded.
func (a *Aggregator) Stop() {
	a.timers.Stop()

	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.batches)
}

func (a *Aggregator) batchLocked(chatID string) *batch {
	b, ok := a.batches[chatID]
	if !ok {
		b = &batch{}
		a.batches[chatID] = b
	}
	return b
}

func (a *Aggregator) armLocked(chatID string, b *batch) {
	b.armed = true
	a.timers.Schedule(chatID, a.quiet, func() { a.fire(chatID) })
}

// fire takes ownership of the batch under the lock, then flushes outside it
// so texts arriving during the flush start a new batch.
func (a *Aggregator) fire(chatID string) {
	a.mu.Lock()
	b, ok := a.batches[chatID]
	if !ok || !b.armed || len(b.texts) == 0 {
		a.mu.Unlock()
		return
	}
	delete(a.batches, chatID)
	a.mu.Unlock()

	if len(b.texts) > 1 {
		slog.Info("aggregator: merged messages", "chat_id", chatID, "count", len(b.texts))
	}
	a.flush(chatID, b.texts)
}
