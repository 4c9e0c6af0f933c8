// Package agent runs the per-chat reply pipeline: business-hours gating,
// message batching, the AI call and the delayed send.
package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/deskbot/internal/bus"
	"github.com/nextlevelbuilder/deskbot/internal/channels"
	"github.com/nextlevelbuilder/deskbot/internal/config"
	"github.com/nextlevelbuilder/deskbot/internal/delay"
	"github.com/nextlevelbuilder/deskbot/internal/hours"
	"github.com/nextlevelbuilder/deskbot/internal/providers"
	"github.com/nextlevelbuilder/deskbot/internal/sessions"
	"github.com/nextlevelbuilder/deskbot/internal/tracing"
)

// Sender delivers outbound messages. *channels.Manager satisfies it.
type Sender interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// Gate decides whether traffic is served now. *hours.Gate satisfies it.
type Gate interface {
	Evaluate(ctx context.Context) hours.Decision
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options wires an Orchestrator.
type Options struct {
	Config   *config.Config
	Gate     Gate
	Sessions *sessions.Store
	Notified *sessions.NotifiedStore
	Delays   *delay.Simulator
	Provider providers.Provider
	Sender   Sender
	Channel  string // outbound channel name

	Quiet  time.Duration // batching quiet period; 0 = Delays.GroupingSec
	Sleep  SleepFunc     // nil = real timers
	Tracer trace.Tracer  // nil = process tracer
}

// Orchestrator owns the per-chat state machine
// Idle -> Gated | Accumulating -> AwaitingReply -> Idle.
type Orchestrator struct {
	cfg      *config.Config
	gate     Gate
	sessions *sessions.Store
	notified *sessions.NotifiedStore
	delays   *delay.Simulator
	provider providers.Provider
	sender   Sender
	channel  string
	sleep    SleepFunc
	tracer   trace.Tracer

	agg   *bus.Aggregator
	locks *chatLocks

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates an orchestrator. Background work (deflection notices, reply
// cycles) is bound to ctx and to Stop.
func New(ctx context.Context, o Options) *Orchestrator {
	quiet := o.Quiet
	if quiet <= 0 {
		quiet = time.Duration(o.Config.DelaySettings().GroupingSec) * time.Second
	}
	sleep := o.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	tracer := o.Tracer
	if tracer == nil {
		tracer = tracing.Tracer()
	}
	channel := o.Channel
	if channel == "" {
		channel = "whatsapp"
	}

	orc := &Orchestrator{
		cfg:      o.Config,
		gate:     o.Gate,
		sessions: o.Sessions,
		notified: o.Notified,
		delays:   o.Delays,
		provider: o.Provider,
		sender:   o.Sender,
		channel:  channel,
		sleep:    sleep,
		tracer:   tracer,
		locks:    newChatLocks(),
	}
	orc.ctx, orc.cancel = context.WithCancel(ctx)
	orc.agg = bus.NewAggregator(quiet, orc.onBatch)
	return orc
}

var _ Sender = (*channels.Manager)(nil)

// HandleInbound routes one admitted customer message through the state machine.
func (o *Orchestrator) HandleInbound(ctx context.Context, msg bus.InboundMessage) {
	chatID := msg.ChatID

	unlock := o.locks.Lock(chatID)
	defer unlock()

	// Accumulating or AwaitingReply: no state change.
	if o.sessions.IsPending(chatID) {
		if o.agg.Join(chatID, msg.Content) {
			slog.Debug("message joined current batch", "chat_id", chatID)
		} else {
			slog.Info("reply in flight, message held for next cycle", "chat_id", chatID)
		}
		return
	}

	if d := o.gate.Evaluate(ctx); !d.IsOpen() {
		o.deflect(chatID, d)
		return
	}

	if !o.cfg.Enabled() && !o.isTestChat(chatID) {
		slog.Debug("bot paused, message ignored", "chat_id", chatID)
		return
	}

	o.sessions.GetOrCreate(chatID)
	o.agg.Offer(chatID, msg.Content)
	o.sessions.SetPending(chatID, true)
}

func (o *Orchestrator) isTestChat(chatID string) bool {
	test := o.cfg.OperatorSettings().TestNumber
	return test != "" && sessions.ChatID(test) == chatID
}

// deflect sends the out-of-hours notice once per episode. The notification
// record is reserved before the delayed send so concurrent contacts cannot
// trigger a second notice; a failed send clears it so a later contact retries.
func (o *Orchestrator) deflect(chatID string, d hours.Decision) {
	if !o.notified.MarkIfAbsent(chatID) {
		slog.Debug("out of hours, already notified", "chat_id", chatID, "reason", d)
		return
	}
	if !o.track() {
		o.notified.Clear(chatID)
		return
	}

	wait := o.delays.AutoReply()
	slog.Info("out of hours, scheduling notice", "chat_id", chatID, "reason", d, "delay", wait)

	go func() {
		defer o.wg.Done()
		if err := o.sleep(o.ctx, wait); err != nil {
			o.notified.Clear(chatID)
			return
		}
		if err := o.send(o.ctx, chatID, o.cfg.OutOfHoursMessage()); err != nil {
			slog.Error("out-of-hours notice failed", "chat_id", chatID, "error", err)
			o.notified.Clear(chatID)
		}
	}()
}

// onBatch is the aggregator callback: the chat moves to AwaitingReply.
func (o *Orchestrator) onBatch(chatID string, texts []string) {
	if !o.track() {
		return
	}
	defer o.wg.Done()

	o.replyCycle(o.ctx, chatID, texts)
	o.release(chatID)
}

// release ends a cycle. Messages held while the reply was in flight start
// the next cycle; otherwise the chat goes back to Idle.
func (o *Orchestrator) release(chatID string) {
	unlock := o.locks.Lock(chatID)
	defer unlock()

	if o.agg.Arm(chatID) {
		slog.Info("held messages start a new cycle", "chat_id", chatID)
		return
	}
	o.sessions.SetPending(chatID, false)
}

func (o *Orchestrator) send(ctx context.Context, chatID, content string) error {
	return o.sender.Send(ctx, bus.OutboundMessage{
		Channel: o.channel,
		ChatID:  chatID,
		Content: content,
	})
}

// ResetChat drops the chat's conversation history and out-of-hours record.
func (o *Orchestrator) ResetChat(chatID string) {
	unlock := o.locks.Lock(chatID)
	defer unlock()

	o.sessions.Reset(chatID)
	o.notified.Clear(chatID)
}

// PendingBatches returns how many chats have messages waiting to be answered.
func (o *Orchestrator) PendingBatches() int {
	return o.agg.Len()
}

// track registers background work unless the orchestrator is stopping.
func (o *Orchestrator) track() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.wg.Add(1)
	return true
}

// Stop cancels pending timers and in-flight waits, then waits for
// background work to return.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.agg.Stop()
	o.wg.Wait()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
