// Package gateway admits inbound bridge traffic and routes it either to the
// operator command dispatcher or to the customer reply pipeline.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/deskbot/internal/bus"
	"github.com/nextlevelbuilder/deskbot/internal/channels"
	"github.com/nextlevelbuilder/deskbot/internal/commands"
	"github.com/nextlevelbuilder/deskbot/internal/config"
)

// Route is the admission verdict for one inbound message.
type Route int

const (
	RouteDrop Route = iota
	RouteCommand
	RouteCustomer
)

func (r Route) String() string {
	switch r {
	case RouteCommand:
		return "command"
	case RouteCustomer:
		return "customer"
	default:
		return "drop"
	}
}

// Customers handles admitted customer messages. *agent.Orchestrator satisfies it.
type Customers interface {
	HandleInbound(ctx context.Context, msg bus.InboundMessage)
}

// Commands answers operator commands. *commands.Dispatcher satisfies it.
type Commands interface {
	Handle(ctx context.Context, operatorID, text string) string
}

// Sender delivers command replies. *channels.Manager satisfies it.
type Sender interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// Options wires a Router.
type Options struct {
	Config    *config.Config
	Customers Customers
	Commands  Commands
	Sender    Sender
	Dedupe    *bus.DedupeCache // nil = bus defaults
}

// Router applies the admission rules to inbound messages and hands each
// admitted one to its handler.
type Router struct {
	cfg       *config.Config
	customers Customers
	commands  Commands
	sender    Sender
	dedupe    *bus.DedupeCache
	now       func() time.Time
}

func NewRouter(o Options) *Router {
	dedupe := o.Dedupe
	if dedupe == nil {
		dedupe = bus.NewDedupeCache(bus.DefaultDedupeTTL, bus.DefaultDedupeEntries)
	}
	return &Router{
		cfg:       o.Config,
		customers: o.Customers,
		commands:  o.Commands,
		sender:    o.Sender,
		dedupe:    dedupe,
		now:       time.Now,
	}
}

// WithClock replaces the time source used for the message age check. Intended for tests.
func (r *Router) WithClock(now func() time.Time) *Router {
	r.now = now
	return r
}

// Admit classifies msg without side effects other than recording its id
// for deduplication.
func (r *Router) Admit(msg bus.InboundMessage) (Route, string) {
	if r.dedupe.Seen(msg.MessageID) {
		return RouteDrop, "duplicate"
	}

	maxAge := r.cfg.SessionSettings().MaxMessageAge()
	if maxAge > 0 && !msg.Timestamp.IsZero() && r.now().Sub(msg.Timestamp) > maxAge {
		return RouteDrop, "stale"
	}

	group := r.cfg.OperatorSettings().CommandGroup
	inCommandGroup := group != "" && msg.ChatID == group

	if inCommandGroup {
		if !commands.IsCommand(msg.Content) {
			return RouteDrop, "command group chatter"
		}
		if msg.FromMe || r.cfg.IsOperator(msg.SenderID) {
			return RouteCommand, ""
		}
		return RouteDrop, "command from non-operator"
	}

	switch {
	case msg.IsGroup:
		return RouteDrop, "group"
	case msg.FromMe:
		return RouteDrop, "own message"
	case r.cfg.IsOperator(msg.SenderID):
		return RouteDrop, "operator outside command group"
	}
	return RouteCustomer, ""
}

// Dispatch admits msg and runs its handler.
func (r *Router) Dispatch(ctx context.Context, msg bus.InboundMessage) {
	route, reason := r.Admit(msg)
	switch route {
	case RouteDrop:
		slog.Debug("inbound: dropped", "chat_id", msg.ChatID, "sender_id", msg.SenderID, "reason", reason)

	case RouteCommand:
		r.runCommand(ctx, msg)

	case RouteCustomer:
		slog.Info("inbound: message received",
			"chat_id", msg.ChatID,
			"preview", channels.Truncate(msg.Content, 50),
		)
		r.customers.HandleInbound(ctx, msg)
	}
}

func (r *Router) runCommand(ctx context.Context, msg bus.InboundMessage) {
	operatorID := msg.SenderID
	if msg.FromMe || !r.cfg.IsOperator(operatorID) {
		if ids := r.cfg.OperatorSettings().IDs; len(ids) > 0 {
			operatorID = ids[0]
		}
	}

	reply := r.commands.Handle(ctx, operatorID, msg.Content)
	err := r.sender.Send(ctx, bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply,
	})
	if err != nil {
		slog.Error("command reply failed", "chat_id", msg.ChatID, "error", err)
	}
}

// Run consumes the bus until ctx is done.
func (r *Router) Run(ctx context.Context, msgBus *bus.MessageBus) error {
	slog.Info("inbound message consumer started")
	for {
		msg, ok := msgBus.ConsumeInbound(ctx)
		if !ok {
			slog.Info("inbound message consumer stopped")
			return nil
		}
		r.Dispatch(ctx, msg)
	}
}
