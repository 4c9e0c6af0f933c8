package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/deskbot/internal/bus"
	"github.com/nextlevelbuilder/deskbot/internal/config"
)

const (
	group    = "120363041234567890@g.us"
	operator = "34600999888@c.us"
	customer = "34600111222@c.us"
)

type recorder struct {
	mu        sync.Mutex
	customers []bus.InboundMessage
	commands  []string
	operators []string
	sent      []bus.OutboundMessage
	sendErr   error
}

func (r *recorder) HandleInbound(_ context.Context, msg bus.InboundMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers = append(r.customers, msg)
}

func (r *recorder) Handle(_ context.Context, operatorID, text string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, text)
	r.operators = append(r.operators, operatorID)
	return "ok: " + text
}

func (r *recorder) Send(_ context.Context, msg bus.OutboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.sendErr
}

func (r *recorder) customerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.customers)
}

var now = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

func newRouter(t *testing.T) (*Router, *recorder) {
	t.Helper()
	cfg := config.Default()
	cfg.Operators.IDs = config.FlexibleStringSlice{operator}
	cfg.Operators.CommandGroup = group

	rec := &recorder{}
	r := NewRouter(Options{
		Config:    cfg,
		Customers: rec,
		Commands:  rec,
		Sender:    rec,
	}).WithClock(func() time.Time { return now })
	return r, rec
}

func TestAdmit(t *testing.T) {
	tests := []struct {
		name string
		msg  bus.InboundMessage
		want Route
	}{
		{
			name: "customer direct message",
			msg:  bus.InboundMessage{ChatID: customer, SenderID: customer, Content: "Hola"},
			want: RouteCustomer,
		},
		{
			name: "other group",
			msg:  bus.InboundMessage{ChatID: "999@g.us", SenderID: customer, IsGroup: true, Content: "Hola"},
			want: RouteDrop,
		},
		{
			name: "stale message",
			msg:  bus.InboundMessage{ChatID: customer, SenderID: customer, Content: "Hola", Timestamp: now.Add(-61 * time.Second)},
			want: RouteDrop,
		},
		{
			name: "recent message",
			msg:  bus.InboundMessage{ChatID: customer, SenderID: customer, Content: "Hola", Timestamp: now.Add(-59 * time.Second)},
			want: RouteCustomer,
		},
		{
			name: "operator direct message",
			msg:  bus.InboundMessage{ChatID: operator, SenderID: operator, Content: "!estado"},
			want: RouteDrop,
		},
		{
			name: "own message outside group",
			msg:  bus.InboundMessage{ChatID: customer, SenderID: "me", FromMe: true, Content: "Hola"},
			want: RouteDrop,
		},
		{
			name: "operator command in group",
			msg:  bus.InboundMessage{ChatID: group, SenderID: operator, IsGroup: true, Content: "!estado"},
			want: RouteCommand,
		},
		{
			name: "own command in group",
			msg:  bus.InboundMessage{ChatID: group, SenderID: "34600000000@c.us", IsGroup: true, FromMe: true, Content: "!pausar"},
			want: RouteCommand,
		},
		{
			name: "non-operator command in group",
			msg:  bus.InboundMessage{ChatID: group, SenderID: customer, IsGroup: true, Content: "!activar"},
			want: RouteDrop,
		},
		{
			name: "chatter in group",
			msg:  bus.InboundMessage{ChatID: group, SenderID: operator, IsGroup: true, Content: "buenos días"},
			want: RouteDrop,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newRouter(t)
			got, _ := r.Admit(tt.msg)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdmitOperatorConfiguredAsBareNumber(t *testing.T) {
	r, _ := newRouter(t)
	r.cfg.Operators.IDs = config.FlexibleStringSlice{"34600999888"}

	route, _ := r.Admit(bus.InboundMessage{ChatID: group, SenderID: operator, IsGroup: true, Content: "!estado"})
	assert.Equal(t, RouteCommand, route)

	route, _ = r.Admit(bus.InboundMessage{ChatID: operator, SenderID: operator, Content: "hola"})
	assert.Equal(t, RouteDrop, route)
}

func TestAdmitDropsDuplicates(t *testing.T) {
	r, _ := newRouter(t)
	msg := bus.InboundMessage{MessageID: "ABC", ChatID: customer, SenderID: customer, Content: "Hola"}

	route, _ := r.Admit(msg)
	assert.Equal(t, RouteCustomer, route)
	route, reason := r.Admit(msg)
	assert.Equal(t, RouteDrop, route)
	assert.Equal(t, "duplicate", reason)
}

func TestDispatchCommandRepliesToGroup(t *testing.T) {
	r, rec := newRouter(t)

	r.Dispatch(context.Background(), bus.InboundMessage{
		Channel: "whatsapp", ChatID: group, SenderID: operator, IsGroup: true, Content: "!estado",
	})
	r.Dispatch(context.Background(), bus.InboundMessage{
		Channel: "whatsapp", ChatID: group, SenderID: "34600000000@c.us", IsGroup: true, FromMe: true, Content: "!pausar",
	})

	require.Len(t, rec.sent, 2)
	assert.Equal(t, group, rec.sent[0].ChatID)
	assert.Equal(t, "ok: !estado", rec.sent[0].Content)
	assert.Equal(t, []string{operator, operator}, rec.operators, "own messages act as the first operator")
	assert.Empty(t, rec.customers)
}

func TestDispatchCommandReplyFailureIsLogged(t *testing.T) {
	r, rec := newRouter(t)
	rec.sendErr = errors.New("bridge down")

	assert.NotPanics(t, func() {
		r.Dispatch(context.Background(), bus.InboundMessage{ChatID: group, SenderID: operator, IsGroup: true, Content: "!estado"})
	})
	assert.Len(t, rec.commands, 1)
}

func TestRunConsumesUntilCanceled(t *testing.T) {
	r, rec := newRouter(t)
	msgBus := bus.New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, msgBus) }()

	msgBus.PublishInbound(bus.InboundMessage{MessageID: "1", ChatID: customer, SenderID: customer, Content: "Hola"})
	msgBus.PublishInbound(bus.InboundMessage{MessageID: "1", ChatID: customer, SenderID: customer, Content: "Hola"})
	msgBus.PublishInbound(bus.InboundMessage{MessageID: "2", ChatID: customer, SenderID: customer, Content: "¿Tienen stock?"})

	require.Eventually(t, func() bool { return rec.customerCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
