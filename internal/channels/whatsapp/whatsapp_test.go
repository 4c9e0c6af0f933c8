package whatsapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/deskbot/internal/bus"
	"github.com/nextlevelbuilder/deskbot/internal/config"
	"github.com/nextlevelbuilder/deskbot/pkg/protocol"
)

// bridgeStub accepts one client and exposes its socket to the test.
type bridgeStub struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
}

func newBridgeStub(t *testing.T) *bridgeStub {
	t.Helper()
	b := &bridgeStub{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		b.conns <- conn
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *bridgeStub) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *bridgeStub) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-b.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
		return nil
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()
	var f protocol.Frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func startChannel(t *testing.T, bridge *bridgeStub, msgBus *bus.MessageBus) *Channel {
	t.Helper()
	ch, err := New(config.WhatsAppConfig{Enabled: true, BridgeURL: bridge.url()}, msgBus)
	require.NoError(t, err)
	return ch
}

func TestNew_RequiresBridgeURL(t *testing.T) {
	_, err := New(config.WhatsAppConfig{Enabled: true}, bus.New())
	assert.Error(t, err)
}

func TestChannel_ReceivesAndSends(t *testing.T) {
	bridge := newBridgeStub(t)
	msgBus := bus.New()
	ch := startChannel(t, bridge, msgBus)

	ready := make(chan struct{})
	ch.OnReady(func() { close(ready) })

	require.NoError(t, ch.Start(context.Background()))
	defer ch.Stop(context.Background())

	conn := bridge.accept(t)
	hello := readFrame(t, conn)
	assert.Equal(t, protocol.FrameHello, hello.Type)
	assert.Equal(t, protocol.ProtocolVersion, hello.Version)
	assert.True(t, ch.IsRunning())

	require.NoError(t, conn.WriteJSON(protocol.Frame{Type: protocol.FrameStatus, Status: protocol.StatusReady}))
	require.NoError(t, conn.WriteJSON(protocol.Frame{Type: protocol.FrameStatus, Status: protocol.StatusReady}))
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("ready callback not invoked")
	}

	require.NoError(t, conn.WriteJSON(protocol.Frame{
		Type:      protocol.FrameMessage,
		ID:        "ABC123",
		From:      "34600111222@c.us",
		Chat:      "34600111222@c.us",
		FromName:  "Ana",
		Content:   "Hola, ¿tenéis stock?",
		Timestamp: 1772445600,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, ok := msgBus.ConsumeInbound(ctx)
	require.True(t, ok)
	assert.Equal(t, ChannelName, msg.Channel)
	assert.Equal(t, "ABC123", msg.MessageID)
	assert.Equal(t, "34600111222@c.us", msg.ChatID)
	assert.Equal(t, "Hola, ¿tenéis stock?", msg.Content)
	assert.False(t, msg.IsGroup)
	assert.Equal(t, time.Unix(1772445600, 0), msg.Timestamp)
	assert.Equal(t, "Ana", msg.Metadata["user_name"])

	require.NoError(t, ch.Send(context.Background(), bus.OutboundMessage{
		Channel: ChannelName,
		ChatID:  "34600111222@c.us",
		Content: "Sí, nos queda stock.",
	}))
	out := readFrame(t, conn)
	assert.Equal(t, protocol.FrameMessage, out.Type)
	assert.Equal(t, "34600111222@c.us", out.To)
	assert.Equal(t, "Sí, nos queda stock.", out.Content)
}

func TestChannel_GroupMessage(t *testing.T) {
	bridge := newBridgeStub(t)
	msgBus := bus.New()
	ch := startChannel(t, bridge, msgBus)
	require.NoError(t, ch.Start(context.Background()))
	defer ch.Stop(context.Background())

	conn := bridge.accept(t)
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(protocol.Frame{
		Type:    protocol.FrameMessage,
		From:    "34600333444@c.us",
		Chat:    "120363041234567890@g.us",
		FromMe:  true,
		Content: "!estado",
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, ok := msgBus.ConsumeInbound(ctx)
	require.True(t, ok)
	assert.True(t, msg.IsGroup)
	assert.True(t, msg.FromMe)
	assert.Equal(t, "34600333444@c.us", msg.SenderID)
	assert.WithinDuration(t, time.Now(), msg.Timestamp, 5*time.Second)
}

func TestChannel_SendWhileDisconnected(t *testing.T) {
	ch, err := New(config.WhatsAppConfig{Enabled: true, BridgeURL: "ws://127.0.0.1:1"}, bus.New())
	require.NoError(t, err)

	err = ch.Send(context.Background(), bus.OutboundMessage{ChatID: "1@c.us", Content: "hola"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestChannel_ReconnectsAfterBridgeDrop(t *testing.T) {
	bridge := newBridgeStub(t)
	ch := startChannel(t, bridge, bus.New())
	require.NoError(t, ch.Start(context.Background()))
	defer ch.Stop(context.Background())

	first := bridge.accept(t)
	readFrame(t, first)
	first.Close()

	second := bridge.accept(t)
	assert.Equal(t, protocol.FrameHello, readFrame(t, second).Type)
	assert.Eventually(t, ch.IsConnected, 2*time.Second, 10*time.Millisecond)
}
