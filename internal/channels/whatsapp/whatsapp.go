package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/deskbot/internal/bus"
	"github.com/nextlevelbuilder/deskbot/internal/channels"
	"github.com/nextlevelbuilder/deskbot/internal/config"
	"github.com/nextlevelbuilder/deskbot/internal/sessions"
	"github.com/nextlevelbuilder/deskbot/pkg/protocol"
)

// ChannelName is the registration name of the WhatsApp channel.
const ChannelName = "whatsapp"

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// ErrNotConnected is returned by Send while the bridge is unreachable.
var ErrNotConnected = errors.New("whatsapp bridge not connected")

// Channel connects to a WhatsApp bridge via WebSocket.
// The bridge (e.g. whatsapp-web.js based) handles the actual WhatsApp
// protocol; this channel just sends/receives JSON frames over WS.
type Channel struct {
	*channels.BaseChannel
	conn      *websocket.Conn
	config    config.WhatsAppConfig
	mu        sync.Mutex
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	onReady   func()
	readyOnce sync.Once
}

// New creates a new WhatsApp channel from config.
func New(cfg config.WhatsAppConfig, router bus.InboundRouter) (*Channel, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridge_url is required")
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel(ChannelName, router),
		config:      cfg,
	}, nil
}

// OnReady registers fn to run the first time the bridge reports a ready
// session. Must be called before Start.
func (c *Channel) OnReady(fn func()) {
	c.onReady = fn
}

// Start connects to the WhatsApp bridge WebSocket and begins listening.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel", "bridge_url", c.config.BridgeURL)

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	if err := c.connect(); err != nil {
		// Don't fail hard — reconnect loop will keep trying
		slog.Warn("initial whatsapp bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop()

	c.SetRunning(true)
	return nil
}

// Stop gracefully shuts down the WhatsApp channel.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp channel")

	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.mu.Unlock()

	if c.done != nil {
		<-c.done
	}
	c.SetRunning(false)
	return nil
}

// IsConnected reports whether the bridge socket is currently open.
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send delivers an outbound message to the WhatsApp bridge.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	return c.writeFrame(protocol.NewOutbound(msg.ChatID, msg.Content))
}

func (c *Channel) writeFrame(f protocol.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal whatsapp frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send whatsapp %s frame: %w", f.Type, err)
	}
	return nil
}

// connect establishes the WebSocket connection to the bridge and says hello.
func (c *Channel) connect() error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(c.ctx, c.config.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.config.BridgeURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.writeFrame(protocol.NewHello()); err != nil {
		slog.Warn("whatsapp hello failed", "error", err)
	}

	slog.Info("whatsapp bridge connected", "url", c.config.BridgeURL)
	return nil
}

func (c *Channel) dropConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

// listenLoop reads frames from the bridge with automatic reconnection.
func (c *Channel) listenLoop() {
	defer close(c.done)
	defer c.dropConn()
	backoff := initialBackoff

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			// Not connected — attempt reconnect with backoff
			slog.Info("attempting whatsapp bridge reconnect", "backoff", backoff)

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}

			if err := c.connect(); err != nil {
				slog.Warn("whatsapp bridge reconnect failed", "error", err)
				backoff = min(backoff*2, maxBackoff)
				continue
			}

			backoff = initialBackoff // reset on success
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				slog.Warn("whatsapp read error, will reconnect", "error", err)
			}
			c.dropConn()
			continue
		}

		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("invalid whatsapp frame JSON", "error", err)
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *Channel) handleFrame(f protocol.Frame) {
	switch f.Type {
	case protocol.FrameMessage:
		c.handleIncomingMessage(f)
	case protocol.FrameStatus:
		c.handleStatus(f)
	case protocol.FrameHello:
		if f.Version != 0 && f.Version != protocol.ProtocolVersion {
			slog.Warn("whatsapp bridge protocol mismatch", "bridge", f.Version, "client", protocol.ProtocolVersion)
		}
	case protocol.FrameError:
		slog.Error("whatsapp bridge error", "error", f.Error)
	default:
		slog.Debug("ignoring whatsapp frame", "type", f.Type)
	}
}

func (c *Channel) handleStatus(f protocol.Frame) {
	switch f.Status {
	case protocol.StatusReady:
		slog.Info("whatsapp session ready")
		if c.onReady != nil {
			c.readyOnce.Do(c.onReady)
		}
	case protocol.StatusQR:
		slog.Warn("whatsapp session needs pairing, scan the QR code on the bridge")
	case protocol.StatusDisconnected:
		slog.Warn("whatsapp session disconnected", "reason", f.Error)
	default:
		slog.Debug("whatsapp status", "status", f.Status)
	}
}

// handleIncomingMessage converts a bridge message frame into an InboundMessage.
func (c *Channel) handleIncomingMessage(f protocol.Frame) {
	chatID := f.Chat
	if chatID == "" {
		chatID = f.From
	}
	if chatID == "" {
		return
	}
	senderID := f.From
	if senderID == "" {
		senderID = chatID
	}

	ts := time.Now()
	if f.Timestamp > 0 {
		ts = time.Unix(f.Timestamp, 0)
	}

	metadata := make(map[string]string)
	if f.FromName != "" {
		metadata["user_name"] = f.FromName
	}

	slog.Debug("whatsapp message received",
		"sender_id", senderID,
		"chat_id", chatID,
		"preview", channels.Truncate(f.Content, 50),
	)

	c.HandleMessage(bus.InboundMessage{
		MessageID: f.ID,
		SenderID:  senderID,
		ChatID:    chatID,
		Content:   f.Content,
		IsGroup:   sessions.IsGroup(chatID),
		FromMe:    f.FromMe,
		Timestamp: ts,
		Metadata:  metadata,
	})
}
