package bus

import (
	"context"
	"time"
)

// InboundMessage represents a message received from a channel.
type InboundMessage struct {
	Channel   string            `json:"channel"`
	MessageID string            `json:"message_id,omitempty"` // transport id, used for dedupe
	SenderID  string            `json:"sender_id"`            // author; differs from ChatID in groups
	ChatID    string            `json:"chat_id"`
	Content   string            `json:"content"`
	IsGroup   bool              `json:"is_group,omitempty"`
	FromMe    bool              `json:"from_me,omitempty"` // sent by the bot's own account
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"` // channel-specific metadata
}

// InboundRouter abstracts the hand-off between channels and the consumer loop.
type InboundRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
}
