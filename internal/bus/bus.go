// Package bus carries inbound traffic from channels to the consumer loop and
// batches rapid messages per chat before they are answered.
package bus

import (
	"context"
	"log/slog"
)

const defaultInboundBuffer = 256

// MessageBus is a buffered single-consumer inbound queue.
type MessageBus struct {
	inbound chan InboundMessage
}

func New() *MessageBus {
	return NewWithBuffer(defaultInboundBuffer)
}

func NewWithBuffer(size int) *MessageBus {
	return &MessageBus{inbound: make(chan InboundMessage, size)}
}

// PublishInbound enqueues msg. When the buffer is full the message is dropped
// and logged rather than blocking the channel's read loop.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	default:
		slog.Warn("inbound queue full, dropping message", "channel", msg.Channel, "chat_id", msg.ChatID)
	}
}

// ConsumeInbound blocks until a message arrives or ctx is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}
