// Package protocol defines the JSON frames exchanged with the WhatsApp bridge
// over WebSocket.
package protocol

// ProtocolVersion is sent in the hello frame and checked against the bridge's.
const ProtocolVersion = 1

// Frame types.
const (
	FrameHello   = "hello"   // client -> bridge, first frame after connect
	FrameMessage = "message" // both directions
	FrameStatus  = "status"  // bridge -> client, session state changes
	FrameError   = "error"   // bridge -> client, failed send or protocol error
)

// Bridge session states carried by status frames.
const (
	StatusReady        = "ready"
	StatusQR           = "qr"
	StatusDisconnected = "disconnected"
)

// Frame is the envelope for every bridge message. Fields not relevant to a
// frame type are omitted.
type Frame struct {
	Type    string `json:"type"`
	Version int    `json:"version,omitempty"`

	// message (inbound)
	ID        string `json:"id,omitempty"`
	From      string `json:"from,omitempty"`      // author; participant id in groups
	Chat      string `json:"chat,omitempty"`      // conversation id, "...@c.us" or "...@g.us"
	FromName  string `json:"from_name,omitempty"` // push name
	FromMe    bool   `json:"from_me,omitempty"`   // authored by the bridge's own account
	Timestamp int64  `json:"timestamp,omitempty"` // unix seconds

	// message (outbound)
	To string `json:"to,omitempty"`

	Content string `json:"content,omitempty"`

	// status / error
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewHello builds the first frame a client sends.
func NewHello() Frame {
	return Frame{Type: FrameHello, Version: ProtocolVersion}
}

// NewOutbound builds a send request for the bridge.
func NewOutbound(to, content string) Frame {
	return Frame{Type: FrameMessage, To: to, Content: content}
}
