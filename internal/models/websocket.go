package models

import "encoding/json"

type MessageType string

// Inbound message types.
const (
	MessageTypeSessionToken    MessageType = "session-token"
	MessageTypeHeartbeatConfig MessageType = "heartbeat-config"
	MessageTypePong            MessageType = "pong"
	MessageTypeHistory         MessageType = "history"
	MessageTypeChat            MessageType = "chat"
	MessageTypeSystem          MessageType = "system"
)

// Outbound message types. Chat is shared with the inbound side.
const (
	MessageTypePing MessageType = "ping"
	// MessageTypeMessage is the pre-token legacy chat envelope.
	MessageTypeMessage MessageType = "message"
)

// Envelope is the union of every field the server may send.
type Envelope struct {
	Type      MessageType       `json:"type"`
	Token     string            `json:"token,omitempty"`
	Interval  *int64            `json:"interval,omitempty"`
	Messages  []json.RawMessage `json:"messages,omitempty"`
	Username  *string           `json:"username,omitempty"`
	Text      string            `json:"text,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
}

// OutboundMessage is what the client writes to the socket.
type OutboundMessage struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content,omitempty"`
	Token   string      `json:"token,omitempty"`
}
