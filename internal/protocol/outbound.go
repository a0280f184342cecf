package protocol

import (
	"encoding/json"

	"chat-client/internal/models"
)

// RosterRequest is the chat command that makes the server answer with an
// "Online users:" snapshot.
const RosterRequest = "/list"

// Outbound is a client intent ready to be written to the socket.
type Outbound struct {
	Type    models.MessageType
	Content string
	Token   string
}

func ChatMessage(content, token string) Outbound {
	return Outbound{Type: models.MessageTypeChat, Content: content, Token: token}
}

func Ping(token string) Outbound {
	return Outbound{Type: models.MessageTypePing, Token: token}
}

// Encode renders an outbound intent as a text frame.
func Encode(o Outbound) []byte {
	// A struct of strings always marshals.
	data, _ := json.Marshal(models.OutboundMessage{
		Type:    o.Type,
		Content: o.Content,
		Token:   o.Token,
	})
	return data
}

// DecodeOutbound parses a frame produced by Encode.
func DecodeOutbound(raw []byte) (Outbound, error) {
	var msg models.OutboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		kind := InvalidPayload
		if !json.Valid(raw) {
			kind = InvalidJSON
		}
		return Outbound{}, &DecodeError{Kind: kind, Raw: raw, Err: err}
	}
	return Outbound{Type: msg.Type, Content: msg.Content, Token: msg.Token}, nil
}
