// Package protocol decodes and encodes the JSON frames exchanged with the chat server.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chat-client/internal/models"
)

// Inbound is a decoded server frame. The set of implementations is closed.
type Inbound interface {
	inbound()
}

type SessionToken struct {
	Token string
}

type HeartbeatConfig struct {
	Interval time.Duration
}

type Pong struct{}

// History is the backlog replayed on join, oldest first.
type History struct {
	Entries []Entry
}

// Entry is one backlog item. HasUsername is false when the server sent no
// username field, which marks the entry as an announcement.
type Entry struct {
	Type        models.MessageType
	Username    string
	HasUsername bool
	Text        string
	Timestamp   time.Time
}

// IsSystem reports whether the entry is an announcement rather than a chat line.
func (e Entry) IsSystem() bool {
	return e.Type == models.MessageTypeSystem || !e.HasUsername
}

type Chat struct {
	Username  string
	Text      string
	Timestamp time.Time
}

type System struct {
	Text string
}

// Unknown carries frames without a recognized type.
type Unknown struct {
	Type string
	Raw  []byte
}

func (SessionToken) inbound()    {}
func (HeartbeatConfig) inbound() {}
func (Pong) inbound()            {}
func (History) inbound()         {}
func (Chat) inbound()            {}
func (System) inbound()          {}
func (Unknown) inbound()         {}

type DecodeErrorKind string

const (
	InvalidJSON    DecodeErrorKind = "invalid json"
	InvalidPayload DecodeErrorKind = "invalid payload"
)

var (
	ErrInvalidJSON    = errors.New("invalid json")
	ErrInvalidPayload = errors.New("invalid payload")
)

// DecodeError is returned for frames that cannot be decoded. It never
// affects the connection; callers report it and move on.
type DecodeError struct {
	Kind DecodeErrorKind
	Raw  []byte
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode frame: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("decode frame: %s", e.Kind)
}

func (e *DecodeError) Unwrap() []error {
	kind := ErrInvalidPayload
	if e.Kind == InvalidJSON {
		kind = ErrInvalidJSON
	}
	if e.Err == nil {
		return []error{kind}
	}
	return []error{kind, e.Err}
}

// Decode turns one text frame into an Inbound value.
func Decode(raw []byte) (Inbound, error) {
	if !json.Valid(raw) {
		return nil, &DecodeError{Kind: InvalidJSON, Raw: raw}
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Unknown{Raw: raw}, nil
	}

	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// Valid JSON but a field has the wrong shape. If the type itself
		// is unreadable there is nothing to classify.
		var probe struct {
			Type models.MessageType `json:"type"`
		}
		if json.Unmarshal(raw, &probe) != nil || !isKnown(probe.Type) {
			return Unknown{Raw: raw}, nil
		}
		return nil, &DecodeError{Kind: InvalidPayload, Raw: raw, Err: err}
	}

	switch env.Type {
	case models.MessageTypeSessionToken:
		if env.Token == "" {
			return nil, &DecodeError{Kind: InvalidPayload, Raw: raw, Err: errors.New("session token is empty")}
		}
		return SessionToken{Token: env.Token}, nil

	case models.MessageTypeHeartbeatConfig:
		if env.Interval == nil || *env.Interval <= 0 {
			return nil, &DecodeError{Kind: InvalidPayload, Raw: raw, Err: errors.New("heartbeat interval must be positive")}
		}
		return HeartbeatConfig{Interval: time.Duration(*env.Interval) * time.Millisecond}, nil

	case models.MessageTypePong:
		return Pong{}, nil

	case models.MessageTypeHistory:
		entries := make([]Entry, 0, len(env.Messages))
		for i, item := range env.Messages {
			var e models.Envelope
			if err := json.Unmarshal(item, &e); err != nil {
				return nil, &DecodeError{Kind: InvalidPayload, Raw: raw, Err: fmt.Errorf("history entry %d: %w", i, err)}
			}
			entry := Entry{
				Type:      e.Type,
				Text:      e.Text,
				Timestamp: parseTimestamp(e.Timestamp),
			}
			if e.Username != nil {
				entry.Username = *e.Username
				entry.HasUsername = true
			}
			entries = append(entries, entry)
		}
		return History{Entries: entries}, nil

	case models.MessageTypeChat:
		msg := Chat{Text: env.Text, Timestamp: parseTimestamp(env.Timestamp)}
		if env.Username != nil {
			msg.Username = *env.Username
		}
		return msg, nil

	case models.MessageTypeSystem:
		return System{Text: env.Text}, nil
	}

	return Unknown{Type: string(env.Type), Raw: raw}, nil
}

func isKnown(t models.MessageType) bool {
	switch t {
	case models.MessageTypeSessionToken, models.MessageTypeHeartbeatConfig, models.MessageTypePong,
		models.MessageTypeHistory, models.MessageTypeChat, models.MessageTypeSystem:
		return true
	}
	return false
}

// parseTimestamp returns the zero time for absent or unparseable values.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
