package handlers

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/text/cases"

	"chat-client/internal/models"
	"chat-client/internal/presence"
	"chat-client/internal/protocol"
	"chat-client/pkg/logger"
)

// Server announcement patterns, checked in this order.
const (
	onlineUsersPrefix = "Online users:"
	joinedSuffix      = "has joined."
	leftSuffix        = "has left."
	renameSeparator   = " is now "
)

// Session is the part of the session manager the dispatcher drives.
type Session interface {
	AcceptToken(ctx context.Context, token string)
	ConfigureHeartbeat(ctx context.Context, interval time.Duration)
	Pong(ctx context.Context)
	RequestRoster(ctx context.Context) error
	HasToken(ctx context.Context) bool
	MentionNames(ctx context.Context) []string
	ConfirmRename(ctx context.Context, oldName, newName string)
}

// Dispatcher routes decoded frames to the session, the roster or the sink.
type Dispatcher struct {
	session Session
	roster  *presence.Roster
	sink    models.Sink
	logger  *slog.Logger
	dnd     atomic.Bool
}

func NewDispatcher(session Session, roster *presence.Roster, sink models.Sink) *Dispatcher {
	if sink == nil {
		sink = models.Discard
	}
	return &Dispatcher{
		session: session,
		roster:  roster,
		sink:    sink,
		logger:  logger.Component("dispatcher"),
	}
}

// SetDoNotDisturb suppresses mention notifications while on.
func (d *Dispatcher) SetDoNotDisturb(on bool) {
	d.dnd.Store(on)
}

func (d *Dispatcher) DoNotDisturb() bool {
	return d.dnd.Load()
}

// Handle decodes one raw frame and dispatches it. Malformed frames become a
// diagnostic event and leave all state untouched.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		d.logger.Warn("dropping malformed frame", "error", err)
		d.sink.Emit(models.Event{
			Kind: models.EventDiagnostic,
			Text: "Error parsing message",
			Raw:  raw,
			Err:  err,
		})
		return
	}
	d.Dispatch(ctx, msg)
}

// Dispatch applies one decoded message. Control messages are consumed by
// the session and never reach the sink. Once ctx is done the connection the
// frame came from is retired and the message is dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, msg protocol.Inbound) {
	if ctx.Err() != nil {
		return
	}

	switch m := msg.(type) {
	case protocol.Pong:
		d.session.Pong(ctx)

	case protocol.SessionToken:
		d.session.AcceptToken(ctx, m.Token)

	case protocol.HeartbeatConfig:
		d.session.ConfigureHeartbeat(ctx, m.Interval)

	case protocol.History:
		d.replayHistory(ctx, m)

	case protocol.Chat:
		d.handleChat(ctx, m.Username, m.Text, m.Timestamp, true)

	case protocol.System:
		d.handleSystem(ctx, m.Text)

	case protocol.Unknown:
		d.sink.Emit(models.Event{
			Kind: models.EventUnknown,
			Text: "Unknown message type",
			Raw:  m.Raw,
		})
	}
}

func (d *Dispatcher) replayHistory(ctx context.Context, h protocol.History) {
	for _, entry := range h.Entries {
		if ctx.Err() != nil {
			return
		}
		// Past renames are not replayed.
		if strings.Contains(entry.Text, renameSeparator) {
			continue
		}
		if entry.IsSystem() {
			if entry.Text != "" {
				d.handleSystem(ctx, entry.Text)
			}
			continue
		}
		d.handleChat(ctx, entry.Username, entry.Text, entry.Timestamp, false)
	}

	d.sink.Emit(models.Event{Kind: models.EventHistoryComplete, Text: "loaded chat"})

	if d.session.HasToken(ctx) {
		if err := d.session.RequestRoster(ctx); err != nil {
			d.logger.Warn("roster refresh after history failed", "error", err)
		}
	}
}

func (d *Dispatcher) handleChat(ctx context.Context, username, text string, ts time.Time, notify bool) {
	d.sink.Emit(models.Event{
		Kind:      models.EventChat,
		Timestamp: ts,
		Username:  username,
		Text:      text,
	})

	if !notify || d.dnd.Load() {
		return
	}
	if mentions(text, d.session.MentionNames(ctx)) {
		d.sink.Emit(models.Event{
			Kind:      models.EventMention,
			Timestamp: ts,
			Username:  username,
			Text:      text,
		})
	}
}

func (d *Dispatcher) handleSystem(ctx context.Context, text string) {
	if ctx.Err() != nil {
		return
	}

	switch {
	case strings.HasPrefix(text, onlineUsersPrefix):
		d.roster.ReplaceAll(splitNames(strings.TrimPrefix(text, onlineUsersPrefix)))
		d.emitRoster()

	case strings.HasSuffix(text, joinedSuffix):
		if d.roster.Add(strings.TrimSpace(strings.TrimSuffix(text, joinedSuffix))) {
			d.emitRoster()
		}

	case strings.HasSuffix(text, leftSuffix):
		if d.roster.Remove(strings.TrimSpace(strings.TrimSuffix(text, leftSuffix))) {
			d.emitRoster()
		}

	case strings.Contains(text, renameSeparator):
		oldName, newName, _ := strings.Cut(text, renameSeparator)
		oldName, newName = strings.TrimSpace(oldName), strings.TrimSpace(newName)

		d.roster.Remove(oldName)
		d.roster.Add(newName)
		d.emitRoster()
		d.session.ConfirmRename(ctx, oldName, newName)

		// A fresh snapshot settles joins and leaves that raced the rename.
		if err := d.session.RequestRoster(ctx); err != nil {
			d.logger.Warn("roster refresh after rename failed", "error", err)
		}

	default:
		d.sink.Emit(models.Event{Kind: models.EventSystem, Text: text})
	}
}

func (d *Dispatcher) emitRoster() {
	d.sink.Emit(models.Event{Kind: models.EventRoster, Members: d.roster.Members()})
}

func splitNames(list string) []string {
	parts := strings.Split(list, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// mentions reports whether text contains any of names, ignoring case.
func mentions(text string, names []string) bool {
	if len(names) == 0 {
		return false
	}
	folded := cases.Fold().String(text)
	for _, name := range names {
		if name != "" && strings.Contains(folded, cases.Fold().String(name)) {
			return true
		}
	}
	return false
}
