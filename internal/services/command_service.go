package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"chat-client/internal/models"
	"chat-client/internal/session"
	"chat-client/pkg/logger"
)

const (
	infoCommand = "/info"
	nickPrefix  = "/nick "
)

// Session is the part of the session manager that carries user intent.
type Session interface {
	SendChat(ctx context.Context, content string) error
	SetPendingNick(ctx context.Context, nick string)
	ServerURL() string
}

// InfoFetcher looks up server metadata for a websocket URL.
type InfoFetcher interface {
	Fetch(ctx context.Context, wsURL string) (*models.ServerInfo, error)
}

// CommandService turns user-entered lines into outbound traffic.
type CommandService struct {
	session Session
	info    InfoFetcher
	sink    models.Sink
	logger  *slog.Logger
}

func NewCommandService(session Session, info InfoFetcher, sink models.Sink) *CommandService {
	if sink == nil {
		sink = models.Discard
	}
	return &CommandService{
		session: session,
		info:    info,
		sink:    sink,
		logger:  logger.Component("commands"),
	}
}

// Submit handles one line of user input. Blank lines are ignored. A line
// that cannot be sent produces a notice event and the cause is returned.
func (s *CommandService) Submit(ctx context.Context, line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	if strings.EqualFold(strings.TrimSpace(line), infoCommand) {
		return s.ServerInfo(ctx)
	}

	if len(line) >= len(nickPrefix) && strings.EqualFold(line[:len(nickPrefix)], nickPrefix) {
		if nick := strings.TrimSpace(line[len(nickPrefix):]); nick != "" {
			s.session.SetPendingNick(ctx, nick)
		}
	}

	err := s.session.SendChat(ctx, line)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrNoSession):
		s.notice("No session yet, message not sent")
	case errors.Is(err, session.ErrNotConnected):
		s.notice("Not connected, message not sent")
	default:
		s.logger.Error("send failed", "error", err)
		s.notice(fmt.Sprintf("Send failed: %v", err))
	}
	return err
}

// ServerInfo fetches metadata for the current server and emits it.
func (s *CommandService) ServerInfo(ctx context.Context) error {
	wsURL := s.session.ServerURL()
	if wsURL == "" {
		s.notice("Not connected, no server to query")
		return session.ErrNotConnected
	}

	info, err := s.info.Fetch(ctx, wsURL)
	if err != nil {
		s.logger.Warn("server info lookup failed", "error", err)
		s.sink.Emit(models.Event{
			Kind: models.EventDiagnostic,
			Text: "Failed to fetch server info",
			Err:  err,
		})
		return err
	}

	s.sink.Emit(models.Event{
		Kind: models.EventServerInfo,
		Text: fmt.Sprintf("%s: %d/%d online", info.ServerName, info.CurrentOnline, info.TotalMaxConnections),
		Info: info,
	})
	return nil
}

func (s *CommandService) notice(text string) {
	s.sink.Emit(models.Event{Kind: models.EventNotice, Text: text})
}
