package client

import (
	"context"
	"fmt"
	"log/slog"

	"chat-client/internal/config"
	"chat-client/internal/handlers"
	"chat-client/internal/models"
	"chat-client/internal/presence"
	"chat-client/internal/services"
	"chat-client/internal/session"
	"chat-client/internal/websocket"
	"chat-client/pkg/logger"
)

// Client wires the session manager, dispatcher, roster and command
// translator into a single chat client.
type Client struct {
	cfg        *config.Config
	session    *session.Manager
	roster     *presence.Roster
	dispatcher *handlers.Dispatcher
	commands   *services.CommandService
	logger     *slog.Logger
}

// New builds a client on an explicit transport. Extra session options are
// applied after the ones derived from cfg.
func New(cfg *config.Config, transport websocket.Transport, sink models.Sink, opts ...session.Option) *Client {
	if sink == nil {
		sink = models.Discard
	}

	sessionOpts := []session.Option{
		session.WithPongTimeout(cfg.Transport.PongTimeout),
		session.WithLogger(logger.Component("session")),
	}
	sessionOpts = append(sessionOpts, opts...)

	manager := session.NewManager(transport, sink, sessionOpts...)
	roster := presence.NewRoster()
	dispatcher := handlers.NewDispatcher(manager, roster, sink)
	manager.SetHandler(dispatcher)

	info := services.NewServerInfoService(cfg.Info.Timeout)

	return &Client{
		cfg:        cfg,
		session:    manager,
		roster:     roster,
		dispatcher: dispatcher,
		commands:   services.NewCommandService(manager, info, sink),
		logger:     logger.Component("client"),
	}
}

// NewFromConfig builds a client with the transport driver named in cfg.
func NewFromConfig(cfg *config.Config, sink models.Sink, opts ...session.Option) (*Client, error) {
	transport, err := websocket.New(cfg.Transport.Driver, websocket.Options{
		HandshakeTimeout: cfg.Transport.HandshakeTimeout,
		WriteTimeout:     cfg.Transport.WriteTimeout,
		ReadTimeout:      cfg.Transport.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	return New(cfg, transport, sink, opts...), nil
}

// Connect opens a session to the configured server as the configured user.
func (c *Client) Connect(ctx context.Context) error {
	return c.ConnectTo(ctx, c.cfg.Client.ServerURL, c.cfg.Client.Username)
}

// ConnectTo retires any current session and opens a new one. Membership is
// derived per connection, so the roster starts empty.
func (c *Client) ConnectTo(ctx context.Context, serverURL, username string) error {
	c.session.Disconnect()
	c.roster.ReplaceAll(nil)

	if err := c.session.Connect(ctx, serverURL, username); err != nil {
		c.logger.Error("connect failed", "url", serverURL, "error", err)
		return err
	}
	return nil
}

func (c *Client) Disconnect() {
	c.session.Disconnect()
}

// Submit translates one line of user input.
func (c *Client) Submit(ctx context.Context, line string) error {
	return c.commands.Submit(ctx, line)
}

func (c *Client) SetDoNotDisturb(on bool) {
	c.dispatcher.SetDoNotDisturb(on)
}

func (c *Client) DoNotDisturb() bool {
	return c.dispatcher.DoNotDisturb()
}

// Members returns the current roster, sorted.
func (c *Client) Members() []string {
	return c.roster.Members()
}

func (c *Client) State() session.State {
	return c.session.State()
}

func (c *Client) DisplayName() string {
	return c.session.DisplayName()
}
