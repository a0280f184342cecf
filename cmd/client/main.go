package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"chat-client/internal/client"
	"chat-client/internal/config"
	"chat-client/internal/models"
	"chat-client/pkg/logger"
)

var errQuit = errors.New("quit")

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logger.Fatal("chat-client: %v", err)
	}
}

// overrides holds the command line values that win over the environment.
type overrides struct {
	serverURL string
	username  string
	driver    string
}

// resolveConfig loads the environment, applies the flags that were set and
// only then validates, so a flag can repair a bad environment value.
func resolveConfig(flags *pflag.FlagSet, o overrides) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.Changed("url") {
		cfg.Client.ServerURL = o.serverURL
	}
	if flags.Changed("username") {
		cfg.Client.Username = o.username
	}
	if flags.Changed("transport") {
		cfg.Transport.Driver = o.driver
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	var o overrides

	cmd := &cobra.Command{
		Use:   "chat-client",
		Short: "Terminal client for the websocket chat service",
		Long: `chat-client connects to a chat server over websocket and relays
lines typed on stdin as chat messages.

Local commands:
  /info         Show server name and how many users are online
  /nick <name>  Ask the server to rename you
  /dnd on|off   Silence or restore mention alerts
  /quit         Disconnect and exit`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Flags(), o)
			if err != nil {
				return err
			}

			logger.Setup(cfg.Log.Format, cfg.Log.Level)
			return run(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&o.serverURL, "url", "", "chat server websocket URL (overrides CHAT_SERVER_URL)")
	cmd.Flags().StringVarP(&o.username, "username", "u", "", "display name (overrides CHAT_USERNAME)")
	cmd.Flags().StringVar(&o.driver, "transport", "", "websocket driver: gorilla or coder (overrides CHAT_TRANSPORT)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := newPrinter(out)
	c, err := client.NewFromConfig(cfg, p)
	if err != nil {
		return err
	}
	if err := c.Connect(ctx); err != nil {
		logger.Error("Failed to connect to %s: %v", cfg.Client.ServerURL, err)
		return fmt.Errorf("connect to %s: %w", cfg.Client.ServerURL, err)
	}
	logger.Info("Connected to %s", cfg.Client.ServerURL)

	// Scan blocks without a cancellation path, so the reader lives outside
	// the group and is abandoned on exit.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return errQuit
				}
				if err := handleLine(gctx, c, p, line); err != nil {
					return err
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		c.Disconnect()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	logger.Info("Client shut down")
	return nil
}

// handleLine applies host-only commands and hands everything else to the client.
func handleLine(ctx context.Context, c *client.Client, p *printer, line string) error {
	trimmed := strings.TrimSpace(line)

	switch {
	case strings.EqualFold(trimmed, "/quit"):
		return errQuit
	case strings.EqualFold(trimmed, "/dnd on"):
		logger.Debug("Do not disturb on")
		c.SetDoNotDisturb(true)
		p.Emit(models.Event{Kind: models.EventNotice, Text: "Do not disturb enabled"})
		return nil
	case strings.EqualFold(trimmed, "/dnd off"):
		logger.Debug("Do not disturb off")
		c.SetDoNotDisturb(false)
		p.Emit(models.Event{Kind: models.EventNotice, Text: "Do not disturb disabled"})
		return nil
	}

	// Rejections are already reported through the printer.
	if err := c.Submit(ctx, line); err != nil {
		logger.Warn("Line not sent: %v", err)
	}
	return nil
}
