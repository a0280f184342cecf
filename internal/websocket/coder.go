package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
)

// CoderTransport dials with coder/websocket.
type CoderTransport struct {
	opts Options
}

func NewCoderTransport(opts Options) *CoderTransport {
	return &CoderTransport{opts: opts}
}

func (t *CoderTransport) Dial(ctx context.Context, url string) (Conn, error) {
	if t.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.HandshakeTimeout)
		defer cancel()
	}

	conn, resp, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	// Server history frames can be large.
	conn.SetReadLimit(1 << 20)

	ctx, cancel := context.WithCancel(context.Background())
	return &coderConn{conn: conn, opts: t.opts, ctx: ctx, cancel: cancel}, nil
}

type coderConn struct {
	conn *websocket.Conn
	opts Options

	// ctx is canceled by Close so blocked reads return.
	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
}

func (c *coderConn) Send(ctx context.Context, data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.opts.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.WriteTimeout)
		defer cancel()
	}

	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *coderConn) Receive(ctx context.Context) ([]byte, error) {
	for {
		readCtx, cancel := c.readContext(ctx)
		msgType, data, err := c.conn.Read(readCtx)
		cancel()
		if err != nil {
			if c.closed.Load() {
				return nil, ErrClosed
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil, fmt.Errorf("server closed connection: %w", err)
			}
			return nil, fmt.Errorf("read frame: %w", err)
		}
		if msgType == websocket.MessageText {
			return data, nil
		}
	}
}

// readContext merges the caller's context with the connection lifetime and
// the optional read deadline.
func (c *coderConn) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	if c.opts.ReadTimeout > 0 {
		var cancelTimeout context.CancelFunc
		merged, cancelTimeout = context.WithTimeout(merged, c.opts.ReadTimeout)
		return merged, func() {
			cancelTimeout()
			stop()
			cancel()
		}
	}
	return merged, func() {
		stop()
		cancel()
	}
}

func (c *coderConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.conn.Close(websocket.StatusNormalClosure, "")
		c.cancel()
	})
	if err != nil && !errors.Is(err, net.ErrClosed) && websocket.CloseStatus(err) == -1 {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}
