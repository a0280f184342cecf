package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// GorillaTransport dials with gorilla/websocket.
type GorillaTransport struct {
	dialer *websocket.Dialer
	opts   Options
}

func NewGorillaTransport(opts Options) *GorillaTransport {
	return &GorillaTransport{
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		opts: opts,
	}
}

func (t *GorillaTransport) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &gorillaConn{conn: conn, opts: t.opts}, nil
}

type gorillaConn struct {
	conn *websocket.Conn
	opts Options

	// gorilla allows one concurrent writer
	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

func (c *gorillaConn) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return ErrClosed
	}

	deadline := time.Time{}
	if c.opts.WriteTimeout > 0 {
		deadline = time.Now().Add(c.opts.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *gorillaConn) Receive(ctx context.Context) ([]byte, error) {
	for {
		if c.opts.ReadTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		}

		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return nil, ErrClosed
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, fmt.Errorf("server closed connection: %w", err)
			}
			return nil, fmt.Errorf("read frame: %w", err)
		}

		// The protocol is text only; binary frames are not part of it.
		if msgType == websocket.TextMessage {
			return message, nil
		}
	}
}

func (c *gorillaConn) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	c.closeMu.Unlock()

	// Best effort close frame; a writer holding the lock is bounded by its deadline.
	if c.writeMu.TryLock() {
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
	}

	if err := c.conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}

func (c *gorillaConn) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}
