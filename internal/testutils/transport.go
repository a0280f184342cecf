// Package testutils holds fakes shared by the package tests.
package testutils

import (
	"context"
	"sync"
	"time"

	"chat-client/internal/websocket"
)

// FakeTransport hands out FakeConns and records dialed URLs.
type FakeTransport struct {
	mu      sync.Mutex
	DialErr error
	urls    []string
	conns   []*FakeConn
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

func (t *FakeTransport) Dial(ctx context.Context, url string) (websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.urls = append(t.urls, url)
	if t.DialErr != nil {
		return nil, t.DialErr
	}
	conn := NewFakeConn()
	t.conns = append(t.conns, conn)
	return conn, nil
}

func (t *FakeTransport) URLs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.urls...)
}

// Conn returns the i-th dialed connection.
func (t *FakeTransport) Conn(i int) *FakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.conns) {
		return nil
	}
	return t.conns[i]
}

// Last returns the most recently dialed connection.
func (t *FakeTransport) Last() *FakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

// FakeConn scripts inbound frames and records outbound ones.
type FakeConn struct {
	mu      sync.Mutex
	sent    [][]byte
	SendErr error
	closed  bool

	// sends park on gate while it is set
	gate           chan struct{}
	inFlight       int
	closedInFlight bool

	inbound chan []byte
	recvErr chan error
	done    chan struct{}
}

func NewFakeConn() *FakeConn {
	return &FakeConn{
		inbound: make(chan []byte, 64),
		recvErr: make(chan error, 1),
		done:    make(chan struct{}),
	}
}

// Push queues a frame for Receive.
func (c *FakeConn) Push(frame string) {
	c.inbound <- []byte(frame)
}

// FailReceive makes the next Receive return err.
func (c *FakeConn) FailReceive(err error) {
	c.recvErr <- err
}

func (c *FakeConn) SetSendErr(err error) {
	c.mu.Lock()
	c.SendErr = err
	c.mu.Unlock()
}

// BlockSends parks every following Send until ReleaseSends. A parked Send
// ignores ctx, like a socket write already handed to the kernel.
func (c *FakeConn) BlockSends() {
	c.mu.Lock()
	c.gate = make(chan struct{})
	c.mu.Unlock()
}

func (c *FakeConn) ReleaseSends() {
	c.mu.Lock()
	if c.gate != nil {
		close(c.gate)
		c.gate = nil
	}
	c.mu.Unlock()
}

// InFlight is the number of parked sends.
func (c *FakeConn) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// ClosedDuringSend reports whether Close ran while a send was parked.
func (c *FakeConn) ClosedDuringSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedInFlight
}

func (c *FakeConn) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	if gate := c.gate; gate != nil {
		c.inFlight++
		c.mu.Unlock()
		<-gate
		c.mu.Lock()
		c.inFlight--
	}
	defer c.mu.Unlock()

	if c.closed {
		return websocket.ErrClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *FakeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-c.inbound:
		return frame, nil
	case err := <-c.recvErr:
		return nil, err
	case <-c.done:
		return nil, websocket.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight > 0 {
		c.closedInFlight = true
	}
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Sent returns a copy of every frame written so far.
func (c *FakeConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.sent))
	for i, frame := range c.sent {
		out[i] = string(frame)
	}
	return out
}

// WaitSent blocks until at least n frames were written or timeout elapses.
func (c *FakeConn) WaitSent(n int, timeout time.Duration) []string {
	deadline := time.Now().Add(timeout)
	for {
		sent := c.Sent()
		if len(sent) >= n || time.Now().After(deadline) {
			return sent
		}
		time.Sleep(5 * time.Millisecond)
	}
}
