// Package websocket provides the transports the session manager dials.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by Conn methods after Close.
var ErrClosed = errors.New("websocket: connection closed")

// Transport opens connections to a server URL.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn is one open socket. Send may be called concurrently with Receive;
// implementations serialize writers themselves.
type Conn interface {
	// Send writes one text frame.
	Send(ctx context.Context, data []byte) error
	// Receive blocks until the next text frame or an error.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Options tunes a driver. Zero ReadTimeout means reads never time out.
type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
}

const (
	DriverGorilla = "gorilla"
	DriverCoder   = "coder"
)

// New returns the transport registered under driver.
func New(driver string, opts Options) (Transport, error) {
	switch driver {
	case DriverGorilla, "":
		return NewGorillaTransport(opts), nil
	case DriverCoder:
		return NewCoderTransport(opts), nil
	}
	return nil, fmt.Errorf("unknown websocket driver %q", driver)
}
