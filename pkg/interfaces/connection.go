package interfaces

import (
	"context"
	"net/url"
)

// Conn is one live session socket
// ARCHITECTURAL DISCOVERY: Pure abstraction over the WebSocket so the lifecycle can be
// driven by fakes in tests without a network
type Conn interface {
	// ReadMessage blocks until the next frame arrives or the socket closes.
	// It is only ever called from the receive goroutine.
	ReadMessage() ([]byte, error)

	// WriteMessage writes one text frame. Implementations must serialize concurrent writers.
	WriteMessage(ctx context.Context, data []byte) error

	// Close releases the socket. Safe to call more than once and from any goroutine;
	// a blocked ReadMessage returns an error afterwards.
	Close() error
}

// Dialer opens session sockets.
type Dialer interface {
	// Dial connects to the transport address. Handshake rejections must be returned
	// in a form transport.Classify understands.
	Dial(ctx context.Context, address *url.URL) (Conn, error)
}
