package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"switchboard-sdk/pkg/interfaces"
)

// Defaults for the gorilla dialer.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	closeGracePeriod        = time.Second
	maxErrorBodyBytes       = 512
)

// Dialer opens session sockets with gorilla/websocket.
type Dialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadLimit caps inbound frame size; zero means no limit.
	ReadLimit int64
	Header    http.Header
}

// NewDialer returns a Dialer with the given timeouts; zero values use the defaults.
func NewDialer(handshakeTimeout, writeTimeout time.Duration) *Dialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Dialer{HandshakeTimeout: handshakeTimeout, WriteTimeout: writeTimeout}
}

// Dial performs the upgrade. An HTTP rejection comes back as *HandshakeError.
func (d *Dialer) Dial(ctx context.Context, address *url.URL) (interfaces.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	ws, resp, err := dialer.DialContext(ctx, address.String(), d.Header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if errors.Is(err, websocket.ErrBadHandshake) {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
				return nil, &HandshakeError{StatusCode: resp.StatusCode, Body: string(body)}
			}
		}
		return nil, err
	}
	if d.ReadLimit > 0 {
		ws.SetReadLimit(d.ReadLimit)
	}
	return NewConnection(ws, d.WriteTimeout), nil
}

// Connection adapts a gorilla socket to interfaces.Conn
// ARCHITECTURAL DISCOVERY: gorilla allows one concurrent writer, so writes are serialized
// with a mutex and bounded by a deadline; the caller gets the write error directly
type Connection struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// NewConnection wraps an established socket.
func NewConnection(ws *websocket.Conn, writeTimeout time.Duration) *Connection {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Connection{ws: ws, writeTimeout: writeTimeout, done: make(chan struct{})}
}

// ReadMessage returns the next data frame. Control frames are handled by gorilla.
func (c *Connection) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		select {
		case <-c.done:
			return nil, ErrConnectionClosed
		default:
		}
		return nil, err
	}
	return data, nil
}

// WriteMessage writes one text frame. The deadline is the earlier of the write
// timeout and ctx's deadline.
func (c *Connection) WriteMessage(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal close frame and releases the socket. Only the first call acts.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		// best effort: the peer may already be gone
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		err = c.ws.Close()
	})
	return err
}
