package transport

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrInvalidServerURL = errors.New("server URL must use http, https, ws or wss")
	ErrMissingParameter = errors.New("user_id, role and session_id are required")
)

// HandshakeError reports an HTTP rejection of the WebSocket upgrade.
type HandshakeError struct {
	StatusCode int
	Body       string
}

func (e *HandshakeError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("websocket handshake rejected with status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("websocket handshake rejected with status %d", e.StatusCode)
}
