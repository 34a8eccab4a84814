package testserver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"switchboard-sdk/pkg/types"
)

const (
	peerQueueSize = 100
	peerWriteWait = 5 * time.Second
)

// peer is the server side of one client socket
// ARCHITECTURAL DISCOVERY: gorilla permits one writer, so all frames go through a
// buffered queue drained by a single writer goroutine
type peer struct {
	ws        *websocket.Conn
	userID    string
	role      types.Role
	sessionID string

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newPeer(ws *websocket.Conn, userID string, role types.Role, sessionID string) *peer {
	return &peer{
		ws:        ws,
		userID:    userID,
		role:      role,
		sessionID: sessionID,
		out:       make(chan []byte, peerQueueSize),
		done:      make(chan struct{}),
	}
}

// writeLoop runs until the peer is closed or a write fails.
func (p *peer) writeLoop() {
	for {
		select {
		case data := <-p.out:
			if err := p.ws.SetWriteDeadline(time.Now().Add(peerWriteWait)); err != nil {
				p.close()
				return
			}
			if err := p.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				p.close()
				return
			}
		case <-p.done:
			return
		}
	}
}

func (p *peer) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.sendRaw(data)
}

func (p *peer) sendRaw(data []byte) error {
	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}
	select {
	case p.out <- data:
		return nil
	case <-p.done:
		return ErrPeerClosed
	default:
		return ErrPeerBackedUp
	}
}

// closeWith sends a close frame with code before closing.
func (p *peer) closeWith(code int, reason string) {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second))
		_ = p.ws.Close()
	})
}

// drop closes the TCP connection without a close frame.
func (p *peer) drop() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.ws.NetConn().Close()
	})
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.ws.Close()
	})
}
