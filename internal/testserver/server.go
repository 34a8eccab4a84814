// Package testserver runs an in-process switchboard server for tests. It follows the
// production server's handshake checks, routing rules and system frames, and adds
// controls for injecting frames and failures.
package testserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"switchboard-sdk/pkg/types"
)

// DefaultEndReason is what DELETE /api/sessions/{id} reports to connected clients.
const DefaultEndReason = "Session ended by instructor"

// Option configures a Server.
type Option func(*Server)

// WithoutHistory suppresses history replay and the history_complete frame on join.
func WithoutHistory() Option {
	return func(s *Server) { s.sendHistory = false }
}

// WithRateLimit caps messages per user per minute.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.limiter = newRateLimiter(perMinute) }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// Server is a running switchboard server bound to a loopback port.
type Server struct {
	http     *httptest.Server
	sessions *sessionStore
	registry *registry
	router   *router
	limiter  *rateLimiter
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	sendHistory bool

	mu       sync.Mutex
	closed   bool
	rejects  map[string]int
	received map[string][]*types.Message
	connects map[string]int
	wg       sync.WaitGroup
}

// New starts a server. Call Close when done.
func New(opts ...Option) *Server {
	s := &Server{
		sessions:    newSessionStore(),
		registry:    newRegistry(),
		limiter:     newRateLimiter(100),
		logger:      zerolog.Nop(),
		sendHistory: true,
		rejects:     make(map[string]int),
		received:    make(map[string][]*types.Message),
		connects:    make(map[string]int),
		upgrader: websocket.Upgrader{
			CheckOrigin:      func(*http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = newRouter(s.registry, s.limiter, s.logger)
	s.http = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWebSocket)
	r.Get("/health", s.handleHealth)
	r.Route("/api/sessions", func(r chi.Router) {
		r.Use(jsonContent)
		r.Get("/", s.handleListSessions)
		r.Post("/", s.handleCreateSession)
		r.Get("/{sessionID}", s.handleGetSession)
		r.Delete("/{sessionID}", s.handleEndSession)
	})
	return r
}

// URL is the base http:// address of the server.
func (s *Server) URL() string { return s.http.URL }

// Close disconnects every peer and waits for all server goroutines to exit.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	for _, p := range s.registry.all() {
		p.close()
	}
	s.http.Close()
	s.wg.Wait()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, role, sessionID := q.Get("user_id"), types.Role(q.Get("role")), q.Get("session_id")

	if userID == "" || role == "" || sessionID == "" {
		http.Error(w, "Missing required query parameters: user_id, role, session_id", http.StatusBadRequest)
		return
	}
	if !types.IsValidUserID(userID) {
		http.Error(w, "Invalid user_id format", http.StatusBadRequest)
		return
	}
	if !role.Valid() {
		http.Error(w, "Invalid role: must be 'student' or 'instructor'", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	forced, rejected := s.rejects[userID]
	closed := s.closed
	if !closed && !rejected {
		s.wg.Add(1)
	}
	s.mu.Unlock()
	if closed {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}
	if rejected {
		http.Error(w, http.StatusText(forced), forced)
		return
	}
	defer s.wg.Done()

	if err := s.sessions.validateMembership(sessionID, userID, role); err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionEnded):
			http.Error(w, "Session not found or ended", http.StatusNotFound)
		case errors.Is(err, ErrUnauthorized):
			http.Error(w, "Not authorized to join this session", http.StatusForbidden)
		default:
			http.Error(w, "Session validation failed", http.StatusInternalServerError)
		}
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	p := newPeer(ws, userID, role, sessionID)
	if previous := s.registry.register(p); previous != nil {
		previous.close()
	}
	s.mu.Lock()
	s.connects[userID]++
	closing := s.closed
	s.mu.Unlock()
	if closing {
		p.close()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		p.writeLoop()
	}()

	if s.sendHistory {
		s.replayHistory(p)
	}
	s.readPump(p)
}

// replayHistory queues the visible history followed by history_complete.
func (s *Server) replayHistory(p *peer) {
	for _, m := range s.router.historyFor(p.sessionID, p.userID, p.role) {
		if err := p.sendJSON(m); err != nil {
			return
		}
	}
	_ = p.sendJSON(systemFrame("", map[string]any{
		"event":   "history_complete",
		"message": "Message history loaded",
	}))
}

func (s *Server) readPump(p *peer) {
	defer func() {
		s.registry.unregister(p)
		p.close()
	}()

	for {
		_, data, err := p.ws.ReadMessage()
		if err != nil {
			return
		}

		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(p, errors.New("invalid message format"))
			continue
		}
		s.record(p.userID, &msg)

		if err := s.router.route(p, &msg); err != nil {
			s.logger.Debug().Err(err).Str("user_id", p.userID).Msg("Message routing failed")
			s.sendError(p, err)
		}
	}
}

func (s *Server) record(userID string, msg *types.Message) {
	c := *msg
	s.mu.Lock()
	s.received[userID] = append(s.received[userID], &c)
	s.mu.Unlock()
}

func (s *Server) sendError(p *peer, cause error) {
	_ = p.sendJSON(systemFrame("", map[string]any{
		"event":   "message_error",
		"message": "Message could not be delivered",
		"error":   cause.Error(),
	}))
}

func systemFrame(context string, content map[string]any) map[string]any {
	frame := map[string]any{
		"type":      "system",
		"content":   content,
		"timestamp": time.Now().UTC(),
	}
	if context != "" {
		frame["context"] = context
	}
	return frame
}

// CreateSession creates a session directly, bypassing HTTP.
func (s *Server) CreateSession(name, instructorID string, studentIDs ...string) (*types.Session, error) {
	return s.sessions.create(name, instructorID, studentIDs)
}

// EndSession notifies connected peers with reason and marks the session ended.
func (s *Server) EndSession(sessionID, reason string) error {
	frame := systemFrame("session_ended", map[string]any{
		"event":  "session_ended",
		"reason": reason,
	})
	for _, p := range s.registry.session(sessionID) {
		if err := p.sendJSON(frame); err != nil {
			s.logger.Warn().Err(err).Str("user_id", p.userID).Msg("Failed to send session_ended")
		}
	}
	return s.sessions.end(sessionID)
}

// Push sends msg to userID as-is.
func (s *Server) Push(userID string, msg any) error {
	p, ok := s.registry.user(userID)
	if !ok {
		return ErrNotConnected
	}
	return p.sendJSON(msg)
}

// PushRaw sends an arbitrary text frame to userID.
func (s *Server) PushRaw(userID string, data []byte) error {
	p, ok := s.registry.user(userID)
	if !ok {
		return ErrNotConnected
	}
	return p.sendRaw(data)
}

// PushSystem sends a system frame with the given content to userID.
func (s *Server) PushSystem(userID string, content map[string]any) error {
	return s.Push(userID, systemFrame("", content))
}

// Drop cuts userID's TCP connection without a close frame.
func (s *Server) Drop(userID string) error {
	p, ok := s.registry.user(userID)
	if !ok {
		return ErrNotConnected
	}
	p.drop()
	return nil
}

// CloseWith closes userID's socket with a close frame carrying code. Frames still
// queued for the peer may be discarded.
func (s *Server) CloseWith(userID string, code int, reason string) error {
	p, ok := s.registry.user(userID)
	if !ok {
		return ErrNotConnected
	}
	p.closeWith(code, reason)
	return nil
}

// Reject makes every handshake for userID fail with status until Accept is called.
func (s *Server) Reject(userID string, status int) {
	s.mu.Lock()
	s.rejects[userID] = status
	s.mu.Unlock()
}

func (s *Server) Accept(userID string) {
	s.mu.Lock()
	delete(s.rejects, userID)
	s.mu.Unlock()
}

// Received returns the frames userID has sent, in order.
func (s *Server) Received(userID string) []*types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.Message(nil), s.received[userID]...)
}

// ConnectCount returns how many sockets userID has opened.
func (s *Server) ConnectCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects[userID]
}

// Connected reports whether userID currently has a registered socket.
func (s *Server) Connected(userID string) bool {
	_, ok := s.registry.user(userID)
	return ok
}

// WaitForConnection blocks until userID has opened at least n sockets.
func (s *Server) WaitForConnection(ctx context.Context, userID string, n int) error {
	return poll(ctx, func() bool { return s.ConnectCount(userID) >= n && s.Connected(userID) })
}

// WaitForDisconnect blocks until userID has no registered socket.
func (s *Server) WaitForDisconnect(ctx context.Context, userID string) error {
	return poll(ctx, func() bool { return !s.Connected(userID) })
}

// WaitForReceived blocks until userID has sent at least n frames.
func (s *Server) WaitForReceived(ctx context.Context, userID string, n int) error {
	return poll(ctx, func() bool { return len(s.Received(userID)) >= n })
}

func poll(ctx context.Context, done func() bool) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
