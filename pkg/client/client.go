// Package client is the session protocol engine: it owns one WebSocket connection to
// a switchboard session, decodes and dispatches frames, interprets system events and
// reconnects with bounded exponential backoff.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"switchboard-sdk/internal/events"
	"switchboard-sdk/internal/metrics"
	"switchboard-sdk/internal/reconnect"
	"switchboard-sdk/internal/transport"
	"switchboard-sdk/pkg/directory"
	"switchboard-sdk/pkg/interfaces"
	"switchboard-sdk/pkg/types"
)

const tracerName = "switchboard-sdk/pkg/client"

// Handler types, see OnMessage, OnConnection and OnError.
type (
	MessageHandler    = events.MessageHandler
	ConnectionHandler = events.ConnectionHandler
	ErrorHandler      = events.ErrorHandler
)

// Client is one participant's connection to a session. Its methods are safe for
// concurrent use, and Disconnect may be called from inside any handler.
type Client struct {
	id     string
	userID string
	role   types.Role

	serverURL        string
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	endGrace         time.Duration

	dialer         interfaces.Dialer
	directory      interfaces.SessionDirectory
	registry       *events.Registry
	policy         *reconnect.Policy
	logger         zerolog.Logger
	metrics        *metrics.Collector
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	afterFunc      func(time.Duration, func()) *time.Timer // arms reconnect timers

	// ARCHITECTURAL DISCOVERY: One mutex guards every piece of lifecycle state. The
	// generation counter is bumped by Connect and Disconnect so receive loops, dials
	// and timers started for an older lifecycle notice and back off.
	mu           sync.Mutex
	state        types.ConnectionState
	conn         interfaces.Conn
	sessionID    string
	connectedAt  time.Time
	messageCount int
	shutdown     bool
	cancel       context.CancelFunc
	generation   uint64
	timer        *time.Timer
	announced    bool // last connection notification was true
	lastErr      error
}

// New creates an idle client for userID acting as role.
func New(userID string, role types.Role, opts ...Option) (*Client, error) {
	if !types.IsValidUserID(userID) {
		return nil, types.ErrInvalidUserID
	}
	if !role.Valid() {
		return nil, types.ErrInvalidRole
	}

	c := &Client{
		id:        uuid.New().String(),
		userID:    userID,
		role:      role,
		serverURL: DefaultServerURL,
		endGrace:  DefaultSessionEndGrace,
		logger:    zerolog.Nop(),
		state:     types.StateIdle,
		afterFunc: time.AfterFunc,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.policy == nil {
		c.policy = reconnect.NewPolicy(reconnect.DefaultBaseDelay, reconnect.DefaultMaxAttempts, 0)
	}
	if c.dialer == nil {
		c.dialer = transport.NewDialer(c.handshakeTimeout, c.writeTimeout)
	}
	if c.tracerProvider == nil {
		c.tracerProvider = otel.GetTracerProvider()
	}
	c.tracer = c.tracerProvider.Tracer(tracerName)

	c.logger = c.logger.With().
		Str("client_id", c.id).
		Str("user_id", userID).
		Str("role", string(role)).
		Logger()
	c.metrics = metrics.NewCollector(c.registerer, prometheus.Labels{
		"client_id": c.id,
		"role":      string(role),
	})
	c.metrics.SetState(types.StateIdle)
	c.registry = events.NewRegistry(c.logger, c.metrics)

	if c.directory == nil {
		dir, err := directory.New(c.serverURL, directory.WithLogger(c.logger))
		if err != nil {
			return nil, err
		}
		c.directory = dir
	}
	return c, nil
}

// ID is a random identifier for this client instance, used in logs and metrics.
func (c *Client) ID() string { return c.id }

func (c *Client) UserID() string { return c.userID }

func (c *Client) Role() types.Role { return c.role }

// OnMessage registers h for frames of type t. Handlers run on the receive goroutine
// in registration order; a slow handler delays every later frame.
func (c *Client) OnMessage(t types.MessageType, h MessageHandler) {
	c.registry.OnMessage(t, h)
}

// OnConnection registers h to hear true after each successful (re)connection and
// false when a live connection goes away.
func (c *Client) OnConnection(h ConnectionHandler) {
	c.registry.OnConnection(h)
}

// OnError registers h for failures raised outside a direct call: decode errors,
// lost connections, server message errors, session end and reconnection failure.
func (c *Client) OnError(h ErrorHandler) {
	c.registry.OnError(h)
}

// State returns the current lifecycle state.
func (c *Client) State() types.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) IsConnected() bool {
	return c.State() == types.StateConnected
}

// SessionID returns the session of the current lifecycle, empty after Disconnect.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Status returns a snapshot of the connection.
func (c *Client) Status() types.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := types.ConnectionStatus{
		Connected:         c.state == types.StateConnected,
		State:             c.state,
		SessionID:         c.sessionID,
		UserID:            c.userID,
		Role:              c.role,
		MessageCount:      c.messageCount,
		ReconnectAttempts: c.policy.Attempts(),
		LastError:         c.lastErr,
	}
	if st.Connected && !c.connectedAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(c.connectedAt) / time.Second)
	}
	return st
}

// DiscoverSessions lists the active sessions on the server.
func (c *Client) DiscoverSessions(ctx context.Context) ([]*types.Session, error) {
	return c.directory.ListSessions(ctx)
}

// GetSession returns details for one session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	return c.directory.GetSession(ctx, sessionID)
}

// Directory exposes the session directory for role-specific operations.
func (c *Client) Directory() interfaces.SessionDirectory { return c.directory }

func (c *Client) setStateLocked(s types.ConnectionState) {
	if c.state == s {
		return
	}
	c.logger.Debug().Str("from", c.state.String()).Str("to", s.String()).Msg("Connection state changed")
	c.state = s
	c.metrics.SetState(s)
}
