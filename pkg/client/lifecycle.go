package client

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"switchboard-sdk/internal/system"
	"switchboard-sdk/internal/transport"
	"switchboard-sdk/pkg/interfaces"
	"switchboard-sdk/pkg/types"
)

// Connect opens a connection to sessionID. A failure is returned directly and is
// never retried; the client is left Failed. Automatic reconnection only applies to
// connections that were established and later lost.
func (c *Client) Connect(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return types.NewError(types.KindConnectionFailed, "session ID is required", types.ErrNoSession)
	}

	c.mu.Lock()
	if c.state == types.StateConnecting || c.state == types.StateConnected {
		c.mu.Unlock()
		return types.ErrAlreadyConnected
	}
	c.stopTimerLocked()
	c.generation++
	gen := c.generation
	c.shutdown = false
	c.sessionID = sessionID
	c.lastErr = nil
	c.policy.Reset()
	c.setStateLocked(types.StateConnecting)
	dialCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	dialCtx, span := c.tracer.Start(dialCtx, "switchboard.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("switchboard.session_id", sessionID),
			attribute.String("switchboard.user_id", c.userID),
			attribute.String("switchboard.role", string(c.role)),
		))
	defer span.End()

	c.logger.Info().Str("session_id", sessionID).Msg("Connecting to session")

	conn, err := c.dial(dialCtx, sessionID)
	if err != nil {
		e := dialError(err)
		c.mu.Lock()
		if gen == c.generation {
			c.cancel = nil
			c.lastErr = e
			c.setStateLocked(types.StateFailed)
		}
		c.mu.Unlock()

		span.RecordError(e)
		span.SetStatus(codes.Error, e.Error())
		c.logger.Warn().Err(err).Str("kind", e.Kind.String()).Msg("Connection failed")
		return e
	}

	if !c.establish(gen, conn) {
		e := types.NewError(types.KindConnectionFailed, "connection attempt cancelled", context.Canceled)
		span.SetStatus(codes.Error, e.Error())
		return e
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Disconnect closes the connection and cancels any pending reconnection. It does not
// wait for the receive goroutine, so it is safe to call from a handler, and calling
// it again is a no-op.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn, announced := c.teardownLocked()
	c.mu.Unlock()

	c.finishTeardown(conn, announced)
}

// teardownLocked moves the client to Closing and returns what must be released
// outside the lock.
func (c *Client) teardownLocked() (interfaces.Conn, bool) {
	c.shutdown = true
	c.generation++
	c.stopTimerLocked()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	announced := c.announced
	c.announced = false
	c.sessionID = ""
	if c.state != types.StateClosed {
		c.setStateLocked(types.StateClosing)
	}
	return conn, announced
}

// finishTeardown closes the socket, completes Closing and notifies false when the
// last notification was true. A Connect that started meanwhile keeps its state.
func (c *Client) finishTeardown(conn interfaces.Conn, announced bool) {
	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Socket close reported an error")
		}
		c.logger.Info().Msg("Disconnected from session")
	}
	c.mu.Lock()
	if c.state == types.StateClosing {
		c.setStateLocked(types.StateClosed)
	}
	c.mu.Unlock()
	if announced {
		c.registry.NotifyConnection(false)
	}
}

func (c *Client) dial(ctx context.Context, sessionID string) (interfaces.Conn, error) {
	address, err := transport.BuildAddress(c.serverURL, c.userID, c.role, sessionID)
	if err != nil {
		return nil, err
	}
	return c.dialer.Dial(ctx, address)
}

func dialError(err error) *types.Error {
	kind := transport.ClassifyDial(err)
	switch kind {
	case types.KindAuthenticationFailed:
		return types.NewError(kind, "not authorized to join session", err)
	case types.KindSessionNotFound:
		return types.NewError(kind, "session not found or ended", err)
	default:
		return types.NewError(types.KindConnectionFailed, "failed to connect", err)
	}
}

// establish installs conn as the live connection of lifecycle gen and starts its
// receive loop. It reports false, closing conn, when gen is no longer current.
func (c *Client) establish(gen uint64, conn interfaces.Conn) bool {
	c.mu.Lock()
	if gen != c.generation || c.shutdown {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.connectedAt = time.Now()
	c.messageCount = 0
	c.lastErr = nil
	c.policy.Reset()
	c.announced = true
	c.setStateLocked(types.StateConnected)
	sessionID := c.sessionID
	c.mu.Unlock()

	c.logger.Info().Str("session_id", sessionID).Msg("Connected to session")

	// FUNCTIONAL DISCOVERY: Connection handlers hear true before the receive loop
	// starts, so no frame of this connection can be dispatched ahead of it
	c.registry.NotifyConnection(true)

	c.mu.Lock()
	current := gen == c.generation && c.conn == conn
	c.mu.Unlock()
	if current {
		go c.receiveLoop(loopCtx, gen, conn)
	} else {
		cancel()
	}
	return true
}

// receiveLoop reads frames until the socket fails, then hands the closure off.
func (c *Client) receiveLoop(ctx context.Context, gen uint64, conn interfaces.Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleClosure(gen, conn, err)
			return
		}
		if !c.isCurrent(gen, conn) {
			return
		}
		if stop := c.handleFrame(ctx, gen, conn, data); stop {
			return
		}
	}
}

func (c *Client) isCurrent(gen uint64, conn interfaces.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation && c.conn == conn
}

// handleFrame decodes and dispatches one frame. It reports true when the loop must stop.
func (c *Client) handleFrame(ctx context.Context, gen uint64, conn interfaces.Conn, data []byte) bool {
	msg, err := types.DecodeMessage(data)
	if err != nil {
		c.metrics.DecodeError()
		c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("Dropping undecodable frame")
		c.registry.NotifyError(err)
		return false
	}

	c.mu.Lock()
	c.messageCount++
	c.mu.Unlock()
	c.metrics.MessageReceived(msg.Type)

	if msg.Type != types.MessageTypeSystem {
		c.registry.NotifyMessage(msg)
		return false
	}

	d := system.Interpret(msg)
	switch d.Action {
	case system.ActionTeardown:
		c.endSession(ctx, gen, conn, msg, d)
		return true
	case system.ActionReportError:
		c.logger.Warn().Str("message", d.Message).Str("detail", d.Detail).Msg("Server rejected a message")
		c.recordError(gen, d.Error())
		c.registry.NotifyError(d.Error())
	default:
		if d.Event == system.EventHistoryComplete {
			c.logger.Debug().Msg("Message history loaded")
		}
	}
	c.registry.NotifyMessage(msg)
	return false
}

// endSession runs the session_ended sequence: handlers, grace delay, teardown, error.
func (c *Client) endSession(ctx context.Context, gen uint64, conn interfaces.Conn, msg *types.Message, d system.Directive) {
	c.logger.Info().Str("reason", d.Reason).Msg("Session ended by server")

	c.registry.NotifyMessage(msg)

	if c.endGrace > 0 {
		t := time.NewTimer(c.endGrace)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}

	err := d.Error()
	c.mu.Lock()
	var (
		stale     interfaces.Conn
		announced bool
	)
	if gen == c.generation && c.conn == conn {
		stale, announced = c.teardownLocked()
		c.lastErr = err
	}
	c.mu.Unlock()
	c.finishTeardown(stale, announced)

	c.registry.NotifyError(err)
}

// handleClosure deals with a receive loop whose socket failed.
func (c *Client) handleClosure(gen uint64, conn interfaces.Conn, cause error) {
	c.mu.Lock()
	if gen != c.generation || c.shutdown || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	announced := c.announced
	c.announced = false
	c.setStateLocked(types.StateConnecting)
	c.mu.Unlock()

	_ = conn.Close()
	if announced {
		c.registry.NotifyConnection(false)
	}

	kind := transport.ClassifyClose(cause)
	if kind == types.KindAuthenticationFailed || kind == types.KindSessionNotFound {
		msg := "removed from session by server"
		if kind == types.KindSessionNotFound {
			msg = "session no longer exists"
		}
		c.fail(gen, types.NewError(kind, msg, cause))
		return
	}

	c.logger.Warn().Err(cause).Msg("Connection lost")
	c.registry.NotifyError(types.NewError(types.KindConnectionLost, "connection lost", cause))
	c.scheduleReconnect(gen)
}

// scheduleReconnect consults the policy and arms the reconnect timer, or gives up.
func (c *Client) scheduleReconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.shutdown {
		c.mu.Unlock()
		return
	}

	delay, err := c.policy.Next()
	if err != nil {
		e := &types.Error{
			Kind:     types.KindReconnectionFailed,
			Message:  "reconnection failed",
			Attempts: c.policy.Attempts(),
			Err:      err,
		}
		c.lastErr = e
		c.setStateLocked(types.StateFailed)
		c.mu.Unlock()

		c.logger.Error().Int("attempts", e.Attempts).Msg("Giving up on reconnection")
		c.registry.NotifyError(e)
		return
	}

	attempt := c.policy.Attempts()
	c.setStateLocked(types.StateConnecting)
	c.stopTimerLocked()
	c.timer = c.afterFunc(delay, func() { c.reconnect(gen) })
	c.mu.Unlock()

	c.metrics.ReconnectAttempt()
	c.logger.Info().
		Int("attempt", attempt).
		Int("max_attempts", c.policy.MaxAttempts()).
		Dur("delay", delay).
		Msg("Scheduling reconnection")
}

// reconnect runs on the timer goroutine.
func (c *Client) reconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.shutdown {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	sessionID := c.sessionID
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	conn, err := c.dial(ctx, sessionID)
	if err != nil {
		e := dialError(err)
		if e.Kind.Terminal() {
			c.fail(gen, e)
			return
		}
		c.logger.Warn().Err(err).Msg("Reconnection attempt failed")
		c.scheduleReconnect(gen)
		return
	}
	if c.establish(gen, conn) {
		c.logger.Info().Msg("Reconnected")
	}
}

// fail records a terminal error for lifecycle gen and reports it.
func (c *Client) fail(gen uint64, e *types.Error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.lastErr = e
	c.setStateLocked(types.StateFailed)
	c.mu.Unlock()

	c.logger.Error().Err(e).Str("kind", e.Kind.String()).Msg("Connection failed permanently")
	c.registry.NotifyError(e)
}

func (c *Client) recordError(gen uint64, err error) {
	c.mu.Lock()
	if gen == c.generation {
		c.lastErr = err
	}
	c.mu.Unlock()
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
