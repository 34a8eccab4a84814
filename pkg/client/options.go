package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"switchboard-sdk/internal/reconnect"
	"switchboard-sdk/pkg/interfaces"
)

// Defaults applied by New.
const (
	DefaultServerURL       = "http://localhost:8080"
	DefaultSessionEndGrace = 100 * time.Millisecond
)

// Option configures a Client.
type Option func(*Client)

// WithServerURL sets the server base URL (http, https, ws or wss).
func WithServerURL(u string) Option {
	return func(c *Client) { c.serverURL = u }
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) { c.handshakeTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) { c.writeTimeout = d }
}

// WithReconnectPolicy sets the backoff base, the attempt budget and an optional cap
// on a single delay (zero for none).
func WithReconnectPolicy(baseDelay time.Duration, maxAttempts int, maxDelay time.Duration) Option {
	return func(c *Client) { c.policy = reconnect.NewPolicy(baseDelay, maxAttempts, maxDelay) }
}

// WithSessionEndGrace sets how long handlers get between session_ended and teardown.
func WithSessionEndGrace(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.endGrace = d
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithDialer replaces the WebSocket dialer, mostly for tests.
func WithDialer(d interfaces.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithDirectory replaces the REST directory built from the server URL.
func WithDirectory(d interfaces.SessionDirectory) Option {
	return func(c *Client) { c.directory = d }
}

// WithRegisterer registers the client's metrics on reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) { c.registerer = reg }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracerProvider = tp }
}
