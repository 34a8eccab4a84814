// Package directory is the REST client for session discovery and management.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"switchboard-sdk/pkg/interfaces"
	"switchboard-sdk/pkg/types"
)

const (
	defaultTimeout = 10 * time.Second
	// fanOutLimit bounds concurrent requests in GetSessions.
	fanOutLimit  = 4
	maxErrorBody = 4096
)

var _ interfaces.SessionDirectory = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client talks to the server's /api/sessions endpoints.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  zerolog.Logger
}

// New creates a directory client for the server at baseURL (http or https;
// ws and wss are mapped to their HTTP equivalents).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: missing host", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type sessionEnvelope struct {
	Session         *types.Session `json:"session"`
	ConnectionCount *int           `json:"connection_count"`
}

type listEnvelope struct {
	Sessions []*types.Session `json:"sessions"`
}

type createRequest struct {
	Name         string   `json:"name"`
	InstructorID string   `json:"instructor_id"`
	StudentIDs   []string `json:"student_ids"`
}

// HealthStatus is the server's /health report.
type HealthStatus struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

// ListSessions returns the active sessions with their connection counts.
func (c *Client) ListSessions(ctx context.Context) ([]*types.Session, error) {
	var out listEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	if out.Sessions == nil {
		out.Sessions = []*types.Session{}
	}
	return out.Sessions, nil
}

// GetSession returns one session. An unknown ID yields types.ErrSessionNotFound.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	if sessionID == "" {
		return nil, types.NewError(types.KindRequestFailed, "session ID is required", nil)
	}
	var out sessionEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	if out.Session == nil {
		return nil, types.NewError(types.KindRequestFailed, "response missing session", nil)
	}
	if out.ConnectionCount != nil {
		n := *out.ConnectionCount
		out.Session.ConnectionCount = &n
	}
	return out.Session, nil
}

// GetSessions fetches several sessions concurrently, preserving the order of ids.
// The first failure cancels the rest.
func (c *Client) GetSessions(ctx context.Context, ids ...string) ([]*types.Session, error) {
	out := make([]*types.Session, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)

	for i, id := range ids {
		g.Go(func() error {
			s, err := c.GetSession(gctx, id)
			if err != nil {
				return fmt.Errorf("session %s: %w", id, err)
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateSession(ctx context.Context, name, instructorID string, studentIDs []string) (*types.Session, error) {
	body := createRequest{Name: name, InstructorID: instructorID, StudentIDs: studentIDs}
	var out sessionEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/sessions", body, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	if out.Session == nil {
		return nil, types.NewError(types.KindRequestFailed, "response missing session", nil)
	}
	return out.Session, nil
}

// EndSession ends an active session. Connected participants receive session_ended.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return types.NewError(types.KindRequestFailed, "session ID is required", nil)
	}
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(sessionID), nil, http.StatusOK, nil)
}

// Health queries /health.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return types.NewError(types.KindRequestFailed, "failed to encode request", err)
		}
		body = bytes.NewReader(data)
	}

	u := *c.baseURL
	u.Path += path
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return types.NewError(types.KindRequestFailed, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return types.NewError(types.KindRequestFailed, fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Directory request")

	if resp.StatusCode != want {
		return statusError(method, path, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewError(types.KindRequestFailed, "failed to decode response", err)
	}
	return nil
}

type errorBody struct {
	Message string `json:"message"`
}

func statusError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := strings.TrimSpace(string(raw))
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Message != "" {
		detail = eb.Message
	}

	kind := types.KindRequestFailed
	if resp.StatusCode == http.StatusNotFound {
		kind = types.KindSessionNotFound
	}
	return &types.Error{
		Kind:    kind,
		Message: fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode),
		Reason:  detail,
	}
}
