package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"switchboard-sdk/internal/testserver"
	"switchboard-sdk/internal/transport"
	"switchboard-sdk/pkg/interfaces"
	"switchboard-sdk/pkg/types"
)

const waitFor = 3 * time.Second

// recorder captures handler activity in the order it happened.
type recorder struct {
	mu     sync.Mutex
	events []string
	errs   []error
	msgs   []*types.Message
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// attach registers recording handlers for the given message types plus connection
// and error handlers.
func (r *recorder) attach(c *Client, msgTypes ...types.MessageType) {
	c.OnConnection(func(connected bool) error {
		r.add(fmt.Sprintf("conn:%t", connected))
		return nil
	})
	c.OnError(func(err error) {
		r.mu.Lock()
		r.errs = append(r.errs, err)
		r.events = append(r.events, "error:"+types.KindOf(err).String())
		r.mu.Unlock()
	})
	for _, t := range msgTypes {
		c.OnMessage(t, func(msg *types.Message) error {
			label := "msg:" + string(msg.Type)
			if msg.Type == types.MessageTypeSystem {
				event, _ := msg.Content["event"].(string)
				label = "system:" + event
			}
			r.mu.Lock()
			r.msgs = append(r.msgs, msg)
			r.events = append(r.events, label)
			r.mu.Unlock()
			return nil
		})
	}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.snapshot() {
		if e == event {
			n++
		}
	}
	return n
}

func (r *recorder) errorsOfKind(kind types.ErrorKind) []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []error
	for _, err := range r.errs {
		if types.KindOf(err) == kind {
			out = append(out, err)
		}
	}
	return out
}

func (r *recorder) messages() []*types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*types.Message(nil), r.msgs...)
}

func (r *recorder) waitForEvent(t *testing.T, event string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.count(event) >= n },
		waitFor, 5*time.Millisecond, "waiting for %d x %s, have %v", n, event, r.snapshot())
}

// recordingDialer wraps the real dialer so socket closes show up in the recorder.
type recordingDialer struct {
	inner interfaces.Dialer
	rec   *recorder
}

func (d *recordingDialer) Dial(ctx context.Context, address *url.URL) (interfaces.Conn, error) {
	conn, err := d.inner.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	return &recordingConn{Conn: conn, rec: d.rec}, nil
}

type recordingConn struct {
	interfaces.Conn
	rec  *recorder
	once sync.Once
}

func (c *recordingConn) Close() error {
	c.once.Do(func() { c.rec.add("socket:closed") })
	return c.Conn.Close()
}

func newSession(t *testing.T, srv *testserver.Server, students ...string) *types.Session {
	t.Helper()
	if len(students) == 0 {
		students = []string{"alice"}
	}
	s, err := srv.CreateSession("Intro to Go", "teacher1", students...)
	require.NoError(t, err)
	return s
}

func newTestClient(t *testing.T, srv *testserver.Server, userID string, role types.Role, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithServerURL(srv.URL()),
		WithReconnectPolicy(10*time.Millisecond, 5, 0),
		WithSessionEndGrace(20 * time.Millisecond),
		WithRegisterer(prometheus.NewRegistry()),
		WithHandshakeTimeout(2 * time.Second),
	}
	c, err := New(userID, role, append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func waitConnected(t *testing.T, srv *testserver.Server, userID string, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, srv.WaitForConnection(ctx, userID, n))
}

func realDialer() interfaces.Dialer {
	return transport.NewDialer(2*time.Second, time.Second)
}

func hasPrefix(events []string, prefix string) bool {
	for _, e := range events {
		if strings.HasPrefix(e, prefix) {
			return true
		}
	}
	return false
}
