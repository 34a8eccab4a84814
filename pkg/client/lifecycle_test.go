package client

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"switchboard-sdk/internal/testserver"
	"switchboard-sdk/pkg/types"
)

// Lifecycle tests close the server and client with defers rather than t.Cleanup so
// that goleak runs after every goroutine has been asked to stop.

func TestDisconnect_Twice(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	srv := testserver.New(testserver.WithoutHistory())
	defer srv.Close()
	session := newSession(t, srv)

	rec := &recorder{}
	c := newTestClient(t, srv, "alice", types.RoleStudent,
		WithDialer(&recordingDialer{inner: realDialer(), rec: rec}))
	rec.attach(c)

	require.NoError(t, c.Connect(context.Background(), session.ID))
	c.Disconnect()
	c.Disconnect()

	assert.Equal(t, []string{"conn:true", "socket:closed", "conn:false"}, rec.snapshot())
	st := c.Status()
	assert.Equal(t, types.StateClosed, st.State)
	assert.False(t, st.Connected)
	assert.Empty(t, st.SessionID)
	assert.Zero(t, st.UptimeSeconds)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, srv.WaitForDisconnect(ctx, "alice"))
}

func TestDisconnect_Idle(t *testing.T) {
	c, err := New("alice", types.RoleStudent)
	require.NoError(t, err)
	rec := &recorder{}
	rec.attach(c)

	c.Disconnect()
	assert.Equal(t, types.StateClosed, c.State())
	assert.Empty(t, rec.snapshot())

	c.Disconnect()
	assert.Equal(t, types.StateClosed, c.State())
	assert.Empty(t, rec.snapshot())
}

func TestDisconnect_FromMessageHandler(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	srv := testserver.New(testserver.WithoutHistory())
	defer srv.Close()
	session := newSession(t, srv)

	c := newTestClient(t, srv, "alice", types.RoleStudent)
	defer c.Disconnect()
	rec := &recorder{}
	rec.attach(c)
	c.OnMessage(types.MessageTypeRequest, func(*types.Message) error {
		c.Disconnect()
		return nil
	})

	require.NoError(t, c.Connect(context.Background(), session.ID))
	waitConnected(t, srv, "alice", 1)
	require.NoError(t, srv.Push("alice", map[string]any{"type": "request", "context": "code", "content": map[string]any{}}))

	rec.waitForEvent(t, "conn:false", 1)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"conn:true", "conn:false"}, rec.snapshot())
	assert.Equal(t, types.StateClosed, c.State())
	assert.Equal(t, 1, srv.ConnectCount("alice"))
}

func TestSessionEnded_Sequence(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	srv := testserver.New(testserver.WithoutHistory())
	defer srv.Close()
	session := newSession(t, srv)

	rec := &recorder{}
	c := newTestClient(t, srv, "alice", types.RoleStudent,
		WithDialer(&recordingDialer{inner: realDialer(), rec: rec}))
	defer c.Disconnect()
	rec.attach(c, types.MessageTypeSystem)

	require.NoError(t, c.Connect(context.Background(), session.ID))
	waitConnected(t, srv, "alice", 1)
	require.NoError(t, srv.EndSession(session.ID, "timeout"))

	rec.waitForEvent(t, "error:session_ended", 1)
	assert.Equal(t, []string{
		"conn:true",
		"system:session_ended",
		"socket:closed",
		"conn:false",
		"error:session_ended",
	}, rec.snapshot())

	errs := rec.errorsOfKind(types.KindSessionEnded)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], types.ErrSessionEnded)
	var e *types.Error
	require.ErrorAs(t, errs[0], &e)
	assert.Equal(t, "timeout", e.Reason)

	st := c.Status()
	assert.Equal(t, types.StateClosed, st.State)
	assert.ErrorIs(t, st.LastError, types.ErrSessionEnded)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, srv.ConnectCount("alice"), "no reconnection after the session ends")
}

func TestSessionEnded_DefaultReason(t *testing.T) {
	srv := testserver.New(testserver.WithoutHistory())
	defer srv.Close()
	session := newSession(t, srv)

	c := newTestClient(t, srv, "alice", types.RoleStudent)
	defer c.Disconnect()
	rec := &recorder{}
	rec.attach(c)

	require.NoError(t, c.Connect(context.Background(), session.ID))
	waitConnected(t, srv, "alice", 1)
	require.NoError(t, srv.PushSystem("alice", map[string]any{"event": "session_ended"}))

	rec.waitForEvent(t, "error:session_ended", 1)
	var e *types.Error
	require.ErrorAs(t, rec.errorsOfKind(types.KindSessionEnded)[0], &e)
	assert.Equal(t, "Unknown reason", e.Reason)
}

func TestSessionEnded_DisconnectCutsGraceShort(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	srv := testserver.New(testserver.WithoutHistory())
	defer srv.Close()
	session := newSession(t, srv)

	c := newTestClient(t, srv, "alice", types.RoleStudent, WithSessionEndGrace(10*time.Second))
	defer c.Disconnect()
	rec := &recorder{}
	rec.attach(c)
	c.OnMessage(types.MessageTypeSystem, func(msg *types.Message) error {
		if msg.Content["event"] == "session_ended" {
			c.Disconnect()
		}
		return nil
	})

	require.NoError(t, c.Connect(context.Background(), session.ID))
	waitConnected(t, srv, "alice", 1)

	start := time.Now()
	require.NoError(t, srv.EndSession(session.ID, "done"))
	rec.waitForEvent(t, "error:session_ended", 1)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []string{"conn:true", "conn:false", "error:session_ended"}, rec.snapshot())
}

func TestReconnect_AfterDropResetsCounters(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	srv := testserver.New(testserver.WithoutHistory())
	defer srv.Close()
	session := newSession(t, srv)

	c := newTestClient(t, srv, "alice", types.RoleStudent)
	defer c.Disconnect()
	rec := &recorder{}
	rec.attach(c, types.MessageTypeRequest)

	require.NoError(t, c.Connect(context.Background(), session.ID))
	waitConnected(t, srv, "alice", 1)
	require.NoError(t, srv.Push("alice", map[string]any{"type": "request", "context": "code", "content": map[string]any{}}))
	rec.waitForEvent(t, "msg:request", 1)
	assert.Equal(t, 1, c.Status().MessageCount)

	require.NoError(t, srv.Drop("alice"))
	rec.waitForEvent(t, "conn:true", 2)
	waitConnected(t, srv, "alice", 2)

	assert.Equal(t, []string{"conn:true", "msg:request", "conn:false", "error:connection_lost", "conn:true"}, rec.snapshot())
	st := c.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, session.ID, st.SessionID)
	assert.Zero(t, st.MessageCount, "message count restarts with each connection")
	assert.Zero(t, st.ReconnectAttempts, "attempts reset once reconnected")
	assert.NoError(t, st.LastError)

	require.NoError(t, srv.Push("alice", map[string]any{"type": "request", "context": "code", "content": map[string]any{}}))
	rec.waitForEvent(t, "msg:request", 2)
	assert.Equal(t, 1, c.Status().MessageCount)
}

func TestReconnect_NormalCloseFromServerIsRetried(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	srv := testserver.New(testserver.WithoutHistory())
	defer srv.Close()
	session := newSession(t, srv)

	c := newTestClient(t, srv, "alice", types.RoleStudent)
	defer c.Disconnect()
	rec := &recorder{}
	rec.attach(c)

	require.NoError(t, c.Connect(context.Background(), session.ID))
	waitConnected(t, srv, "alice", 1)
	require.NoError(t, srv.CloseWith("alice", 1000, "bye"))

	rec.waitForEvent(t, "conn:true", 2)
	assert.Len(t, rec.errorsOfKind(types.KindConnectionLost), 1)
}

func TestReconnect_Exhausted(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	srv := testserver.New(testserver.WithoutHistory())
	defer srv.Close()
	session := newSession(t, srv)

	c := newTestClient(t, srv, "alice", types.RoleStudent, WithReconnectPolicy(5*time.Millisecond, 3, 0))
	defer c.Disconnect()
	rec := &recorder{}
	rec.attach(c)

	require.NoError(t, c.Connect(context.Background(), session.ID))
	waitConnected(t, srv, "alice", 1)
	srv.Reject("alice", http.StatusServiceUnavailable)
	require.NoError(t, srv.Drop("alice"))

	rec.waitForEvent(t, "error:reconnection_failed", 1)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []string{"conn:true", "conn:false", "error:connection_lost", "error:reconnection_failed"}, rec.snapshot())
	var e *types.Error
	require.ErrorAs(t, rec.errorsOfKind(types.KindReconnectionFailed)[0], &e)
	assert.Equal(t, 3, e.Attempts)

	st := c.Status()
	assert.Equal(t, types.StateFailed, st.State)
	assert.Equal(t, 3, st.ReconnectAttempts)
	assert.ErrorIs(t, st.LastError, types.ErrReconnectionFailed)
	assert.Equal(t, 1, srv.ConnectCount("alice"))
}

// FUNCTIONAL DISCOVERY: A zero attempt budget turns reconnection off, so the first
// lost connection is final
func TestReconnect_ZeroAttemptsFailsImmediately(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	srv := testserver.New(testserver.WithoutHistory())
	defer srv.Close()
	session := newSession(t, srv)

	c := newTestClient(t, srv, "alice", types.RoleStudent, WithReconnectPolicy(10*time.Millisecond, 0, 0))
	defer c.Disconnect()
	rec := &recorder{}
	rec.attach(c)

	require.NoError(t, c.Connect(context.Background(), session.ID))
	waitConnected(t, srv, "alice", 1)
	require.NoError(t, srv.Drop("alice"))

	rec.waitForEvent(t, "error:reconnection_failed", 1)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, []string{"conn:true", "conn:false", "error:connection_lost", "error:reconnection_failed"}, rec.snapshot())
	var e *types.Error
	require.ErrorAs(t, rec.errorsOfKind(types.KindReconnectionFailed)[0], &e)
	assert.Zero(t, e.Attempts)

	st := c.Status()
	assert.Equal(t, types.StateFailed, st.State)
	assert.Zero(t, st.ReconnectAttempts)
	assert.Equal(t, 1, srv.ConnectCount("alice"))
}

// TECHNICAL DISCOVERY: The timers the client arms follow the doubling schedule
func TestReconnect_ArmsTimersWithBackoffSchedule(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	srv := testserver.New(testserver.WithoutHistory())
	defer srv.Close()
	session := newSession(t, srv)

	c := newTestClient(t, srv, "alice", types.RoleStudent, WithReconnectPolicy(time.Second, 5, 0))
	defer c.Disconnect()
	rec := &recorder{}
	rec.attach(c)

	var (
		mu     sync.Mutex
		delays []time.Duration
	)
	c.afterFunc = func(d time.Duration, f func()) *time.Timer {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return time.AfterFunc(time.Millisecond, f)
	}

	require.NoError(t, c.Connect(context.Background(), session.ID))
	waitConnected(t, srv, "alice", 1)
	srv.Reject("alice", http.StatusServiceUnavailable)
	require.NoError(t, srv.Drop("alice"))

	rec.waitForEvent(t, "error:reconnection_failed", 1)

	mu.Lock()
	got := append([]time.Duration(nil), delays...)
	mu.Unlock()
	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}, got)

	var e *types.Error
	require.ErrorAs(t, rec.errorsOfKind(types.KindReconnectionFailed)[0], &e)
	assert.Equal(t, 5, e.Attempts)
	assert.Equal(t, types.StateFailed, c.State())
}

func TestReconnect_RejectedAsForbiddenIsTerminal(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	srv := testserver.New(testserver.WithoutHistory())
	defer srv.Close()
	session := newSession(t, srv)

	c := newTestClient(t, srv, "alice", types.RoleStudent)
	defer c.Disconnect()
	rec := &recorder{}
	rec.attach(c)

	require.NoError(t, c.Connect(context.Background(), session.ID))
	waitConnected(t, srv, "alice", 1)
	srv.Reject("alice", http.StatusForbidden)
	require.NoError(t, srv.Drop("alice"))

	rec.waitForEvent(t, "error:authentication_failed", 1)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []string{"conn:true", "conn:false", "error:connection_lost", "error:authentication_failed"}, rec.snapshot())
	st := c.Status()
	assert.Equal(t, types.StateFailed, st.State)
	assert.Equal(t, 1, st.ReconnectAttempts)
}

func TestClosure_RejectionCodesAreTerminal(t *testing.T) {
	tests := []struct {
		name  string
		code  int
		event string
		kind  types.ErrorKind
	}{
		{name: "policy violation", code: 1008, event: "error:authentication_failed", kind: types.KindAuthenticationFailed},
		{name: "forbidden", code: 4403, event: "error:authentication_failed", kind: types.KindAuthenticationFailed},
		{name: "unauthorized", code: 4401, event: "error:authentication_failed", kind: types.KindAuthenticationFailed},
		{name: "not found", code: 4004, event: "error:session_not_found", kind: types.KindSessionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
			srv := testserver.New(testserver.WithoutHistory())
			defer srv.Close()
			session := newSession(t, srv)

			c := newTestClient(t, srv, "alice", types.RoleStudent)
			defer c.Disconnect()
			rec := &recorder{}
			rec.attach(c)

			require.NoError(t, c.Connect(context.Background(), session.ID))
			waitConnected(t, srv, "alice", 1)
			require.NoError(t, srv.CloseWith("alice", tt.code, "rejected"))

			rec.waitForEvent(t, tt.event, 1)
			time.Sleep(50 * time.Millisecond)

			assert.Equal(t, []string{"conn:true", "conn:false", tt.event}, rec.snapshot())
			st := c.Status()
			assert.Equal(t, types.StateFailed, st.State)
			assert.Zero(t, st.ReconnectAttempts)
			assert.Equal(t, tt.kind, types.KindOf(st.LastError))
			assert.Equal(t, 1, srv.ConnectCount("alice"))
		})
	}
}

func TestDisconnect_CancelsPendingReconnect(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	srv := testserver.New(testserver.WithoutHistory())
	defer srv.Close()
	session := newSession(t, srv)

	c := newTestClient(t, srv, "alice", types.RoleStudent, WithReconnectPolicy(100*time.Millisecond, 5, 0))
	defer c.Disconnect()
	rec := &recorder{}
	rec.attach(c)

	require.NoError(t, c.Connect(context.Background(), session.ID))
	waitConnected(t, srv, "alice", 1)
	require.NoError(t, srv.Drop("alice"))

	rec.waitForEvent(t, "error:connection_lost", 1)
	assert.Equal(t, types.StateConnecting, c.State())
	c.Disconnect()

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, []string{"conn:true", "conn:false", "error:connection_lost"}, rec.snapshot())
	assert.Equal(t, types.StateClosed, c.State())
	assert.Equal(t, 1, srv.ConnectCount("alice"))
}

func TestConnect_AfterFailureStartsFreshLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	srv := testserver.New(testserver.WithoutHistory())
	defer srv.Close()
	session := newSession(t, srv)

	c := newTestClient(t, srv, "alice", types.RoleStudent)
	defer c.Disconnect()

	srv.Reject("alice", http.StatusForbidden)
	require.Error(t, c.Connect(context.Background(), session.ID))
	assert.Equal(t, types.StateFailed, c.State())

	srv.Accept("alice")
	require.NoError(t, c.Connect(context.Background(), session.ID))
	st := c.Status()
	assert.True(t, st.Connected)
	assert.NoError(t, st.LastError)
}
