package student

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard-sdk/internal/testserver"
	"switchboard-sdk/pkg/client"
	"switchboard-sdk/pkg/types"
)

func newStudent(t *testing.T, srv *testserver.Server, userID string) *Student {
	t.Helper()
	s, err := New(userID,
		client.WithServerURL(srv.URL()),
		client.WithReconnectPolicy(10*time.Millisecond, 3, 0),
		client.WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	t.Cleanup(s.Disconnect)
	return s
}

func lastReceived(t *testing.T, srv *testserver.Server, userID string, n int) *types.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, srv.WaitForReceived(ctx, userID, n))
	got := srv.Received(userID)
	return got[len(got)-1]
}

func TestNew_SetsRole(t *testing.T) {
	s, err := New("alice", client.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	assert.Equal(t, types.RoleStudent, s.Role())

	_, err = New("not valid")
	assert.ErrorIs(t, err, types.ErrInvalidUserID)
}

func TestFindAvailableSessions(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()

	enrolled, err := srv.CreateSession("Go 101", "teacher1", "alice", "bob")
	require.NoError(t, err)
	_, err = srv.CreateSession("Rust 101", "teacher1", "bob")
	require.NoError(t, err)
	ended, err := srv.CreateSession("Old", "teacher1", "alice")
	require.NoError(t, err)
	require.NoError(t, srv.EndSession(ended.ID, "done"))

	s := newStudent(t, srv, "alice")
	available, err := s.FindAvailableSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, enrolled.ID, available[0].ID)
}

func TestConnectToAvailableSession(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()

	s := newStudent(t, srv, "alice")
	session, err := s.ConnectToAvailableSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.False(t, s.IsConnected())

	created, err := srv.CreateSession("Go 101", "teacher1", "alice")
	require.NoError(t, err)

	session, err = s.ConnectToAvailableSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, created.ID, session.ID)
	assert.True(t, s.IsConnected())
	assert.Equal(t, created.ID, s.SessionID())
}

func TestSendOperations(t *testing.T) {
	srv := testserver.New(testserver.WithoutHistory())
	defer srv.Close()
	session, err := srv.CreateSession("Go 101", "teacher1", "alice")
	require.NoError(t, err)

	s := newStudent(t, srv, "alice")
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx, session.ID))

	require.NoError(t, s.AskQuestion(ctx, map[string]any{"text": "why?"}, ""))
	msg := lastReceived(t, srv, "alice", 1)
	assert.Equal(t, types.MessageTypeInstructorInbox, msg.Type)
	assert.Equal(t, ContextQuestion, msg.Context)

	require.NoError(t, s.RespondToRequest(ctx, map[string]any{"code": "x := 1"}, "code"))
	msg = lastReceived(t, srv, "alice", 2)
	assert.Equal(t, types.MessageTypeRequestResponse, msg.Type)
	assert.Equal(t, "code", msg.Context)

	require.NoError(t, s.ReportProgress(ctx, Progress{
		CompletionPercentage: 40,
		TimeSpentMinutes:     12,
		CurrentTopic:         "maps",
		ExercisesCompleted:   2,
		ExercisesTotal:       5,
	}))
	msg = lastReceived(t, srv, "alice", 3)
	assert.Equal(t, types.MessageTypeAnalytics, msg.Type)
	assert.Equal(t, ContextProgress, msg.Context)
	assert.Equal(t, float64(40), msg.Content["completion_percentage"])
	assert.Equal(t, "maps", msg.Content["current_topic"])

	require.NoError(t, s.ReportEngagement(ctx, Engagement{AttentionLevel: "high", ConfusionLevel: "low", ParticipationScore: 80}))
	msg = lastReceived(t, srv, "alice", 4)
	assert.Equal(t, ContextEngagement, msg.Context)
	assert.Contains(t, msg.Content, "last_interaction")

	require.NoError(t, s.ReportError(ctx, ErrorReport{ErrorType: "runtime_error", ErrorMessage: "nil map", AttemptedFixes: 3}))
	msg = lastReceived(t, srv, "alice", 5)
	assert.Equal(t, ContextError, msg.Context)
	assert.Equal(t, float64(3), msg.Content["attempted_fixes"])

	require.NoError(t, s.RequestHelp(ctx, HelpRequest{Topic: "maps", Description: "panic on write"}))
	msg = lastReceived(t, srv, "alice", 6)
	assert.Equal(t, types.MessageTypeInstructorInbox, msg.Type)
	assert.Equal(t, ContextHelp, msg.Context)
	assert.Equal(t, "panic on write", msg.Content["text"])
	assert.Equal(t, "medium", msg.Content["urgency"])
}

func TestSend_NotConnected(t *testing.T) {
	s, err := New("alice", client.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)

	err = s.AskQuestion(context.Background(), map[string]any{"text": "hi"}, "")
	assert.ErrorIs(t, err, types.ErrSendFailed)
}

func TestHandlerShortcuts(t *testing.T) {
	srv := testserver.New(testserver.WithoutHistory())
	defer srv.Close()
	session, err := srv.CreateSession("Go 101", "teacher1", "alice")
	require.NoError(t, err)

	s := newStudent(t, srv, "alice")
	got := make(chan types.MessageType, 4)
	record := func(m *types.Message) error {
		got <- m.Type
		return nil
	}
	s.OnInstructorResponse(record)
	s.OnInstructorRequest(record)
	s.OnInstructorBroadcast(record)
	s.OnSystemMessage(record)

	require.NoError(t, s.Connect(context.Background(), session.ID))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, srv.WaitForConnection(ctx, "alice", 1))

	for _, mt := range []types.MessageType{
		types.MessageTypeInboxResponse,
		types.MessageTypeRequest,
		types.MessageTypeInstructorBroadcast,
		types.MessageTypeSystem,
	} {
		require.NoError(t, srv.Push("alice", map[string]any{"type": mt, "content": map[string]any{"event": "note"}}))
		select {
		case received := <-got:
			assert.Equal(t, mt, received)
		case <-ctx.Done():
			t.Fatalf("no %s delivered", mt)
		}
	}
}
