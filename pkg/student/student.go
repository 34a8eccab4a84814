// Package student wraps the session client with the operations a student uses.
package student

import (
	"context"

	"switchboard-sdk/pkg/client"
	"switchboard-sdk/pkg/types"
)

// Default contexts for student messages.
const (
	ContextQuestion   = "question"
	ContextResponse   = "response"
	ContextProgress   = "progress"
	ContextEngagement = "engagement"
	ContextError      = "error"
	ContextHelp       = "help"
)

// Student can send instructor_inbox, request_response and analytics, and receives
// inbox_response, request and instructor_broadcast.
type Student struct {
	*client.Client
}

// New creates a student client for userID.
func New(userID string, opts ...client.Option) (*Student, error) {
	c, err := client.New(userID, types.RoleStudent, opts...)
	if err != nil {
		return nil, err
	}
	return &Student{Client: c}, nil
}

// FindAvailableSessions returns the active sessions this student is enrolled in.
func (s *Student) FindAvailableSessions(ctx context.Context) ([]*types.Session, error) {
	sessions, err := s.DiscoverSessions(ctx)
	if err != nil {
		return nil, err
	}
	available := make([]*types.Session, 0, len(sessions))
	for _, session := range sessions {
		if session.IsActive() && session.HasStudent(s.UserID()) {
			available = append(available, session)
		}
	}
	return available, nil
}

// ConnectToAvailableSession joins the first available session. It returns nil and no
// error when there is nothing to join.
func (s *Student) ConnectToAvailableSession(ctx context.Context) (*types.Session, error) {
	available, err := s.FindAvailableSessions(ctx)
	if err != nil {
		return nil, err
	}
	if len(available) == 0 {
		return nil, nil
	}
	session := available[0]
	if err := s.Connect(ctx, session.ID); err != nil {
		return nil, err
	}
	return session, nil
}

// AskQuestion sends content to every instructor in the session. An empty msgContext
// means "question".
func (s *Student) AskQuestion(ctx context.Context, content map[string]any, msgContext string) error {
	return s.SendMessage(ctx, types.MessageTypeInstructorInbox, orDefault(msgContext, ContextQuestion), content, "")
}

// RespondToRequest answers an instructor request. Reuse the request's context so the
// instructor can match the reply.
func (s *Student) RespondToRequest(ctx context.Context, content map[string]any, msgContext string) error {
	return s.SendMessage(ctx, types.MessageTypeRequestResponse, orDefault(msgContext, ContextResponse), content, "")
}

// SendAnalytics sends an analytics payload, by default under "progress".
func (s *Student) SendAnalytics(ctx context.Context, content map[string]any, msgContext string) error {
	return s.SendMessage(ctx, types.MessageTypeAnalytics, orDefault(msgContext, ContextProgress), content, "")
}

// Progress is reported under the "progress" analytics context.
type Progress struct {
	CompletionPercentage int
	TimeSpentMinutes     int
	CurrentTopic         string
	ExercisesCompleted   int
	ExercisesTotal       int
}

func (s *Student) ReportProgress(ctx context.Context, p Progress) error {
	return s.SendAnalytics(ctx, map[string]any{
		"completion_percentage": p.CompletionPercentage,
		"time_spent_minutes":    p.TimeSpentMinutes,
		"current_topic":         p.CurrentTopic,
		"exercises_completed":   p.ExercisesCompleted,
		"exercises_total":       p.ExercisesTotal,
	}, ContextProgress)
}

// Engagement levels are free-form; "high", "medium" and "low" are conventional.
type Engagement struct {
	AttentionLevel     string
	ConfusionLevel     string
	ParticipationScore int
}

// ReportEngagement sends engagement metrics along with the current connection uptime.
func (s *Student) ReportEngagement(ctx context.Context, e Engagement) error {
	return s.SendAnalytics(ctx, map[string]any{
		"attention_level":     e.AttentionLevel,
		"confusion_level":     e.ConfusionLevel,
		"participation_score": e.ParticipationScore,
		"last_interaction":    s.Status().UptimeSeconds,
	}, ContextEngagement)
}

// ErrorReport describes a problem the student is stuck on.
type ErrorReport struct {
	ErrorType        string
	ErrorMessage     string
	CodeContext      string
	AttemptedFixes   int
	TimeStuckMinutes int
}

func (s *Student) ReportError(ctx context.Context, r ErrorReport) error {
	return s.SendAnalytics(ctx, map[string]any{
		"error_type":         r.ErrorType,
		"error_message":      r.ErrorMessage,
		"code_context":       r.CodeContext,
		"attempted_fixes":    r.AttemptedFixes,
		"time_stuck_minutes": r.TimeStuckMinutes,
	}, ContextError)
}

// HelpRequest is sent to instructors as a question under the "help" context.
// Urgency defaults to "medium".
type HelpRequest struct {
	Topic       string
	Description string
	Urgency     string
	CodeContext string
}

func (s *Student) RequestHelp(ctx context.Context, h HelpRequest) error {
	return s.AskQuestion(ctx, map[string]any{
		"text":         h.Description,
		"topic":        h.Topic,
		"urgency":      orDefault(h.Urgency, "medium"),
		"code_context": h.CodeContext,
	}, ContextHelp)
}

func (s *Student) OnInstructorResponse(h client.MessageHandler) {
	s.OnMessage(types.MessageTypeInboxResponse, h)
}

func (s *Student) OnInstructorRequest(h client.MessageHandler) {
	s.OnMessage(types.MessageTypeRequest, h)
}

func (s *Student) OnInstructorBroadcast(h client.MessageHandler) {
	s.OnMessage(types.MessageTypeInstructorBroadcast, h)
}

func (s *Student) OnSystemMessage(h client.MessageHandler) {
	s.OnMessage(types.MessageTypeSystem, h)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
