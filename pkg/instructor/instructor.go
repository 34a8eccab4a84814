// Package instructor wraps the session client with session management and the
// messages an instructor sends.
package instructor

import (
	"context"
	"fmt"
	"maps"
	"time"

	"switchboard-sdk/pkg/client"
	"switchboard-sdk/pkg/types"
)

// Default contexts for instructor messages.
const (
	ContextAnswer       = "answer"
	ContextRequest      = "request"
	ContextAnnouncement = "announcement"
	ContextInstruction  = "instruction"
	ContextCode         = "code"
	ContextFeedback     = "feedback"
	ContextBreak        = "break"
	ContextProblem      = "problem"
)

// Instructor can join any active session, manage sessions, and send inbox_response,
// request and instructor_broadcast.
type Instructor struct {
	*client.Client
}

// New creates an instructor client for userID.
func New(userID string, opts ...client.Option) (*Instructor, error) {
	c, err := client.New(userID, types.RoleInstructor, opts...)
	if err != nil {
		return nil, err
	}
	return &Instructor{Client: c}, nil
}

// CreateSession creates a session owned by this instructor.
func (in *Instructor) CreateSession(ctx context.Context, name string, studentIDs []string) (*types.Session, error) {
	return in.Directory().CreateSession(ctx, name, in.UserID(), studentIDs)
}

// EndSession ends a session; connected participants receive session_ended.
func (in *Instructor) EndSession(ctx context.Context, sessionID string) error {
	return in.Directory().EndSession(ctx, sessionID)
}

func (in *Instructor) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	sessions, err := in.DiscoverSessions(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]*types.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.IsActive() {
			active = append(active, s)
		}
	}
	return active, nil
}

// CreateAndConnect creates a session and joins it.
func (in *Instructor) CreateAndConnect(ctx context.Context, name string, studentIDs []string) (*types.Session, error) {
	session, err := in.CreateSession(ctx, name, studentIDs)
	if err != nil {
		return nil, err
	}
	if err := in.Connect(ctx, session.ID); err != nil {
		return nil, err
	}
	return session, nil
}

// EndCurrentSession ends the connected session and disconnects.
func (in *Instructor) EndCurrentSession(ctx context.Context) error {
	sessionID := in.SessionID()
	if sessionID == "" {
		return types.ErrNoSession
	}
	if err := in.EndSession(ctx, sessionID); err != nil {
		return err
	}
	in.Disconnect()
	return nil
}

// RespondToStudent sends a direct inbox_response, by default under "answer".
func (in *Instructor) RespondToStudent(ctx context.Context, studentID string, content map[string]any, msgContext string) error {
	return in.SendMessage(ctx, types.MessageTypeInboxResponse, orDefault(msgContext, ContextAnswer), content, studentID)
}

// RequestFromStudent sends a direct request, by default under "request".
func (in *Instructor) RequestFromStudent(ctx context.Context, studentID string, content map[string]any, msgContext string) error {
	return in.SendMessage(ctx, types.MessageTypeRequest, orDefault(msgContext, ContextRequest), content, studentID)
}

// BroadcastToStudents reaches every student in the session, by default under "announcement".
func (in *Instructor) BroadcastToStudents(ctx context.Context, content map[string]any, msgContext string) error {
	return in.SendMessage(ctx, types.MessageTypeInstructorBroadcast, orDefault(msgContext, ContextAnnouncement), content, "")
}

// Announce broadcasts text plus any extra content fields.
func (in *Instructor) Announce(ctx context.Context, text string, extra map[string]any) error {
	return in.BroadcastToStudents(ctx, withText(text, extra), ContextAnnouncement)
}

func (in *Instructor) GiveInstruction(ctx context.Context, instruction string, extra map[string]any) error {
	return in.BroadcastToStudents(ctx, withText(instruction, extra), ContextInstruction)
}

// CodeRequest asks one student for a code submission.
type CodeRequest struct {
	Prompt       string
	Requirements []string
	Deadline     string
}

func (in *Instructor) RequestCodeFromStudent(ctx context.Context, studentID string, r CodeRequest) error {
	content := map[string]any{
		"text":         r.Prompt,
		"requirements": nonNil(r.Requirements),
	}
	if r.Deadline != "" {
		content["deadline"] = r.Deadline
	}
	return in.RequestFromStudent(ctx, studentID, content, ContextCode)
}

// Feedback is sent to one student under the "feedback" context.
type Feedback struct {
	Text        string
	CodeExample string
	Resources   []string
}

func (in *Instructor) ProvideFeedback(ctx context.Context, studentID string, f Feedback) error {
	content := map[string]any{
		"text":                 f.Text,
		"additional_resources": nonNil(f.Resources),
	}
	if f.CodeExample != "" {
		content["code_example"] = f.CodeExample
	}
	return in.RespondToStudent(ctx, studentID, content, ContextFeedback)
}

// Break announces a pause; Duration is sent in whole seconds as break_duration.
type Break struct {
	Duration     time.Duration
	ResumeTime   string
	Instructions string
}

func (in *Instructor) ScheduleBreak(ctx context.Context, b Break) error {
	minutes := int(b.Duration / time.Minute)
	content := map[string]any{
		"text":           fmt.Sprintf("We'll take a %d-minute break.", minutes),
		"break_duration": int(b.Duration / time.Second),
	}
	if b.ResumeTime != "" {
		content["resume_time"] = b.ResumeTime
	}
	if b.Instructions != "" {
		content["instructions"] = b.Instructions
	}
	return in.BroadcastToStudents(ctx, content, ContextBreak)
}

// Problem is broadcast for tutoring agents listening in the session. Zero
// RemainingMinutes means 30 and zero FrustrationLevel (1-5) means 2.
type Problem struct {
	Description      string
	Code             string
	TimeOnTask       int
	RemainingMinutes int
	FrustrationLevel int
}

func (in *Instructor) BroadcastProblem(ctx context.Context, p Problem) error {
	remaining := p.RemainingMinutes
	if remaining == 0 {
		remaining = 30
	}
	frustration := p.FrustrationLevel
	if frustration == 0 {
		frustration = 2
	}
	return in.BroadcastToStudents(ctx, map[string]any{
		"problem":          p.Description,
		"code":             p.Code,
		"timeOnTask":       p.TimeOnTask,
		"remainingTime":    remaining,
		"frustrationLevel": frustration,
	}, ContextProblem)
}

func (in *Instructor) OnStudentQuestion(h client.MessageHandler) {
	in.OnMessage(types.MessageTypeInstructorInbox, h)
}

func (in *Instructor) OnStudentResponse(h client.MessageHandler) {
	in.OnMessage(types.MessageTypeRequestResponse, h)
}

func (in *Instructor) OnStudentAnalytics(h client.MessageHandler) {
	in.OnMessage(types.MessageTypeAnalytics, h)
}

func (in *Instructor) OnSystemMessage(h client.MessageHandler) {
	in.OnMessage(types.MessageTypeSystem, h)
}

func withText(text string, extra map[string]any) map[string]any {
	content := make(map[string]any, len(extra)+1)
	maps.Copy(content, extra)
	content["text"] = text
	return content
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
