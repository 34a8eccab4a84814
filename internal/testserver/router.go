package testserver

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"switchboard-sdk/pkg/types"
)

// router applies the server's role-based delivery rules
// FUNCTIONAL DISCOVERY: Students talk only to instructors; instructors answer one student
// or broadcast to all students; session boundaries hold for every path
type router struct {
	registry *registry
	limiter  *rateLimiter
	logger   zerolog.Logger

	mu      sync.Mutex
	history map[string][]*types.Message // sessionID -> routed messages
}

func newRouter(reg *registry, limiter *rateLimiter, logger zerolog.Logger) *router {
	return &router{
		registry: reg,
		limiter:  limiter,
		logger:   logger,
		history:  make(map[string][]*types.Message),
	}
}

// route enriches msg with server fields and delivers it.
func (r *router) route(sender *peer, msg *types.Message) error {
	msg.ID = uuid.New().String()
	now := time.Now().UTC()
	msg.Timestamp = &now
	msg.FromUser = sender.userID
	msg.SessionID = sender.sessionID
	if msg.Context == "" {
		msg.Context = types.DefaultContext
	}

	if !canSend(sender.role, msg.Type) {
		return ErrUnauthorizedMessageType
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if r.limiter != nil && !r.limiter.allow(sender.userID) {
		return ErrRateLimitExceeded
	}

	recipients, err := r.recipients(msg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.history[msg.SessionID] = append(r.history[msg.SessionID], msg)
	r.mu.Unlock()

	for _, p := range recipients {
		if err := p.sendJSON(msg); err != nil {
			r.logger.Warn().Err(err).Str("recipient", p.userID).Msg("Failed to deliver message")
		}
	}
	return nil
}

func (r *router) recipients(msg *types.Message) ([]*peer, error) {
	switch msg.Type {
	case types.MessageTypeInstructorInbox, types.MessageTypeRequestResponse, types.MessageTypeAnalytics:
		return r.registry.instructors(msg.SessionID), nil

	case types.MessageTypeInboxResponse, types.MessageTypeRequest:
		if msg.ToUser == "" {
			return nil, ErrMissingRecipient
		}
		recipient, ok := r.registry.user(msg.ToUser)
		if !ok {
			return nil, ErrRecipientNotFound
		}
		if recipient.sessionID != msg.SessionID {
			return nil, ErrRecipientNotInSession
		}
		return []*peer{recipient}, nil

	case types.MessageTypeInstructorBroadcast:
		return r.registry.students(msg.SessionID), nil

	default:
		return nil, types.ErrInvalidMessageType
	}
}

// historyFor returns the session history visible to userID in role.
func (r *router) historyFor(sessionID, userID string, role types.Role) []*types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*types.Message
	for _, m := range r.history[sessionID] {
		if role == types.RoleInstructor || m.FromUser == userID || m.ToUser == userID || m.Type == types.MessageTypeInstructorBroadcast {
			out = append(out, m)
		}
	}
	return out
}

func canSend(role types.Role, t types.MessageType) bool {
	switch role {
	case types.RoleStudent:
		return t == types.MessageTypeInstructorInbox ||
			t == types.MessageTypeRequestResponse ||
			t == types.MessageTypeAnalytics
	case types.RoleInstructor:
		return t == types.MessageTypeInboxResponse ||
			t == types.MessageTypeRequest ||
			t == types.MessageTypeInstructorBroadcast
	default:
		return false
	}
}
