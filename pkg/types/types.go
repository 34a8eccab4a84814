package types

import (
	"time"
)

// MessageType is the closed set of frame types the switchboard server routes.
type MessageType string

// ARCHITECTURAL DISCOVERY: Message type constants mirror the server's routing table
// plus the server-originated "system" control frame
const (
	MessageTypeInstructorInbox     MessageType = "instructor_inbox"
	MessageTypeInboxResponse       MessageType = "inbox_response"
	MessageTypeRequest             MessageType = "request"
	MessageTypeRequestResponse     MessageType = "request_response"
	MessageTypeAnalytics           MessageType = "analytics"
	MessageTypeInstructorBroadcast MessageType = "instructor_broadcast"
	MessageTypeSystem              MessageType = "system"
)

// DefaultContext is applied to inbound frames that omit "context".
const DefaultContext = "general"

// MessageTypes returns every valid message type in protocol order.
func MessageTypes() []MessageType {
	return []MessageType{
		MessageTypeInstructorInbox,
		MessageTypeInboxResponse,
		MessageTypeRequest,
		MessageTypeRequestResponse,
		MessageTypeAnalytics,
		MessageTypeInstructorBroadcast,
		MessageTypeSystem,
	}
}

// ParseMessageType converts a wire string into a MessageType.
func ParseMessageType(s string) (MessageType, error) {
	t := MessageType(s)
	if !IsValidMessageType(t) {
		return "", ErrInvalidMessageType
	}
	return t, nil
}

func (t MessageType) String() string { return string(t) }

// Role is the capability class a client is bound to for its lifetime.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
)

// Valid reports whether r is one of the two roles the server accepts.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleInstructor
}

func (r Role) String() string { return string(r) }

// Session represents an educational session as returned by the REST directory
// FUNCTIONAL DISCOVERY: Session is an immutable snapshot on the client side; only the
// server moves it from active to ended
type Session struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	CreatedBy       string     `json:"created_by"`
	StudentIDs      []string   `json:"student_ids"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Status          string     `json:"status"`
	ConnectionCount *int       `json:"connection_count,omitempty"`
}

// Session status values reported by the server.
const (
	SessionStatusActive = "active"
	SessionStatusEnded  = "ended"
)

// IsActive reports whether the server still accepts connections for the session.
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

// HasStudent reports whether userID is enrolled in the session.
func (s *Session) HasStudent(userID string) bool {
	for _, id := range s.StudentIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Message represents a single frame exchanged over the session socket
// ARCHITECTURAL DISCOVERY: Content as map[string]any keeps payloads flexible while
// staying JSON compatible. ID, FromUser, SessionID and Timestamp are server-assigned
// and never written by the client.
type Message struct {
	ID        string         `json:"id,omitempty"`
	Type      MessageType    `json:"type"`
	Context   string         `json:"context"`
	Content   map[string]any `json:"content"`
	ToUser    string         `json:"to_user,omitempty"`
	FromUser  string         `json:"from_user,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
}

// ConnectionState is the lifecycle state of a client connection.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no automatic recovery follows this state.
func (s ConnectionState) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// ConnectionStatus is a read-only snapshot of a client's connection.
type ConnectionStatus struct {
	Connected         bool            `json:"connected"`
	State             ConnectionState `json:"-"`
	SessionID         string          `json:"session_id,omitempty"`
	UserID            string          `json:"user_id"`
	Role              Role            `json:"role"`
	MessageCount      int             `json:"message_count"`
	UptimeSeconds     int64           `json:"uptime_seconds"`
	ReconnectAttempts int             `json:"reconnect_attempts"`
	LastError         error           `json:"-"`
}
