package testserver

import "errors"

// Session errors
var (
	ErrInvalidSessionName  = errors.New("session name must be 1-200 characters")
	ErrInvalidCreatedBy    = errors.New("created_by must be valid user ID")
	ErrEmptyStudentList    = errors.New("student list cannot be empty")
	ErrInvalidStudentID    = errors.New("invalid student ID format")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionEnded        = errors.New("session has ended")
	ErrSessionAlreadyEnded = errors.New("session is already ended")
	ErrUnauthorized        = errors.New("user not authorized for this session")
)

// Routing errors
var (
	ErrUnauthorizedMessageType = errors.New("user not authorized to send this message type")
	ErrRateLimitExceeded       = errors.New("rate limit exceeded")
	ErrRecipientNotFound       = errors.New("recipient not found")
	ErrRecipientNotInSession   = errors.New("recipient not in same session")
	ErrMissingRecipient        = errors.New("direct message missing recipient")
)

// Peer errors
var (
	ErrPeerClosed   = errors.New("peer connection closed")
	ErrPeerBackedUp = errors.New("peer outbound queue is full")
	ErrNotConnected = errors.New("user not connected")
)
