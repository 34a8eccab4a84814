package types

import (
	"errors"
	"fmt"
)

// ARCHITECTURAL DISCOVERY: Validation sentinels stay plain errors so callers can use errors.Is
var (
	ErrInvalidUserID      = errors.New("user ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidRole        = errors.New("role must be 'student' or 'instructor'")
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrInvalidContext     = errors.New("context must be 1-50 characters, alphanumeric + underscore/hyphen")
	ErrInvalidContent     = errors.New("invalid JSON content")
	ErrContentTooLarge    = errors.New("message content exceeds 64KB limit")
	ErrMissingType        = errors.New("message missing type")
	ErrMissingContent     = errors.New("message missing content")
	ErrNotConnected       = errors.New("not connected to session")
	ErrAlreadyConnected   = errors.New("client already connected")
	ErrNoSession          = errors.New("no session currently connected")
	ErrNoDirectory        = errors.New("no session directory configured")
)

// ErrorKind classifies failures of the client engine.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConnectionFailed
	KindAuthenticationFailed
	KindSessionNotFound
	KindSessionEnded
	KindReconnectionFailed
	KindDecode
	KindSendFailed
	KindMessageServerError
	KindConnectionLost
	KindHandlerFailed
	KindRequestFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnectionFailed:
		return "connection_failed"
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindSessionNotFound:
		return "session_not_found"
	case KindSessionEnded:
		return "session_ended"
	case KindReconnectionFailed:
		return "reconnection_failed"
	case KindDecode:
		return "decode_error"
	case KindSendFailed:
		return "send_failed"
	case KindMessageServerError:
		return "message_server_error"
	case KindConnectionLost:
		return "connection_lost"
	case KindHandlerFailed:
		return "handler_failed"
	case KindRequestFailed:
		return "request_failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether an error of this kind stops automatic recovery.
func (k ErrorKind) Terminal() bool {
	switch k {
	case KindAuthenticationFailed, KindSessionNotFound, KindSessionEnded, KindReconnectionFailed:
		return true
	default:
		return false
	}
}

// Error is the typed failure delivered by the client, either returned from a direct
// call or passed to error handlers from the background machinery.
type Error struct {
	Kind     ErrorKind
	Message  string
	Reason   string // server-supplied reason, set for session_ended
	Attempts int    // reconnect attempts made, set for reconnection_failed
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrConnectionFailed     = &Error{Kind: KindConnectionFailed}
	ErrAuthenticationFailed = &Error{Kind: KindAuthenticationFailed}
	ErrSessionNotFound      = &Error{Kind: KindSessionNotFound}
	ErrSessionEnded         = &Error{Kind: KindSessionEnded}
	ErrReconnectionFailed   = &Error{Kind: KindReconnectionFailed}
	ErrDecode               = &Error{Kind: KindDecode}
	ErrSendFailed           = &Error{Kind: KindSendFailed}
	ErrMessageServerError   = &Error{Kind: KindMessageServerError}
	ErrConnectionLost       = &Error{Kind: KindConnectionLost}
	ErrHandlerFailed        = &Error{Kind: KindHandlerFailed}
	ErrRequestFailed        = &Error{Kind: KindRequestFailed}
)

// NewError builds an *Error of the given kind.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
