package system

import (
	"switchboard-sdk/pkg/types"
)

// Known system events.
const (
	EventSessionEnded       = "session_ended"
	EventHistoryComplete    = "history_complete"
	EventHistoryUnavailable = "history_unavailable"
	EventMessageError       = "message_error"
)

const (
	defaultEndReason    = "Unknown reason"
	defaultErrorMessage = "Unknown message error"
)

// Action tells the connection lifecycle what to do after a system frame.
type Action int

const (
	// ActionNone dispatches the frame to handlers and nothing else.
	ActionNone Action = iota
	// ActionTeardown notifies handlers, waits the grace delay and disconnects.
	ActionTeardown
	// ActionReportError dispatches the frame and reports a MessageServerError.
	ActionReportError
)

func (a Action) String() string {
	switch a {
	case ActionTeardown:
		return "teardown"
	case ActionReportError:
		return "report_error"
	default:
		return "none"
	}
}

// Directive is the interpretation of one system frame.
type Directive struct {
	Event   string
	Action  Action
	Reason  string // set for ActionTeardown
	Message string // set for ActionReportError
	Detail  string // server-side error detail, may be empty
}

// Interpret derives the directive for msg. Non-system frames yield ActionNone.
// FUNCTIONAL DISCOVERY: The server puts the event name in content.event; older frames
// only carry it in context, so context is the fallback
func Interpret(msg *types.Message) Directive {
	if msg == nil || msg.Type != types.MessageTypeSystem {
		return Directive{Action: ActionNone}
	}

	event := msg.Context
	if e, ok := stringField(msg.Content, "event"); ok {
		event = e
	}

	d := Directive{Event: event, Action: ActionNone}
	switch event {
	case EventSessionEnded:
		d.Action = ActionTeardown
		d.Reason = defaultEndReason
		if reason, ok := stringField(msg.Content, "reason"); ok && reason != "" {
			d.Reason = reason
		}
	case EventMessageError:
		d.Action = ActionReportError
		d.Message = defaultErrorMessage
		if m, ok := stringField(msg.Content, "message"); ok && m != "" {
			d.Message = m
		}
		d.Detail, _ = stringField(msg.Content, "error")
	}
	return d
}

// Error builds the error a directive reports, or nil for ActionNone.
func (d Directive) Error() error {
	switch d.Action {
	case ActionTeardown:
		return &types.Error{Kind: types.KindSessionEnded, Message: "session ended", Reason: d.Reason}
	case ActionReportError:
		e := &types.Error{Kind: types.KindMessageServerError, Message: "Server message error: " + d.Message}
		if d.Detail != "" {
			e.Reason = d.Detail
		}
		return e
	default:
		return nil
	}
}

func stringField(content map[string]any, key string) (string, bool) {
	if content == nil {
		return "", false
	}
	v, ok := content[key].(string)
	return v, ok
}
