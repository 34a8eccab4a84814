package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// wireMessage is the inbound frame shape. Pointer fields distinguish absent from empty.
type wireMessage struct {
	ID        string          `json:"id"`
	Type      *string         `json:"type"`
	Context   *string         `json:"context"`
	Content   json.RawMessage `json:"content"`
	ToUser    *string         `json:"to_user"`
	FromUser  *string         `json:"from_user"`
	SessionID *string         `json:"session_id"`
	Timestamp *string         `json:"timestamp"`
}

// outboundMessage is what the client writes. Server-assigned fields are absent on purpose.
type outboundMessage struct {
	Type    MessageType    `json:"type"`
	Context string         `json:"context"`
	Content map[string]any `json:"content"`
	ToUser  string         `json:"to_user,omitempty"`
}

// DecodeMessage parses one inbound frame. Every failure is a *Error of KindDecode.
func DecodeMessage(raw []byte) (*Message, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, decodeError("invalid message format", err)
	}

	if w.Type == nil || *w.Type == "" {
		return nil, decodeError("message processing failed", ErrMissingType)
	}
	msgType, err := ParseMessageType(*w.Type)
	if err != nil {
		return nil, decodeError("message processing failed", fmt.Errorf("%w: %q", err, *w.Type))
	}

	content, err := decodeContent(w.Content)
	if err != nil {
		return nil, decodeError("message processing failed", err)
	}

	msg := &Message{
		ID:      w.ID,
		Type:    msgType,
		Context: DefaultContext,
		Content: content,
	}
	if w.Context != nil {
		msg.Context = *w.Context
	}
	if w.ToUser != nil {
		msg.ToUser = *w.ToUser
	}
	if w.FromUser != nil {
		msg.FromUser = *w.FromUser
	}
	if w.SessionID != nil {
		msg.SessionID = *w.SessionID
	}
	if w.Timestamp != nil && *w.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, *w.Timestamp)
		if err != nil {
			return nil, decodeError("message processing failed", fmt.Errorf("invalid timestamp: %w", err))
		}
		msg.Timestamp = &ts
	}

	return msg, nil
}

func decodeContent(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrMissingContent
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: content must be an object", ErrInvalidContent)
	}
	var content map[string]any
	if err := json.Unmarshal(trimmed, &content); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return content, nil
}

func decodeError(message string, cause error) error {
	return &Error{Kind: KindDecode, Message: message, Err: cause}
}

// EncodeMessage serializes a message for sending. Only type, context, content and a
// non-empty to_user are written.
func EncodeMessage(m *Message) ([]byte, error) {
	if m == nil {
		return nil, ErrMissingContent
	}
	out := outboundMessage{
		Type:    m.Type,
		Context: m.Context,
		Content: m.Content,
		ToUser:  m.ToUser,
	}
	if out.Content == nil {
		out.Content = map[string]any{}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return data, nil
}
