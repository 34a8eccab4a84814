package types

import (
	"encoding/json"
	"regexp"
)

// Limits the server enforces on identifiers and payloads.
const (
	MaxIdentifierLength = 50
	MaxContentBytes     = 64 * 1024
)

// identifierPattern covers both user IDs and contexts.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

var knownTypes = func() map[MessageType]struct{} {
	set := make(map[MessageType]struct{}, len(MessageTypes()))
	for _, t := range MessageTypes() {
		set[t] = struct{}{}
	}
	return set
}()

// Validate checks an outbound message against the server's format rules and fills
// in the default context. Whether the sender's role may use the type is the
// server's decision.
func (m *Message) Validate() error {
	if !IsValidMessageType(m.Type) {
		return ErrInvalidMessageType
	}
	if m.Context == "" {
		m.Context = DefaultContext
	}
	if !IsValidContext(m.Context) {
		return ErrInvalidContext
	}

	encoded, err := json.Marshal(m.Content)
	if err != nil {
		return ErrInvalidContent
	}
	if len(encoded) > MaxContentBytes {
		return ErrContentTooLarge
	}
	return nil
}

func IsValidUserID(userID string) bool { return validIdentifier(userID) }

func IsValidContext(context string) bool { return validIdentifier(context) }

func IsValidMessageType(t MessageType) bool {
	_, ok := knownTypes[t]
	return ok
}

func validIdentifier(s string) bool {
	return len(s) > 0 && len(s) <= MaxIdentifierLength && identifierPattern.MatchString(s)
}
