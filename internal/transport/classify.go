package transport

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"switchboard-sdk/pkg/types"
)

// Close codes the server uses to reject a participant.
// TECHNICAL DISCOVERY: 1008 is the standard policy-violation code; the 4xxx range mirrors
// HTTP statuses for servers that reject after the upgrade instead of before it
var (
	forbiddenCloseCodes = map[int]bool{
		websocket.ClosePolicyViolation: true,
		4001:                           true,
		4003:                           true,
		4401:                           true,
		4403:                           true,
	}
	notFoundCloseCodes = map[int]bool{
		4004: true,
		4404: true,
	}
)

// ClassifyDial maps a dial failure to an error kind.
func ClassifyDial(err error) types.ErrorKind {
	var hs *HandshakeError
	if errors.As(err, &hs) {
		switch hs.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return types.KindAuthenticationFailed
		case http.StatusNotFound:
			return types.KindSessionNotFound
		}
	}
	if kind, ok := closeKind(err); ok {
		return kind
	}
	return types.KindConnectionFailed
}

// ClassifyClose maps the error that ended a receive loop to an error kind.
// Anything that is not an explicit rejection counts as a lost connection.
func ClassifyClose(err error) types.ErrorKind {
	if kind, ok := closeKind(err); ok {
		return kind
	}
	return types.KindConnectionLost
}

func closeKind(err error) (types.ErrorKind, bool) {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return types.KindUnknown, false
	}
	switch {
	case forbiddenCloseCodes[ce.Code]:
		return types.KindAuthenticationFailed, true
	case notFoundCloseCodes[ce.Code]:
		return types.KindSessionNotFound, true
	default:
		return types.KindUnknown, false
	}
}

// IsNormalClosure reports whether the peer closed the socket cleanly.
func IsNormalClosure(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
