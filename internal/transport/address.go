package transport

import (
	"net/url"
	"strings"

	"switchboard-sdk/pkg/types"
)

// SocketPath is where the server accepts session sockets.
const SocketPath = "/ws"

// BuildAddress turns the server base URL into the socket address for one session.
// http maps to ws and https to wss; ws and wss are used as given.
func BuildAddress(baseURL, userID string, role types.Role, sessionID string) (*url.URL, error) {
	if userID == "" || role == "" || sessionID == "" {
		return nil, ErrMissingParameter
	}

	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, ErrInvalidServerURL
	}
	if u.Host == "" {
		return nil, ErrInvalidServerURL
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + SocketPath
	u.RawQuery = url.Values{
		"user_id":    {userID},
		"role":       {string(role)},
		"session_id": {sessionID},
	}.Encode()
	u.Fragment = ""
	return u, nil
}
