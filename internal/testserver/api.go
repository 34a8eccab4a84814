package testserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"switchboard-sdk/pkg/types"
)

type createSessionRequest struct {
	Name         string   `json:"name"`
	InstructorID string   `json:"instructor_id"`
	StudentIDs   []string `json:"student_ids"`
}

type sessionWithConnections struct {
	*types.Session
	ConnectionCount int `json:"connection_count"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func jsonContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	session, err := s.sessions.create(req.Name, req.InstructorID, req.StudentIDs)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"session": session})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := s.sessions.get(sessionID)
	if err != nil {
		writeError(w, "Session not found", http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session":          session,
		"connection_count": len(s.registry.session(sessionID)),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	// Connected clients hear about it before the status flips.
	if session, err := s.sessions.get(sessionID); err == nil && session.IsActive() {
		if err := s.EndSession(sessionID, DefaultEndReason); err != nil && !errors.Is(err, ErrSessionAlreadyEnded) {
			writeError(w, "Failed to end session", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Session ended successfully"})
		return
	}

	switch err := s.sessions.end(sessionID); {
	case errors.Is(err, ErrSessionNotFound):
		writeError(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, ErrSessionAlreadyEnded):
		writeError(w, "Session already ended", http.StatusBadRequest)
	default:
		writeError(w, "Failed to end session", http.StatusInternalServerError)
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	active := s.sessions.listActive()
	out := make([]sessionWithConnections, len(active))
	for i, session := range active {
		out[i] = sessionWithConnections{Session: session, ConnectionCount: len(s.registry.session(session.ID))}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"sessions": out})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"database":    "in-memory",
		"connections": s.registry.stats(),
	})
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}
