package testserver

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"switchboard-sdk/pkg/types"
)

// sessionStore keeps sessions in memory; ended sessions stay queryable.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*types.Session)}
}

func (s *sessionStore) create(name, createdBy string, studentIDs []string) (*types.Session, error) {
	if name == "" || len(name) > 200 {
		return nil, ErrInvalidSessionName
	}
	if !types.IsValidUserID(createdBy) {
		return nil, ErrInvalidCreatedBy
	}
	if len(studentIDs) == 0 {
		return nil, ErrEmptyStudentList
	}

	unique := removeDuplicates(studentIDs)
	for _, id := range unique {
		if !types.IsValidUserID(id) {
			return nil, fmt.Errorf("%w: invalid student ID %s", ErrInvalidStudentID, id)
		}
	}

	session := &types.Session{
		ID:         uuid.New().String(),
		Name:       name,
		CreatedBy:  createdBy,
		StudentIDs: unique,
		StartTime:  time.Now().UTC(),
		Status:     types.SessionStatusActive,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	return copySession(session), nil
}

func (s *sessionStore) get(id string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return copySession(session), nil
}

func (s *sessionStore) end(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if session.Status == types.SessionStatusEnded {
		return ErrSessionAlreadyEnded
	}
	now := time.Now().UTC()
	session.EndTime = &now
	session.Status = types.SessionStatusEnded
	return nil
}

// listActive returns active sessions ordered by start time.
func (s *sessionStore) listActive() []*types.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if session.Status == types.SessionStatusActive {
			out = append(out, copySession(session))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// validateMembership mirrors the server: instructors may join any active session,
// students only the ones they are enrolled in.
func (s *sessionStore) validateMembership(sessionID, userID string, role types.Role) error {
	session, err := s.get(sessionID)
	if err != nil {
		return err
	}
	if !session.IsActive() {
		return ErrSessionEnded
	}
	switch role {
	case types.RoleInstructor:
		return nil
	case types.RoleStudent:
		if session.HasStudent(userID) {
			return nil
		}
		return ErrUnauthorized
	default:
		return types.ErrInvalidRole
	}
}

func copySession(s *types.Session) *types.Session {
	c := *s
	c.StudentIDs = append([]string(nil), s.StudentIDs...)
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	return &c
}

func removeDuplicates(ids []string) []string {
	seen := make(map[string]bool)
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	return unique
}
