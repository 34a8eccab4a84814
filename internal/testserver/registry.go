package testserver

import (
	"sync"

	"switchboard-sdk/pkg/types"
)

// registry tracks live peers by user and by session role
// TECHNICAL DISCOVERY: RWMutex because routing lookups vastly outnumber registrations
type registry struct {
	mu                 sync.RWMutex
	global             map[string]*peer
	sessionInstructors map[string]map[string]*peer
	sessionStudents    map[string]map[string]*peer
}

func newRegistry() *registry {
	return &registry{
		global:             make(map[string]*peer),
		sessionInstructors: make(map[string]map[string]*peer),
		sessionStudents:    make(map[string]map[string]*peer),
	}
}

// register adds p and returns the peer it replaced, if any. The caller closes it.
func (r *registry) register(p *peer) *peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.global[p.userID]
	if previous != nil {
		r.removeLocked(previous)
	}
	r.global[p.userID] = p

	byRole := r.roleMap(p.role)
	if byRole[p.sessionID] == nil {
		byRole[p.sessionID] = make(map[string]*peer)
	}
	byRole[p.sessionID][p.userID] = p
	return previous
}

// unregister removes p only if it is still the registered peer for its user, so a
// stale connection cannot evict its replacement.
func (r *registry) unregister(p *peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.global[p.userID] != p {
		return
	}
	r.removeLocked(p)
}

func (r *registry) removeLocked(p *peer) {
	delete(r.global, p.userID)
	byRole := r.roleMap(p.role)
	if peers, ok := byRole[p.sessionID]; ok {
		delete(peers, p.userID)
		if len(peers) == 0 {
			delete(byRole, p.sessionID)
		}
	}
}

func (r *registry) roleMap(role types.Role) map[string]map[string]*peer {
	if role == types.RoleInstructor {
		return r.sessionInstructors
	}
	return r.sessionStudents
}

func (r *registry) user(userID string) (*peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.global[userID]
	return p, ok
}

func (r *registry) instructors(sessionID string) []*peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.sessionInstructors[sessionID])
}

func (r *registry) students(sessionID string) []*peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.sessionStudents[sessionID])
}

func (r *registry) session(sessionID string) []*peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append(collect(r.sessionInstructors[sessionID]), collect(r.sessionStudents[sessionID])...)
}

func (r *registry) all() []*peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*peer, 0, len(r.global))
	for _, p := range r.global {
		out = append(out, p)
	}
	return out
}

func (r *registry) stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	instructors, students := 0, 0
	for _, peers := range r.sessionInstructors {
		instructors += len(peers)
	}
	for _, peers := range r.sessionStudents {
		students += len(peers)
	}
	return map[string]int{
		"total_connections": len(r.global),
		"instructors":       instructors,
		"students":          students,
	}
}

func collect(m map[string]*peer) []*peer {
	out := make([]*peer, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	return out
}
