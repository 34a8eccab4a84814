package testserver

import (
	"sync"
	"time"
)

// rateLimiter allows limit messages per user per fixed one-minute window.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*clientLimit
}

type clientLimit struct {
	count       int
	windowStart time.Time
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{limit: limit, window: time.Minute, clients: make(map[string]*clientLimit)}
}

func (rl *rateLimiter) allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cl, ok := rl.clients[userID]
	if !ok || now.Sub(cl.windowStart) >= rl.window {
		rl.clients[userID] = &clientLimit{count: 1, windowStart: now}
		return true
	}
	if cl.count >= rl.limit {
		return false
	}
	cl.count++
	return true
}
