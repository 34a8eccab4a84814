package reconnect

import (
	"errors"
	"sync"
	"time"
)

// ErrExhausted is returned by Next once MaxAttempts have been handed out.
var ErrExhausted = errors.New("reconnection attempts exhausted")

// Defaults used by the client when no policy is configured.
const (
	DefaultBaseDelay   = time.Second
	DefaultMaxAttempts = 5
)

// Policy computes bounded exponential backoff delays for one client
// TECHNICAL DISCOVERY: Attempt N (1-based) waits BaseDelay * 2^(N-1), so the default
// schedule is 1s, 2s, 4s, 8s, 16s
type Policy struct {
	mu          sync.Mutex
	baseDelay   time.Duration
	maxAttempts int
	maxDelay    time.Duration
	attempts    int
}

// NewPolicy creates a policy. maxDelay of zero leaves delays uncapped. A maxAttempts
// of zero disables reconnection: the first Next reports ErrExhausted. A non-positive
// baseDelay or a negative maxAttempts falls back to the defaults.
func NewPolicy(baseDelay time.Duration, maxAttempts int, maxDelay time.Duration) *Policy {
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxAttempts < 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if maxDelay < 0 {
		maxDelay = 0
	}
	return &Policy{baseDelay: baseDelay, maxAttempts: maxAttempts, maxDelay: maxDelay}
}

// Next consumes one attempt and returns how long to wait before making it.
func (p *Policy) Next() (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.attempts >= p.maxAttempts {
		return 0, ErrExhausted
	}
	p.attempts++
	return Delay(p.baseDelay, p.attempts, p.maxDelay), nil
}

// Reset clears the attempt counter after a successful connection.
func (p *Policy) Reset() {
	p.mu.Lock()
	p.attempts = 0
	p.mu.Unlock()
}

// Attempts returns how many attempts have been consumed since the last Reset.
func (p *Policy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

func (p *Policy) MaxAttempts() int { return p.maxAttempts }

func (p *Policy) BaseDelay() time.Duration { return p.baseDelay }

// Delay returns the wait before attempt (1-based).
func Delay(base time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		// overflow guard: stop doubling once past the cap or the int64 range
		if delay > time.Duration(1<<62)/2 {
			break
		}
		delay *= 2
		if maxDelay > 0 && delay >= maxDelay {
			break
		}
	}
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
