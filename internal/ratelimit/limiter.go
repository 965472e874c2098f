package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// client is one caller's token bucket
type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps a token bucket per client ID
type Limiter struct {
	clients         map[string]*client
	mu              sync.Mutex
	rate            rate.Limit
	burst           int
	requestsPerHour int
	now             func() time.Time
}

// NewLimiter creates a new rate limiter
// requestsPerHour: sustained requests allowed per hour per client (e.g., 100)
// burst: max requests in a burst (e.g., 10)
func NewLimiter(requestsPerHour int, burst int) *Limiter {
	return &Limiter{
		clients:         make(map[string]*client),
		rate:            rate.Limit(float64(requestsPerHour) / 3600.0),
		burst:           burst,
		requestsPerHour: requestsPerHour,
		now:             time.Now,
	}
}

// RequestsPerHour returns the configured hourly allowance
func (l *Limiter) RequestsPerHour() int {
	return l.requestsPerHour
}

// GetLimiter returns the bucket for a client, creating it on first use
func (l *Limiter) GetLimiter(clientID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, exists := l.clients[clientID]
	if !exists {
		c = &client{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[clientID] = c
	}
	c.lastSeen = l.now()

	return c.limiter
}

// Allow checks if a request is allowed for the given client
func (l *Limiter) Allow(clientID string) bool {
	return l.GetLimiter(clientID).Allow()
}

// Tokens returns the current number of available tokens for a client
func (l *Limiter) Tokens(clientID string) float64 {
	return l.GetLimiter(clientID).Tokens()
}

// Prune forgets clients idle for longer than idle whose bucket has refilled.
// A forgotten client starts again with a full bucket, so nothing changes for it.
func (l *Limiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, c := range l.clients {
		if now.Sub(c.lastSeen) < idle || c.limiter.TokensAt(now) < float64(l.burst) {
			continue
		}
		delete(l.clients, id)
		removed++
	}
	return removed
}

// Len returns how many clients are tracked
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
