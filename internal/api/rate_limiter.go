package api

import (
	"sync"
	"time"
)

const (
	postsPerMinute  = 30
	staleClientAge  = 5 * time.Minute
)

// RateLimiter caps how many posts one author may create per minute.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
}

type clientWindow struct {
	count       int
	windowStart time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientWindow),
	}
}

// Allow reports whether the author may create another post right now.
func (rl *RateLimiter) Allow(author string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	window, exists := rl.clients[author]
	if !exists {
		rl.clients[author] = &clientWindow{count: 1, windowStart: now}
		return true
	}

	if now.Sub(window.windowStart) >= time.Minute {
		window.count = 1
		window.windowStart = now
		return true
	}

	if window.count >= postsPerMinute {
		return false
	}

	window.count++
	return true
}

// Cleanup drops authors that have been idle long enough for their window to
// be irrelevant. Call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for author, window := range rl.clients {
		if now.Sub(window.windowStart) > staleClientAge {
			delete(rl.clients, author)
		}
	}
}
