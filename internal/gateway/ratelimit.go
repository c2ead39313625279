package gateway

import (
	"context"
	"sync"
	"time"
)

// Limiter is a fixed-window message budget keyed per (connection, channel
// class). Exceeding the budget rejects the single call; it never disconnects
// the client. Buckets are swept periodically to bound memory.
type Limiter struct {
	mu      sync.Mutex
	window  time.Duration
	buckets map[string]*bucket
}

type bucket struct {
	count       int
	windowStart time.Time
	lastSeen    time.Time
}

func NewLimiter(window time.Duration) *Limiter {
	return &Limiter{window: window, buckets: make(map[string]*bucket)}
}

// Allow consumes one message from the key's budget for the current window.
func (l *Limiter) Allow(key string, budget int) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) >= l.window {
		l.buckets[key] = &bucket{count: 1, windowStart: now, lastSeen: now}
		return true
	}
	b.lastSeen = now
	if b.count >= budget {
		return false
	}
	b.count++
	return true
}

// Sweep drops buckets idle for longer than maxIdle.
func (l *Limiter) Sweep(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Run sweeps on a ticker until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(2 * l.window)
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
