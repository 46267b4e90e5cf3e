// Package ratelimit implements an in-memory token-bucket limiter keyed by
// API key. Each key refills continuously at its own configured rate, so a
// key allowed 120 requests per minute regains capacity every half second
// rather than in one burst at the window edge.
package ratelimit

import (
	"sync"
	"time"
)

const cleanupInterval = 5 * time.Minute

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// Limiter holds one token bucket per key. Buckets for keys that have gone
// quiet are dropped by a background janitor.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	window  time.Duration
	stop    chan struct{}
	once    sync.Once
}

// New creates a limiter whose per-key limits are interpreted as tokens per
// window. The janitor goroutine runs until Close is called.
func New(window time.Duration) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		window:  window,
		stop:    make(chan struct{}),
	}
	go l.janitor()
	return l
}

// Allow consumes one token from the key's bucket if available. New keys
// start with a full bucket.
func (l *Limiter) Allow(key string, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: float64(limit) - 1, lastSeen: now}
		return true
	}

	refill := now.Sub(b.lastSeen).Seconds() * float64(limit) / l.window.Seconds()
	b.tokens += refill
	if b.tokens > float64(limit) {
		b.tokens = float64(limit)
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Reset forgets the bucket for one key, restoring its full allowance.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Len reports how many keys currently hold buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Close stops the janitor goroutine. Allow remains usable afterwards.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) janitor() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictStale()
		case <-l.stop:
			return
		}
	}
}

// evictStale drops buckets idle for more than two windows. An evicted key
// that returns starts over with a full bucket.
func (l *Limiter) evictStale() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-2 * l.window)
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
