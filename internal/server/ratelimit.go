package server

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// GlobalConnectionLimiter caps the number of concurrent websocket
// connections the instance will hold.
type GlobalConnectionLimiter struct {
	current atomic.Int64
	max     int64
}

func NewGlobalConnectionLimiter(max int64) *GlobalConnectionLimiter {
	return &GlobalConnectionLimiter{max: max}
}

// Acquire claims a connection slot, returning false at capacity.
func (l *GlobalConnectionLimiter) Acquire() bool {
	for {
		n := l.current.Load()
		if n >= l.max {
			return false
		}
		if l.current.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (l *GlobalConnectionLimiter) Release() {
	l.current.Add(-1)
}

// Current returns the number of held slots.
func (l *GlobalConnectionLimiter) Current() int64 {
	return l.current.Load()
}

// ConnectionRateLimiter throttles new websocket connections per source IP
// with a token bucket. Idle buckets are pruned periodically from inside
// Allow; no background goroutine is needed.
type ConnectionRateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucketEntry
	perSec    rate.Limit
	burst     int
	cleanupAt time.Time
}

type bucketEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	bucketCleanupEvery = 5 * time.Minute
	bucketMaxIdle      = 10 * time.Minute
)

func NewConnectionRateLimiter(connectionsPerSecond float64, burst int) *ConnectionRateLimiter {
	return &ConnectionRateLimiter{
		buckets:   make(map[string]*bucketEntry),
		perSec:    rate.Limit(connectionsPerSecond),
		burst:     burst,
		cleanupAt: time.Now().Add(bucketCleanupEvery),
	}
}

// Allow reports whether a new connection from ip fits its bucket.
func (l *ConnectionRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Now().After(l.cleanupAt) {
		l.cleanup()
		l.cleanupAt = time.Now().Add(bucketCleanupEvery)
	}

	entry, ok := l.buckets[ip]
	if !ok {
		entry = &bucketEntry{limiter: rate.NewLimiter(l.perSec, l.burst)}
		l.buckets[ip] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter.Allow()
}

// cleanup drops buckets idle longer than bucketMaxIdle. Caller holds mu.
func (l *ConnectionRateLimiter) cleanup() {
	cutoff := time.Now().Add(-bucketMaxIdle)
	for ip, entry := range l.buckets {
		if entry.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}

// ActiveBuckets returns the number of tracked source IPs.
func (l *ConnectionRateLimiter) ActiveBuckets() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
