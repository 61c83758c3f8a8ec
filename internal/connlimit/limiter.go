package connlimit

import "sync/atomic"

// Limiter caps the number of connections served at once
type Limiter struct {
	maxConns int64
	current  atomic.Int64
}

// NewLimiter creates a limiter allowing maxConns concurrent connections.
// maxConns <= 0 means unlimited.
func NewLimiter(maxConns int) *Limiter {
	return &Limiter{maxConns: int64(maxConns)}
}

// Allow takes a slot if one is free. Every successful Allow must be paired with Release.
func (l *Limiter) Allow() bool {
	if l.maxConns <= 0 {
		l.current.Add(1)
		return true
	}
	for {
		current := l.current.Load()
		if current >= l.maxConns {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Release frees a slot taken by Allow
func (l *Limiter) Release() {
	l.current.Add(-1)
}

// Current returns the number of slots in use
func (l *Limiter) Current() int64 {
	return l.current.Load()
}

// Max returns the configured cap, 0 or less when unlimited
func (l *Limiter) Max() int64 {
	return l.maxConns
}
