// Package ratelimit paces datagram transmission to a fixed rate.
package ratelimit

import "time"

// Limiter schedules sends at a fixed number of datagrams per second.
// Not safe for concurrent use.
type Limiter struct {
	nsPerDatagram int64
	sent          uint64
	nextCheck     uint64
	start         time.Time
	checkEvery    uint64
}

// New creates a limiter for dps datagrams per second.
// If dps == 0, pacing is disabled and Wait returns immediately.
func New(dps uint64) *Limiter {
	if dps == 0 {
		return nil
	}
	// Consult the clock every ~10ms worth of datagrams to balance
	// accuracy against timer overhead, clamped to [32, 1024].
	every := min(max(dps/100, 32), 1024)
	return &Limiter{
		nsPerDatagram: int64(time.Second) / int64(dps),
		start:         time.Now(),
		checkEvery:    every,
		nextCheck:     every,
	}
}

// Wait blocks until one more datagram is allowed.
func (l *Limiter) Wait() { l.WaitN(1) }

// WaitN blocks until n more datagrams are allowed. A limiter that has
// fallen behind schedule catches up by not sleeping; it never runs
// ahead of schedule.
func (l *Limiter) WaitN(n uint64) {
	if l == nil || n == 0 {
		return
	}

	l.sent += n
	if l.sent < l.nextCheck {
		return // Fast path: only consult the clock periodically.
	}
	l.nextCheck = l.sent + l.checkEvery

	due := l.start.Add(time.Duration(int64(l.sent) * l.nsPerDatagram))
	if now := time.Now(); now.Before(due) {
		time.Sleep(due.Sub(now))
	}
}
