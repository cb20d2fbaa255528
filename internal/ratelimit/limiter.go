// Package ratelimit enforces per-identity sliding-window request quotas.
// Two windows are active at once: a short burst window and a long
// sustained window. A request is allowed only if both hold.
package ratelimit

import (
	"sync"
	"time"
)

// Window identifies which quota window rejected a request.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
)

// Policy defines the two sliding-window caps.
type Policy struct {
	MinuteMax int           // max requests per MinuteSpan
	HourMax   int           // max requests per HourSpan
	MinuteSpan time.Duration
	HourSpan   time.Duration
}

// DefaultPolicy returns the stock limits: 1 request per minute,
// 20 requests per hour.
func DefaultPolicy() Policy {
	return Policy{
		MinuteMax:  1,
		HourMax:    20,
		MinuteSpan: time.Minute,
		HourSpan:   time.Hour,
	}
}

// Denial describes a rejected request: which window tripped and how
// long the caller must wait before the request would be allowed.
type Denial struct {
	Window     Window
	RetryAfter time.Duration
}

// Limiter tracks request timestamps per identity. Check-then-record is
// atomic under one mutex; contention is human-rate, so a single lock
// over the whole map is fine.
type Limiter struct {
	mu      sync.Mutex
	policy  Policy
	history map[string][]time.Time

	now func() time.Time // overridable in tests
}

// New creates a limiter with the given policy. Zero fields in the
// policy fall back to defaults.
func New(policy Policy) *Limiter {
	def := DefaultPolicy()
	if policy.MinuteMax <= 0 {
		policy.MinuteMax = def.MinuteMax
	}
	if policy.HourMax <= 0 {
		policy.HourMax = def.HourMax
	}
	if policy.MinuteSpan <= 0 {
		policy.MinuteSpan = def.MinuteSpan
	}
	if policy.HourSpan <= 0 {
		policy.HourSpan = def.HourSpan
	}
	return &Limiter{
		policy:  policy,
		history: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// SetPolicy swaps the active policy. Existing history is kept; the new
// windows apply from the next check.
func (l *Limiter) SetPolicy(policy Policy) {
	def := DefaultPolicy()
	if policy.MinuteMax <= 0 {
		policy.MinuteMax = def.MinuteMax
	}
	if policy.HourMax <= 0 {
		policy.HourMax = def.HourMax
	}
	if policy.MinuteSpan <= 0 {
		policy.MinuteSpan = def.MinuteSpan
	}
	if policy.HourSpan <= 0 {
		policy.HourSpan = def.HourSpan
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.policy = policy
}

// CheckAndRecord checks both windows for the identity and, if the
// request is allowed, records its timestamp. Returns nil when allowed,
// or a Denial naming the violated window. Pruning of entries older
// than the hour window happens in the same pass.
func (l *Limiter) CheckAndRecord(identity string) *Denial {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	times := l.prune(identity, now)

	// Count entries inside each trailing window. times is append-only
	// and therefore sorted ascending.
	var inMinute, inHour int
	minuteCut := now.Add(-l.policy.MinuteSpan)
	for _, t := range times {
		inHour++
		if t.After(minuteCut) {
			inMinute++
		}
	}

	if inMinute >= l.policy.MinuteMax {
		// Allowed again once the MinuteMax-th newest entry ages out of
		// the minute window.
		idx := len(times) - l.policy.MinuteMax
		return &Denial{
			Window:     WindowMinute,
			RetryAfter: times[idx].Add(l.policy.MinuteSpan).Sub(now),
		}
	}
	if inHour >= l.policy.HourMax {
		// Allowed again once enough of the oldest entries age out to
		// bring the hour count under the cap.
		idx := len(times) - l.policy.HourMax
		return &Denial{
			Window:     WindowHour,
			RetryAfter: times[idx].Add(l.policy.HourSpan).Sub(now),
		}
	}

	l.history[identity] = append(times, now)
	return nil
}

// prune drops timestamps older than the hour window and returns the
// surviving slice. Empty histories are removed from the map.
func (l *Limiter) prune(identity string, now time.Time) []time.Time {
	times := l.history[identity]
	cut := now.Add(-l.policy.HourSpan)
	i := 0
	for i < len(times) && !times[i].After(cut) {
		i++
	}
	if i > 0 {
		times = times[i:]
		if len(times) == 0 {
			delete(l.history, identity)
			return nil
		}
		l.history[identity] = times
	}
	return times
}
