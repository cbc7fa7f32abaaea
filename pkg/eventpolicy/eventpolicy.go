// Package eventpolicy dedupes and rate-limits inbound semantic CEC events
// before they reach the protocol engine. It is a direct port of the
// reference daemon's EventPolicy.should_emit, carrying its own mutex so
// it remains safe to unit test in isolation even though the engine only
// ever calls it from inside its single I/O lock.
package eventpolicy

import (
	"sync"
	"time"
)

// Default dedupe/rate-limit windows, per spec.
const (
	DefaultDedupeWindow = 80 * time.Millisecond
	DefaultMinInterval  = 120 * time.Millisecond
)

// Event is the minimal shape Policy needs from an inbound event: enough to
// build the "{source}:{key}:{kind}" fingerprint. cecframe.InboundEvent
// satisfies this by construction (Kind.String() supplies kind).
type Event struct {
	Source string
	Key    string
	Kind   string
}

// Policy holds the dedupe window (fingerprint -> last-seen timestamp) and
// the single global last-emit timestamp described in spec.md §4.4.
type Policy struct {
	mu sync.Mutex

	dedupeWindow time.Duration
	minInterval  time.Duration

	lastSeen   map[string]time.Time
	lastEmitTS time.Time
}

// New builds a Policy with the given windows. A zero duration disables
// that check; a negative one falls back to the package default.
func New(dedupeWindow, minInterval time.Duration) *Policy {
	if dedupeWindow < 0 {
		dedupeWindow = DefaultDedupeWindow
	}
	if minInterval < 0 {
		minInterval = DefaultMinInterval
	}
	return &Policy{
		dedupeWindow: dedupeWindow,
		minInterval:  minInterval,
		lastSeen:     make(map[string]time.Time),
	}
}

func fingerprint(ev Event) string {
	return ev.Source + ":" + ev.Key + ":" + ev.Kind
}

// ShouldEmit implements the four-step algorithm from spec.md §4.4:
// dedupe by fingerprint within dedupeWindow, then rate-limit globally by
// minInterval, recording last-seen on every path so a steady stream of
// duplicates keeps refreshing its own dedupe window.
func (p *Policy) ShouldEmit(ev Event, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	fp := fingerprint(ev)
	if last, ok := p.lastSeen[fp]; ok && now.Sub(last) < p.dedupeWindow {
		p.lastSeen[fp] = now
		return false
	}
	if !p.lastEmitTS.IsZero() && now.Sub(p.lastEmitTS) < p.minInterval {
		p.lastSeen[fp] = now
		return false
	}

	p.lastSeen[fp] = now
	p.lastEmitTS = now
	return true
}
