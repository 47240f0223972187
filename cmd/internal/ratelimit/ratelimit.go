// Package ratelimit holds the in-process limiters: a sliding window per connection,
// a keyed variant for per-IP form and login limits, and failure-driven lockouts.
package ratelimit

import (
	"slices"
	"sync"
	"time"
)

// Window is a sliding-window limiter.
type Window struct {
	mu     sync.Mutex
	events []time.Time
	limit  int
	window time.Duration
}

func NewWindow(limit int, window time.Duration) *Window {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &Window{
		events: make([]time.Time, 0, min(limit, 64)+8),
		limit:  limit,
		window: window,
	}
}

// Allow reports whether an event at now is permitted and records it if so.
func (w *Window) Allow(now time.Time) bool {
	ok, _ := w.Reserve(now)
	return ok
}

// Reserve is Allow that also reports how long until the next event would pass.
func (w *Window) Reserve(now time.Time) (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	if len(w.events) >= w.limit {
		return false, w.events[0].Add(w.window).Sub(now)
	}
	w.events = append(w.events, now)
	return true, 0
}

func (w *Window) idle(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)
	return len(w.events) == 0
}

func (w *Window) prune(now time.Time) {
	cut := now.Add(-w.window)
	dst := w.events[:0]
	for _, t := range w.events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	w.events = dst
}

// Keyed applies one Window per key (client IP, email). Idle keys are swept lazily.
type Keyed struct {
	mu        sync.Mutex
	windows   map[string]*Window
	limit     int
	window    time.Duration
	lastSweep time.Time
}

func NewKeyed(limit int, window time.Duration) *Keyed {
	return &Keyed{windows: make(map[string]*Window), limit: limit, window: window}
}

func (k *Keyed) Allow(key string, now time.Time) (bool, time.Duration) {
	k.mu.Lock()
	k.sweepLocked(now)
	w, ok := k.windows[key]
	if !ok {
		w = NewWindow(k.limit, k.window)
		k.windows[key] = w
	}
	k.mu.Unlock()
	return w.Reserve(now)
}

func (k *Keyed) sweepLocked(now time.Time) {
	if now.Sub(k.lastSweep) < k.window {
		return
	}
	k.lastSweep = now
	for key, w := range k.windows {
		if w.idle(now) {
			delete(k.windows, key)
		}
	}
}

// Tier locks a key for Duration after its latest failure once it has Threshold
// recorded failures.
type Tier struct {
	Threshold int
	Duration  time.Duration
}

// EvaluateWindow blocks when at least limit failures fall inside the trailing
// window; retry is when the oldest of them leaves it.
func EvaluateWindow(now time.Time, failures []time.Time, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 || window <= 0 {
		return false, 0
	}
	cut := now.Add(-window)
	var in []time.Time
	for _, t := range failures {
		if t.After(cut) && !t.After(now) {
			in = append(in, t)
		}
	}
	if len(in) < limit {
		return false, 0
	}
	return true, slices.MinFunc(in, time.Time.Compare).Add(window).Sub(now)
}

// EvaluateLockout checks tiers in order and returns the first active lockout.
// List tiers from most to least severe.
func EvaluateLockout(now time.Time, failures []time.Time, tiers []Tier) (bool, time.Duration) {
	if len(failures) == 0 {
		return false, 0
	}
	latest := slices.MaxFunc(failures, time.Time.Compare)
	for _, tier := range tiers {
		if tier.Threshold <= 0 || len(failures) < tier.Threshold {
			continue
		}
		if until := latest.Add(tier.Duration); until.After(now) {
			return true, until.Sub(now)
		}
	}
	return false, 0
}

// Failures remembers recent failure times per key, bounded by horizon.
type Failures struct {
	mu      sync.Mutex
	byKey   map[string][]time.Time
	horizon time.Duration
	max     int
}

func NewFailures(horizon time.Duration, max int) *Failures {
	if max <= 0 {
		max = 64
	}
	return &Failures{byKey: make(map[string][]time.Time), horizon: horizon, max: max}
}

func (f *Failures) Record(key string, now time.Time) {
	if key == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	list := append(f.pruneLocked(key, now), now)
	if len(list) > f.max {
		list = list[len(list)-f.max:]
	}
	f.byKey[key] = list
}

// Recent returns a copy of key's failures within the horizon.
func (f *Failures) Recent(key string, now time.Time) []time.Time {
	if key == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.pruneLocked(key, now))
}

func (f *Failures) Reset(key string) {
	f.mu.Lock()
	delete(f.byKey, key)
	f.mu.Unlock()
}

func (f *Failures) pruneLocked(key string, now time.Time) []time.Time {
	cut := now.Add(-f.horizon)
	list := f.byKey[key]
	dst := list[:0]
	for _, t := range list {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	if len(dst) == 0 {
		delete(f.byKey, key)
		return nil
	}
	f.byKey[key] = dst
	return dst
}
