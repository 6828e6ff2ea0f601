// Package ratelimit implements the client-side submission limiter.
//
// The limiter is a convenience gate for honest users. It lives in storage the user
// controls, so it is not a security boundary: the relay's per-IP store is the only
// authoritative limit.
package ratelimit

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/folio/contact-relay/pkg/localstore"
	"github.com/folio/contact-relay/pkg/logger"
	"go.uber.org/zap"
)

const (
	// StorageKey is the local storage key holding the JSON array of epoch-ms timestamps
	StorageKey = "contact_form_submissions"

	DefaultMaxSubmissions = 3
	DefaultWindow         = time.Hour
)

// Status is the result of a limiter check
type Status struct {
	Limited   bool
	Remaining time.Duration
}

// WindowLimiter caps submissions to max per trailing window
type WindowLimiter struct {
	store  localstore.Store
	max    int
	window time.Duration
	now    func() time.Time
}

// Option customizes a WindowLimiter
type Option func(*WindowLimiter)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(l *WindowLimiter) {
		l.now = now
	}
}

// NewWindowLimiter creates a limiter persisting its window in store.
// Non-positive max or window fall back to the defaults.
func NewWindowLimiter(store localstore.Store, max int, window time.Duration, opts ...Option) *WindowLimiter {
	if max <= 0 {
		max = DefaultMaxSubmissions
	}
	if window <= 0 {
		window = DefaultWindow
	}

	l := &WindowLimiter{
		store:  store,
		max:    max,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check reports whether another submission is allowed right now
func (l *WindowLimiter) Check() Status {
	now := l.now()
	stored := l.load()
	valid := l.prune(stored, now)

	if len(valid) != len(stored) {
		l.save(valid)
	}

	if len(valid) < l.max {
		return Status{}
	}

	earliest := time.UnixMilli(valid[0])
	remaining := l.window - now.Sub(earliest)
	if remaining < 0 {
		remaining = 0
	}

	return Status{Limited: true, Remaining: remaining}
}

// Record appends the current time to the window and persists it
func (l *WindowLimiter) Record() error {
	now := l.now()
	valid := l.prune(l.load(), now)
	valid = append(valid, now.UnixMilli())
	return l.save(valid)
}

// load reads the persisted window. Unreadable state is reset and treated as empty.
func (l *WindowLimiter) load() []int64 {
	raw, ok, err := l.store.GetItem(StorageKey)
	if err != nil {
		logger.Warn("Failed to read submission window, resetting", zap.Error(err))
		l.reset()
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	var timestamps []int64
	if err := json.Unmarshal([]byte(raw), &timestamps); err != nil {
		logger.Warn("Malformed submission window, resetting", zap.Error(err))
		l.reset()
		return nil
	}

	return timestamps
}

// prune keeps only timestamps inside the trailing window, oldest first
func (l *WindowLimiter) prune(timestamps []int64, now time.Time) []int64 {
	cutoff := now.Add(-l.window).UnixMilli()
	valid := make([]int64, 0, len(timestamps)+1)
	for _, ts := range timestamps {
		if ts > cutoff {
			valid = append(valid, ts)
		}
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i] < valid[j] })
	return valid
}

func (l *WindowLimiter) save(timestamps []int64) error {
	if timestamps == nil {
		timestamps = []int64{}
	}
	data, err := json.Marshal(timestamps)
	if err != nil {
		return err
	}
	if err := l.store.SetItem(StorageKey, string(data)); err != nil {
		logger.Warn("Failed to persist submission window", zap.Error(err))
		return err
	}
	return nil
}

func (l *WindowLimiter) reset() {
	if err := l.store.RemoveItem(StorageKey); err != nil {
		logger.Warn("Failed to reset submission window", zap.Error(err))
	}
}
