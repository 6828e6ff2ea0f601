package models

import (
	"time"

	"github.com/google/uuid"
)

// UnknownClientIP is the bucket shared by every caller whose address cannot be derived
const UnknownClientIP = "unknown"

// RateLimitRecord is one relay send for a client IP. The row is written before
// the provider call so it counts against the window while the send is in flight.
type RateLimitRecord struct {
	ID        string
	IPAddress string
	CreatedAt time.Time
}

// NewRateLimitRecord assigns the id once so retried writes stay idempotent
func NewRateLimitRecord(ip string, at time.Time) RateLimitRecord {
	return RateLimitRecord{ID: uuid.NewString(), IPAddress: ip, CreatedAt: at}
}

// RateLimitUsage summarizes the records of one IP inside the trailing window
type RateLimitUsage struct {
	Count  int
	Oldest time.Time // zero when Count is 0
}

// RetryAfter returns how long until the oldest record leaves the window
func (u RateLimitUsage) RetryAfter(now time.Time, window time.Duration) time.Duration {
	if u.Count == 0 || u.Oldest.IsZero() {
		return 0
	}
	wait := window - now.Sub(u.Oldest)
	if wait < 0 {
		return 0
	}
	return wait
}

// WaitMinutes rounds a wait up to whole minutes for display, never below one
func WaitMinutes(d time.Duration) int {
	minutes := int((d + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		return 1
	}
	return minutes
}
