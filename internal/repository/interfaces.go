package repository

import (
	"context"
	"time"

	"github.com/folio/contact-relay/internal/models"
)

// RateLimitStore is the durable record of successful relay sends per client IP.
// Implementations exist for PostgreSQL, Redis and process memory.
type RateLimitStore interface {
	// Name labels metrics and logs
	Name() string

	// Purge deletes records created before the cutoff and reports how many went
	Purge(ctx context.Context, before time.Time) (int64, error)

	// Usage counts the records for ip created after since
	Usage(ctx context.Context, ip string, since time.Time) (models.RateLimitUsage, error)

	// Insert stores rec. Inserting the same rec.ID twice keeps one row.
	Insert(ctx context.Context, rec models.RateLimitRecord) error

	// Delete removes rec; a missing row is not an error
	Delete(ctx context.Context, rec models.RateLimitRecord) error

	// Ping checks the backend is reachable
	Ping(ctx context.Context) error
}
