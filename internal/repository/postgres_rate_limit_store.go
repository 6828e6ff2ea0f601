package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/folio/contact-relay/internal/models"
	"github.com/folio/contact-relay/pkg/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const postgresStoreName = "postgres"

// PgxQuerier is the subset of *pgxpool.Pool the store needs
type PgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresRateLimitStore keeps records in the contact_rate_limits table
type PostgresRateLimitStore struct {
	db PgxQuerier
}

// NewPostgresRateLimitStore creates a store over an open pool
func NewPostgresRateLimitStore(db PgxQuerier) *PostgresRateLimitStore {
	return &PostgresRateLimitStore{db: db}
}

func (s *PostgresRateLimitStore) Name() string {
	return postgresStoreName
}

func (s *PostgresRateLimitStore) Purge(ctx context.Context, before time.Time) (deleted int64, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore(postgresStoreName, "purge", start, err) }()

	tag, err := s.db.Exec(ctx, `DELETE FROM contact_rate_limits WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge rate limit records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresRateLimitStore) Usage(ctx context.Context, ip string, since time.Time) (usage models.RateLimitUsage, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore(postgresStoreName, "usage", start, err) }()

	var (
		count  int
		oldest *time.Time
	)
	err = s.db.QueryRow(ctx, `
		SELECT COUNT(*), MIN(created_at)
		FROM contact_rate_limits
		WHERE ip_address = $1 AND created_at > $2
	`, ip, since).Scan(&count, &oldest)
	if err != nil {
		return models.RateLimitUsage{}, fmt.Errorf("failed to count rate limit records: %w", err)
	}

	usage.Count = count
	if oldest != nil {
		usage.Oldest = *oldest
	}
	return usage, nil
}

func (s *PostgresRateLimitStore) Insert(ctx context.Context, rec models.RateLimitRecord) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore(postgresStoreName, "insert", start, err) }()

	_, err = s.db.Exec(ctx, `
		INSERT INTO contact_rate_limits (id, ip_address, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.IPAddress, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rate limit record: %w", err)
	}
	return nil
}

func (s *PostgresRateLimitStore) Delete(ctx context.Context, rec models.RateLimitRecord) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore(postgresStoreName, "delete", start, err) }()

	if _, err = s.db.Exec(ctx, `DELETE FROM contact_rate_limits WHERE id = $1`, rec.ID); err != nil {
		return fmt.Errorf("failed to delete rate limit record: %w", err)
	}
	return nil
}

func (s *PostgresRateLimitStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
