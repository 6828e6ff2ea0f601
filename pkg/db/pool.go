// Package db opens the PostgreSQL pool behind the rate limit store and applies
// its migrations.
package db

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/folio/contact-relay/config"
	"github.com/folio/contact-relay/pkg/tracing"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultCACertPath is where a managed database's CA bundle is expected
// unless DATABASE_CA_CERT points elsewhere
const DefaultCACertPath = "certs/db-ca.crt"

// sslMode extracts sslmode from a URL or keyword/value connection string
func sslMode(databaseURL string) string {
	if u, err := url.Parse(databaseURL); err == nil && u.Scheme != "" {
		return u.Query().Get("sslmode")
	}
	for _, field := range strings.Fields(databaseURL) {
		if v, ok := strings.CutPrefix(field, "sslmode="); ok {
			return v
		}
	}
	return ""
}

func requiresTLS(databaseURL string) bool {
	switch sslMode(databaseURL) {
	case "require", "verify-ca", "verify-full":
		return true
	}
	return false
}

// loadTLS pins the managed instance's CA. Nil means pgx keeps its own settings,
// either because TLS is off or because no CA bundle is available.
func loadTLS(databaseURL string) (*tls.Config, error) {
	if !requiresTLS(databaseURL) {
		return nil, nil
	}

	certPath, explicit := os.LookupEnv("DATABASE_CA_CERT")
	if !explicit || certPath == "" {
		certPath = DefaultCACertPath
	}

	caPEM, err := os.ReadFile(certPath)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read CA certificate from %s: %w", certPath, err)
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no certificates found in %s", certPath)
	}

	return &tls.Config{
		RootCAs:    roots,
		ServerName: os.Getenv("DATABASE_TLS_SERVER_NAME"),
		MinVersion: tls.VersionTLS12,
	}, nil
}

// queryTracer opens a span per statement issued by the rate limit store
type queryTracer struct{}

type spanKey struct{}

func (queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	ctx, span := tracing.StartSpan(ctx, "postgres.query",
		attribute.String("db.system", "postgresql"),
		attribute.String("db.statement", data.SQL))
	return context.WithValue(ctx, spanKey{}, span)
}

func (queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	if span, ok := ctx.Value(spanKey{}).(trace.Span); ok {
		span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
		tracing.EndSpan(span, data.Err)
	}
}

// NewPool creates the pool backing the rate limit store and pings it once.
// The relay issues at most three short statements per submission, so the
// pool stays small and recycles connections hourly.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	tlsCfg, err := loadTLS(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to configure TLS: %w", err)
	}
	if tlsCfg != nil {
		poolCfg.ConnConfig.TLSConfig = tlsCfg
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns >= 0 && cfg.MinConns <= poolCfg.MaxConns {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.ConnConfig.Tracer = queryTracer{}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// Close releases the pool; nil is allowed
func Close(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}
