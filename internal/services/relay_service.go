package services

import (
	"context"
	"time"

	"github.com/folio/contact-relay/config"
	"github.com/folio/contact-relay/internal/models"
	"github.com/folio/contact-relay/internal/provider"
	"github.com/folio/contact-relay/internal/repository"
	apperrors "github.com/folio/contact-relay/pkg/errors"
	"github.com/folio/contact-relay/pkg/logger"
	"github.com/folio/contact-relay/pkg/metrics"
	"github.com/folio/contact-relay/pkg/retry"
	"github.com/folio/contact-relay/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RelayService sends validated submissions on behalf of callers, limiting
// each client IP to a fixed number of sends per trailing window
type RelayService struct {
	store    repository.RateLimitStore
	provider provider.Provider
	limit    int
	window   time.Duration
	timeout  time.Duration
	locks    *keyedMutex
	now      func() time.Time
}

// NewRelayService creates a new relay service instance
func NewRelayService(store repository.RateLimitStore, p provider.Provider, rl config.RateLimitConfig, providerTimeout time.Duration) *RelayService {
	if providerTimeout <= 0 {
		providerTimeout = 15 * time.Second
	}
	return &RelayService{
		store:    store,
		provider: p,
		limit:    rl.MaxSubmissions,
		window:   rl.Window,
		timeout:  providerTimeout,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// Submit runs one relay attempt for an already validated request.
//
// The per-IP lock covers only the count and the reservation of a window slot,
// so sends from the same bucket run concurrently. A failed send gives its slot
// back unless the provider may still deliver.
//
// Errors: *errors.RateLimitError when the IP has used its quota,
// errors.ErrNotConfigured when provider secrets are missing, and the
// provider's error (usually *errors.ProviderError) when the send fails.
func (s *RelayService) Submit(ctx context.Context, clientIP string, req models.SubmissionRequest) (*models.SubmissionReceipt, error) {
	ctx, span := tracing.StartSpan(ctx, "RelayService.Submit",
		attribute.String("client.ip", clientIP),
		attribute.String("provider", s.provider.Name()))
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	now := s.now()
	rec, reserved, err := s.reserve(ctx, clientIP, now)
	if err != nil {
		return nil, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err = s.provider.Send(sendCtx, req.TemplateParams())
	cancel()
	if err != nil {
		metrics.ContactSubmissions.WithLabelValues("provider_error").Inc()
		logger.Error("Failed to send contact email",
			zap.String("provider", s.provider.Name()),
			zap.String("client_ip", clientIP),
			zap.Error(err))
		if reserved {
			s.settle(ctx, rec, err)
		}
		return nil, err
	}

	metrics.ContactSubmissions.WithLabelValues("success").Inc()
	logger.Info("Contact email sent",
		zap.String("provider", s.provider.Name()),
		zap.String("client_ip", clientIP),
		logger.Email("reply_to", req.Email))

	return &models.SubmissionReceipt{ClientIP: clientIP, SentAt: now, Recorded: reserved}, nil
}

// reserve counts the IP's window and, when a slot is free, writes the record
// for this send. A failed write is logged and the send goes ahead unrecorded.
func (s *RelayService) reserve(ctx context.Context, clientIP string, now time.Time) (models.RateLimitRecord, bool, error) {
	unlock, err := s.locks.Lock(ctx, clientIP)
	if err != nil {
		return models.RateLimitRecord{}, false, err
	}
	defer unlock()

	s.purgeBestEffort(ctx, now)

	usage, err := s.store.Usage(ctx, clientIP, now.Add(-s.window))
	if err != nil {
		metrics.ContactSubmissions.WithLabelValues("error").Inc()
		logger.Error("Failed to read rate limit usage",
			zap.String("store", s.store.Name()),
			zap.String("client_ip", clientIP),
			zap.Error(err))
		return models.RateLimitRecord{}, false, apperrors.InternalError("rate limit lookup failed")
	}

	if usage.Count >= s.limit {
		metrics.ContactSubmissions.WithLabelValues("rate_limited").Inc()
		wait := usage.RetryAfter(now, s.window)
		logger.Info("Contact submission rate limited",
			zap.String("client_ip", clientIP),
			zap.Int("count", usage.Count),
			zap.Duration("retry_after", wait))
		return models.RateLimitRecord{}, false, apperrors.RateLimited(wait)
	}

	if !s.provider.Configured() {
		metrics.ContactSubmissions.WithLabelValues("not_configured").Inc()
		logger.Error("Email provider is not configured", zap.String("provider", s.provider.Name()))
		return models.RateLimitRecord{}, false, apperrors.NotConfiguredError(s.provider.Name() + " provider")
	}

	rec := models.NewRateLimitRecord(clientIP, now)
	if err := retry.Do(context.WithoutCancel(ctx), retry.StorePolicy(), "rate_limit_insert", func(ctx context.Context) error {
		return s.store.Insert(ctx, rec)
	}); err != nil {
		logger.Error("Failed to record rate limit entry",
			zap.String("store", s.store.Name()),
			zap.String("client_ip", clientIP),
			zap.Error(err))
		return rec, false, nil
	}
	return rec, true, nil
}

// settle gives the slot of a failed send back. When delivery is unconfirmed
// the record stays so a retry by the user still counts against the window.
func (s *RelayService) settle(ctx context.Context, rec models.RateLimitRecord, sendErr error) {
	if apperrors.Is(sendErr, apperrors.ErrDeliveryUnconfirmed) {
		logger.Warn("Keeping rate limit entry for a send that may still be delivered",
			zap.String("client_ip", rec.IPAddress))
		return
	}

	if err := retry.Do(context.WithoutCancel(ctx), retry.StorePolicy(), "rate_limit_release", func(ctx context.Context) error {
		return s.store.Delete(ctx, rec)
	}); err != nil {
		logger.Error("Failed to release rate limit entry",
			zap.String("store", s.store.Name()),
			zap.String("client_ip", rec.IPAddress),
			zap.Error(err))
	}
}

// Status reports whether the relay can send and how many sends the IP has left
func (s *RelayService) Status(ctx context.Context, clientIP string) (*models.RelayStatusResponse, error) {
	now := s.now()
	usage, err := s.store.Usage(ctx, clientIP, now.Add(-s.window))
	if err != nil {
		logger.Error("Failed to read rate limit usage", zap.String("client_ip", clientIP), zap.Error(err))
		return nil, apperrors.InternalError("rate limit lookup failed")
	}

	remaining := s.limit - usage.Count
	if remaining < 0 {
		remaining = 0
	}

	return &models.RelayStatusResponse{
		Configured:    s.provider.Configured(),
		Limit:         s.limit,
		WindowSeconds: int(s.window / time.Second),
		Remaining:     remaining,
	}, nil
}

// PurgeExpired deletes every record that has left the window
func (s *RelayService) PurgeExpired(ctx context.Context) (int64, error) {
	deleted, err := s.store.Purge(ctx, s.now().Add(-s.window))
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		metrics.PurgedRecords.Add(float64(deleted))
		logger.Debug("Purged expired rate limit records", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}

func (s *RelayService) purgeBestEffort(ctx context.Context, now time.Time) {
	deleted, err := s.store.Purge(ctx, now.Add(-s.window))
	if err != nil {
		logger.Warn("Failed to purge expired rate limit records",
			zap.String("store", s.store.Name()),
			zap.Error(err))
		return
	}
	if deleted > 0 {
		metrics.PurgedRecords.Add(float64(deleted))
	}
}
