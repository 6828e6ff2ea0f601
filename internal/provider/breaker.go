package provider

import (
	"context"

	"github.com/folio/contact-relay/internal/models"
	"github.com/folio/contact-relay/pkg/circuitbreaker"
	apperrors "github.com/folio/contact-relay/pkg/errors"
	"github.com/sony/gobreaker"
)

type guarded struct {
	Provider
	cb *gobreaker.CircuitBreaker
}

// WithCircuitBreaker stops calling p after repeated delivery failures.
// Rejected submissions, missing configuration and caller cancellation do not count.
func WithCircuitBreaker(p Provider) Provider {
	cfg := circuitbreaker.ProviderConfig("provider-" + p.Name())
	cfg.IsSuccessful = func(err error) bool {
		return err == nil ||
			apperrors.Is(err, apperrors.ErrNotConfigured) ||
			apperrors.Is(err, apperrors.ErrRateLimited) ||
			apperrors.Is(err, apperrors.ErrInvalidInput) ||
			apperrors.Is(err, context.Canceled)
	}
	return &guarded{Provider: p, cb: circuitbreaker.NewCircuitBreaker(cfg)}
}

func (g *guarded) Send(ctx context.Context, params models.TemplateParams) error {
	if !g.Configured() {
		return apperrors.NotConfiguredError(g.Name() + " provider")
	}

	err := circuitbreaker.Run(g.cb, func() error {
		return g.Provider.Send(ctx, params)
	})
	if circuitbreaker.IsRejected(err) {
		return &apperrors.ProviderError{
			Provider: g.Name(),
			Message:  "Email service is temporarily unavailable. Please try again later.",
		}
	}
	return err
}
