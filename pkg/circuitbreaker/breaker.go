package circuitbreaker

import (
	"errors"
	"fmt"
	"time"

	"github.com/folio/contact-relay/pkg/logger"
	"github.com/folio/contact-relay/pkg/metrics"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config holds circuit breaker configuration
type Config struct {
	Name         string
	MaxRequests  uint32        // Max requests allowed in half-open state
	Interval     time.Duration // Interval for resetting failure counts
	Timeout      time.Duration // Duration of open state before trying again
	ReadyToTrip  func(counts gobreaker.Counts) bool
	IsSuccessful func(err error) bool // Errors that should not count as failures
}

// ProviderConfig trips after a burst of failed sends to an email provider.
// A contact form sees little traffic, so a handful of failures is enough signal.
func ProviderConfig(name string) Config {
	return Config{
		Name:        name,
		MaxRequests: 1,
		Interval:    2 * time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
}

// NewCircuitBreaker creates a new circuit breaker with the given config
func NewCircuitBreaker(cfg Config) *gobreaker.CircuitBreaker {
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(stateValue(gobreaker.StateClosed))

	settings := gobreaker.Settings{
		Name:         cfg.Name,
		MaxRequests:  cfg.MaxRequests,
		Interval:     cfg.Interval,
		Timeout:      cfg.Timeout,
		ReadyToTrip:  cfg.ReadyToTrip,
		IsSuccessful: cfg.IsSuccessful,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return gobreaker.NewCircuitBreaker(settings)
}

// Run executes fn through the breaker. Open-state rejections come back via FormatError.
func Run(cb *gobreaker.CircuitBreaker, fn func() error) error {
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return FormatError(cb.Name(), err)
}

// IsRejected reports whether err came from the breaker refusing the call
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// FormatError wraps the error with circuit breaker information
func FormatError(breakerName string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) {
		return fmt.Errorf("circuit breaker '%s' is open: %w", breakerName, err)
	}
	if errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("circuit breaker '%s' has too many requests: %w", breakerName, err)
	}
	return err
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
