// Package dispatcher drives one contact form: it validates the fields, consults
// the local limiter, hands the message to a provider and keeps the outcome the
// user sees.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/folio/contact-relay/internal/models"
	"github.com/folio/contact-relay/internal/provider"
	"github.com/folio/contact-relay/internal/ratelimit"
	"github.com/folio/contact-relay/internal/validation"
	apperrors "github.com/folio/contact-relay/pkg/errors"
	"github.com/folio/contact-relay/pkg/logger"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 15 * time.Second

	// GenericFailure is shown whenever there is no provider text worth surfacing
	GenericFailure = "Failed to send message. Please try again later."
)

// Limiter gates submissions on the client
type Limiter interface {
	Check() ratelimit.Status
	Record() error
}

// NotificationKind distinguishes toast styles
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notification is a short message surfaced to the user
type Notification struct {
	Kind    NotificationKind
	Title   string
	Message string
}

// Notifier receives user-facing notifications
type Notifier func(Notification)

// Dispatcher owns the form fields and the outcome of the latest attempt
type Dispatcher struct {
	mu       sync.Mutex
	busy     bool
	fields   models.SubmissionRequest
	outcome  models.SubmissionOutcome
	limiter  Limiter
	provider provider.Provider
	notify   Notifier
	timeout  time.Duration
}

// Option customizes a Dispatcher
type Option func(*Dispatcher)

// WithTimeout bounds each provider call
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithNotifier sets where notifications go. Without one they are dropped.
func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) {
		d.notify = n
	}
}

// New creates a dispatcher sending through p and gated by limiter
func New(limiter Limiter, p provider.Provider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		limiter:  limiter,
		provider: p,
		notify:   func(Notification) {},
		timeout:  DefaultTimeout,
		outcome:  models.SubmissionOutcome{Status: models.StatusIdle},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetFields replaces the form contents
func (d *Dispatcher) SetFields(req models.SubmissionRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fields = req
}

// Fields returns the current form contents
func (d *Dispatcher) Fields() models.SubmissionRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fields
}

// Outcome returns the state of the latest attempt
func (d *Dispatcher) Outcome() models.SubmissionOutcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outcome
}

// Submit runs one attempt with the current fields. While an attempt is in
// flight further calls return its current outcome unchanged.
//
// ctx is the lifetime of the form. If it ends before the provider answers,
// the attempt's outcome and notifications are discarded; a delivered message
// is still recorded in the limiter.
func (d *Dispatcher) Submit(ctx context.Context) models.SubmissionOutcome {
	d.mu.Lock()
	if d.busy {
		out := d.outcome
		d.mu.Unlock()
		return out
	}
	d.busy = true
	d.outcome = models.SubmissionOutcome{Status: models.StatusIdle}
	fields := d.fields
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
	}()

	req, violations := validation.Validate(fields)
	if len(violations) > 0 {
		return d.finish(models.SubmissionOutcome{
			Status:      models.StatusError,
			Error:       "Please correct the highlighted fields.",
			FieldErrors: violations,
		})
	}

	if st := d.limiter.Check(); st.Limited {
		return d.rateLimited(st.Remaining)
	}

	if !d.provider.Configured() {
		logger.Error("Email provider is not configured", zap.String("provider", d.provider.Name()))
		return d.fail(GenericFailure)
	}

	d.setOutcome(models.SubmissionOutcome{Status: models.StatusSending})

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	err := d.provider.Send(sendCtx, req.TemplateParams())
	cancel()

	if err == nil {
		if recErr := d.limiter.Record(); recErr != nil {
			logger.Warn("Failed to record submission", zap.Error(recErr))
		}
	}

	if ctx.Err() != nil {
		logger.Debug("Form closed while sending, discarding outcome", zap.Error(ctx.Err()))
		d.setOutcome(models.SubmissionOutcome{Status: models.StatusIdle})
		return models.SubmissionOutcome{Status: models.StatusIdle}
	}

	var rl *apperrors.RateLimitError
	if apperrors.As(err, &rl) {
		return d.rateLimited(rl.RetryAfter)
	}
	if err != nil {
		return d.fail(failureMessage(err))
	}

	d.mu.Lock()
	d.fields = models.SubmissionRequest{}
	d.mu.Unlock()

	out := d.finish(models.SubmissionOutcome{Status: models.StatusSuccess})
	d.notify(Notification{
		Kind:    NotifySuccess,
		Title:   "Message sent!",
		Message: "Thank you for reaching out. I'll get back to you soon.",
	})
	return out
}

func (d *Dispatcher) rateLimited(wait time.Duration) models.SubmissionOutcome {
	out := d.finish(models.SubmissionOutcome{
		Status:     models.StatusRateLimited,
		Error:      rateLimitMessage(wait),
		RetryAfter: wait,
	})
	d.notify(Notification{Kind: NotifyError, Title: "Too many messages", Message: out.Error})
	return out
}

func (d *Dispatcher) fail(message string) models.SubmissionOutcome {
	out := d.finish(models.SubmissionOutcome{Status: models.StatusError, Error: message})
	d.notify(Notification{Kind: NotifyError, Title: "Failed to send message", Message: message})
	return out
}

func (d *Dispatcher) finish(out models.SubmissionOutcome) models.SubmissionOutcome {
	d.setOutcome(out)
	return out
}

func (d *Dispatcher) setOutcome(out models.SubmissionOutcome) {
	d.mu.Lock()
	d.outcome = out
	d.mu.Unlock()
}

// failureMessage picks the text shown for a failed send
func failureMessage(err error) string {
	var perr *apperrors.ProviderError
	if apperrors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}

	logger.Warn("Contact submission failed", zap.Error(err))
	return GenericFailure
}

func rateLimitMessage(wait time.Duration) string {
	return fmt.Sprintf("You've sent too many messages. Please wait %d minutes before trying again.", models.WaitMinutes(wait))
}
