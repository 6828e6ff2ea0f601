package dispatcher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/folio/contact-relay/internal/dispatcher"
	"github.com/folio/contact-relay/internal/models"
	"github.com/folio/contact-relay/internal/ratelimit"
	apperrors "github.com/folio/contact-relay/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockProvider is a mock implementation of provider.Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string {
	return "mock"
}

func (m *MockProvider) Configured() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockProvider) Send(ctx context.Context, params models.TemplateParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

// MockLimiter is a mock implementation of dispatcher.Limiter
type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Check() ratelimit.Status {
	args := m.Called()
	return args.Get(0).(ratelimit.Status)
}

func (m *MockLimiter) Record() error {
	args := m.Called()
	return args.Error(0)
}

var validFields = models.SubmissionRequest{
	Name:    "  Ada Lovelace ",
	Email:   "ada@example.com",
	Subject: "Analytical engine",
	Message: "I would like to talk about your portfolio.",
}

var expectedParams = models.TemplateParams{
	FromName: "Ada Lovelace",
	ReplyTo:  "ada@example.com",
	Subject:  "Analytical engine",
	Message:  "I would like to talk about your portfolio.",
}

type recorder struct {
	got []dispatcher.Notification
}

func (r *recorder) notify(n dispatcher.Notification) {
	r.got = append(r.got, n)
}

func setup(fields models.SubmissionRequest) (*dispatcher.Dispatcher, *MockLimiter, *MockProvider, *recorder) {
	limiter := new(MockLimiter)
	provider := new(MockProvider)
	rec := &recorder{}
	d := dispatcher.New(limiter, provider, dispatcher.WithNotifier(rec.notify), dispatcher.WithTimeout(time.Second))
	d.SetFields(fields)
	return d, limiter, provider, rec
}

func TestSubmit_Success(t *testing.T) {
	d, limiter, provider, rec := setup(validFields)

	limiter.On("Check").Return(ratelimit.Status{}).Once()
	limiter.On("Record").Return(nil).Once()
	provider.On("Configured").Return(true)
	provider.On("Send", mock.Anything, expectedParams).Return(nil).Once()

	out := d.Submit(context.Background())

	assert.Equal(t, models.StatusSuccess, out.Status)
	assert.Empty(t, out.Error)
	assert.Equal(t, models.SubmissionRequest{}, d.Fields(), "fields are cleared after success")
	assert.Equal(t, out, d.Outcome())
	if assert.Len(t, rec.got, 1) {
		assert.Equal(t, dispatcher.NotifySuccess, rec.got[0].Kind)
	}

	limiter.AssertExpectations(t)
	provider.AssertExpectations(t)
}

func TestSubmit_ValidationErrorsMakeNoCalls(t *testing.T) {
	d, limiter, provider, rec := setup(models.SubmissionRequest{
		Name:    "   ",
		Email:   "not-an-email",
		Subject: "Hi",
		Message: "short",
	})

	out := d.Submit(context.Background())

	assert.Equal(t, models.StatusError, out.Status)
	fields := make([]string, 0, len(out.FieldErrors))
	for _, fe := range out.FieldErrors {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"name", "email", "message"}, fields)
	assert.Empty(t, rec.got)

	limiter.AssertNotCalled(t, "Check")
	provider.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestSubmit_RateLimited(t *testing.T) {
	d, limiter, provider, rec := setup(validFields)

	limiter.On("Check").Return(ratelimit.Status{Limited: true, Remaining: 42*time.Minute + 10*time.Second}).Once()

	out := d.Submit(context.Background())

	assert.Equal(t, models.StatusRateLimited, out.Status)
	assert.Equal(t, 42*time.Minute+10*time.Second, out.RetryAfter)
	assert.Contains(t, out.Error, "43 minutes")
	assert.Equal(t, validFields, d.Fields())
	assert.Len(t, rec.got, 1)

	provider.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	limiter.AssertNotCalled(t, "Record")
}

func TestSubmit_NotConfiguredUsesGenericError(t *testing.T) {
	d, limiter, provider, rec := setup(validFields)

	limiter.On("Check").Return(ratelimit.Status{}).Once()
	provider.On("Configured").Return(false)

	out := d.Submit(context.Background())

	assert.Equal(t, models.StatusError, out.Status)
	assert.Equal(t, dispatcher.GenericFailure, out.Error)
	if assert.Len(t, rec.got, 1) {
		assert.Equal(t, dispatcher.NotifyError, rec.got[0].Kind)
	}

	provider.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	limiter.AssertNotCalled(t, "Record")
}

func TestSubmit_ProviderErrorKeepsFields(t *testing.T) {
	d, limiter, provider, _ := setup(validFields)

	limiter.On("Check").Return(ratelimit.Status{}).Once()
	provider.On("Configured").Return(true)
	provider.On("Send", mock.Anything, expectedParams).
		Return(&apperrors.ProviderError{Provider: "mock", Message: "The template ID is invalid"}).Once()

	out := d.Submit(context.Background())

	assert.Equal(t, models.StatusError, out.Status)
	assert.Equal(t, "The template ID is invalid", out.Error)
	assert.Equal(t, validFields, d.Fields())
	limiter.AssertNotCalled(t, "Record")
}

func TestSubmit_NetworkErrorUsesGenericMessage(t *testing.T) {
	d, limiter, provider, _ := setup(validFields)

	limiter.On("Check").Return(ratelimit.Status{}).Once()
	provider.On("Configured").Return(true)
	provider.On("Send", mock.Anything, expectedParams).Return(errors.New("dial tcp: connection refused")).Once()

	out := d.Submit(context.Background())

	assert.Equal(t, models.StatusError, out.Status)
	assert.Equal(t, dispatcher.GenericFailure, out.Error)
}

func TestSubmit_RelayRateLimitBecomesRateLimitedOutcome(t *testing.T) {
	d, limiter, provider, _ := setup(validFields)

	limiter.On("Check").Return(ratelimit.Status{}).Once()
	provider.On("Configured").Return(true)
	provider.On("Send", mock.Anything, expectedParams).Return(apperrors.RateLimited(5 * time.Minute)).Once()

	out := d.Submit(context.Background())

	assert.Equal(t, models.StatusRateLimited, out.Status)
	assert.Equal(t, 5*time.Minute, out.RetryAfter)
	limiter.AssertNotCalled(t, "Record")
}

func TestSubmit_RecordFailureStillSucceeds(t *testing.T) {
	d, limiter, provider, _ := setup(validFields)

	limiter.On("Check").Return(ratelimit.Status{}).Once()
	limiter.On("Record").Return(errors.New("disk full")).Once()
	provider.On("Configured").Return(true)
	provider.On("Send", mock.Anything, expectedParams).Return(nil).Once()

	assert.Equal(t, models.StatusSuccess, d.Submit(context.Background()).Status)
}

func TestSubmit_CancelledWhileSendingDiscardsOutcome(t *testing.T) {
	d, limiter, provider, rec := setup(validFields)
	ctx, cancel := context.WithCancel(context.Background())

	limiter.On("Check").Return(ratelimit.Status{}).Once()
	limiter.On("Record").Return(nil).Once()
	provider.On("Configured").Return(true)
	provider.On("Send", mock.Anything, expectedParams).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil).Once()

	out := d.Submit(ctx)

	assert.Equal(t, models.StatusIdle, out.Status)
	assert.Empty(t, rec.got)
	assert.Equal(t, validFields, d.Fields())
	// The message went out, so it still counts against the window
	limiter.AssertExpectations(t)
}

func TestSubmit_ProviderCallIsBounded(t *testing.T) {
	d, limiter, provider, _ := setup(validFields)

	limiter.On("Check").Return(ratelimit.Status{}).Once()
	provider.On("Configured").Return(true)
	provider.On("Send", mock.Anything, expectedParams).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, ok := ctx.Deadline()
			assert.True(t, ok)
		}).
		Return(nil).Once()
	limiter.On("Record").Return(nil).Once()

	d.Submit(context.Background())
	provider.AssertExpectations(t)
}

func TestNew_StartsIdle(t *testing.T) {
	d := dispatcher.New(new(MockLimiter), new(MockProvider))
	assert.Equal(t, models.StatusIdle, d.Outcome().Status)
	assert.False(t, d.Outcome().IsTerminal())
}
