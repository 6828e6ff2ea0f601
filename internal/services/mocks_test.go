package services_test

import (
	"context"
	"time"

	"github.com/folio/contact-relay/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockRateLimitStore is a mock implementation of repository.RateLimitStore
type MockRateLimitStore struct {
	mock.Mock
}

func (m *MockRateLimitStore) Name() string {
	return "mock"
}

func (m *MockRateLimitStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRateLimitStore) Usage(ctx context.Context, ip string, since time.Time) (models.RateLimitUsage, error) {
	args := m.Called(ctx, ip, since)
	return args.Get(0).(models.RateLimitUsage), args.Error(1)
}

func (m *MockRateLimitStore) Insert(ctx context.Context, rec models.RateLimitRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockRateLimitStore) Delete(ctx context.Context, rec models.RateLimitRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockRateLimitStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

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
