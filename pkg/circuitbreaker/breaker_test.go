package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

func TestRun_PassesThroughErrors(t *testing.T) {
	cb := NewCircuitBreaker(ProviderConfig("test-pass"))

	assert.NoError(t, Run(cb, func() error { return nil }))

	sendErr := errors.New("upstream said no")
	err := Run(cb, func() error { return sendErr })
	assert.ErrorIs(t, err, sendErr)
	assert.False(t, IsRejected(err))
}

func TestRun_OpensAfterConsecutiveFailures(t *testing.T) {
	cfg := ProviderConfig("test-open")
	cfg.Timeout = time.Minute
	cb := NewCircuitBreaker(cfg)

	for i := 0; i < 5; i++ {
		_ = Run(cb, func() error { return errors.New("boom") })
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	called := false
	err := Run(cb, func() error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.True(t, IsRejected(err))
	assert.Contains(t, err.Error(), "test-open")
}
