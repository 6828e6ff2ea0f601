package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func fastPolicy() Policy {
	p := StorePolicy()
	p.BaseDelay = time.Millisecond
	p.MaxDelay = time.Millisecond
	p.Jitter = 0
	return p
}

func TestDo_SucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(), "insert", func(context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("connection reset")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDo_GivesUpAfterAttempts(t *testing.T) {
	attempts := 0
	cause := errors.New("still down")
	err := Do(context.Background(), fastPolicy(), "insert", func(context.Context) error {
		attempts++
		return cause
	})

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "insert failed after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"cancelled", context.Canceled},
		{"unique violation", &pgconn.PgError{Code: "23505"}},
		{"undefined table", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "42P01"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), fastPolicy(), "insert", func(context.Context) error {
				attempts++
				return tt.err
			})

			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, attempts)
		})
	}
}

func TestDo_RetriesConnectionClassErrors(t *testing.T) {
	attempts := 0
	_ = Do(context.Background(), fastPolicy(), "insert", func(context.Context) error {
		attempts++
		return &pgconn.PgError{Code: "08006"}
	})
	assert.Equal(t, 3, attempts)
}

func TestDo_RespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, fastPolicy(), "insert", func(context.Context) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoff(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	assert.Equal(t, 100*time.Millisecond, p.backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.backoff(2))
	assert.Equal(t, time.Second, p.backoff(10))
	assert.Equal(t, time.Second, p.backoff(80))

	p.Jitter = 0.5
	for i := 0; i < 20; i++ {
		d := p.backoff(2)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 200*time.Millisecond)
	}
}
