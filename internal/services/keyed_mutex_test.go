package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lock(t *testing.T, k *keyedMutex, key string) func() {
	t.Helper()
	unlock, err := k.Lock(context.Background(), key)
	require.NoError(t, err)
	return unlock
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := newKeyedMutex()

	unlock := lock(t, k, "203.0.113.7")
	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		if second, err := k.Lock(context.Background(), "203.0.113.7"); err == nil {
			second()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	<-acquired
	assert.Equal(t, 0, k.size())
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	k := newKeyedMutex()

	unlockA := lock(t, k, "a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		if unlockB, err := k.Lock(context.Background(), "b"); err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another key blocked")
	}
}

func TestKeyedMutex_WaiterGivesUpWithContext(t *testing.T) {
	k := newKeyedMutex()
	unlock := lock(t, k, "unknown")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	second, err := k.Lock(ctx, "unknown")
	assert.Nil(t, second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	unlock()
	assert.Equal(t, 0, k.size())
}

func TestKeyedMutex_UnlockTwiceIsSafe(t *testing.T) {
	k := newKeyedMutex()

	unlock := lock(t, k, "a")
	unlock()
	unlock()

	again := lock(t, k, "a")
	again()
	assert.Equal(t, 0, k.size())
}

func TestKeyedMutex_ForgetsReleasedKeys(t *testing.T) {
	k := newKeyedMutex()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if unlock, err := k.Lock(context.Background(), "shared"); err == nil {
				unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, k.size())
}
