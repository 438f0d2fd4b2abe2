package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInflightRegistry_Deduplicates(t *testing.T) {
	ctx := context.Background()
	r := newInflightRegistry()
	key := NewKey("users", 42)

	var calls atomic.Int32
	gate := make(chan struct{})

	const callers = 10
	results := make([]any, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.do(ctx, key, "string", func() (any, error) {
				calls.Add(1)
				<-gate
				return "shared-result", nil
			})
		}(i)
	}

	// Hold the fetch open long enough for every caller to join it.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "concurrent callers must share one execution")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared-result", results[i])
	}
	assert.False(t, r.active(key), "registry entry must be cleared after completion")
}

func TestInflightRegistry_SharedError(t *testing.T) {
	ctx := context.Background()
	r := newInflightRegistry()
	key := NewKey("users", 42)
	fetchErr := errors.New("source is down")

	gate := make(chan struct{})
	var wg sync.WaitGroup
	errs := make([]error, 3)
	wg.Add(3)
	for i := 0; i < 3; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.do(ctx, key, "string", func() (any, error) {
				<-gate
				return nil, fetchErr
			})
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	// The one failure is delivered to every awaiter, not retried per-awaiter.
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, errs[i], fetchErr)
	}
}

func TestInflightRegistry_TypeMismatchFailsLoudly(t *testing.T) {
	ctx := context.Background()
	r := newInflightRegistry()
	key := NewKey("users", 42)

	started := make(chan struct{})
	gate := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := r.do(ctx, key, "string", func() (any, error) {
			close(started)
			<-gate
			return "value", nil
		})
		assert.NoError(t, err)
	}()

	<-started
	_, err := r.do(ctx, key, "int", func() (any, error) {
		t.Error("mismatched joiner must not start a second fetch")
		return nil, nil
	})
	require.ErrorIs(t, err, ErrTypeMismatch)

	close(gate)
	wg.Wait()
}

func TestInflightRegistry_JoinerCancellationDoesNotAbortFetch(t *testing.T) {
	r := newInflightRegistry()
	key := NewKey("users", 42)

	started := make(chan struct{})
	gate := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	var leaderVal any
	go func() {
		defer wg.Done()
		leaderVal, _ = r.do(context.Background(), key, "string", func() (any, error) {
			close(started)
			<-gate
			return "eventual", nil
		})
	}()
	<-started

	joinCtx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.do(joinCtx, key, "string", func() (any, error) {
		t.Error("joiner must not start a second fetch")
		return nil, nil
	})
	require.ErrorIs(t, err, context.Canceled)

	// The shared fetch still runs to completion for the remaining awaiter.
	close(gate)
	wg.Wait()
	assert.Equal(t, "eventual", leaderVal)
}

func TestInflightRegistry_FreshCycleAfterCompletion(t *testing.T) {
	ctx := context.Background()
	r := newInflightRegistry()
	key := NewKey("users", 42)

	var calls atomic.Int32
	run := func() {
		_, err := r.do(ctx, key, "string", func() (any, error) {
			calls.Add(1)
			return "v", nil
		})
		require.NoError(t, err)
	}

	run()
	run()
	assert.Equal(t, int32(2), calls.Load(), "sequential calls start separate fetches")
}
