package source_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-query/pkg/query"
	"github.com/illmade-knight/go-query/pkg/source"
)

// mockSource is a test double for the source.Source interface.
type mockSource[K comparable, V any] struct {
	FetchFunc func(ctx context.Context, key K) (V, error)
	CloseFunc func() error
}

func (m *mockSource[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, key)
	}
	var zero V
	return zero, fmt.Errorf("mock source not implemented")
}

func (m *mockSource[K, V]) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func TestBind(t *testing.T) {
	ctx := context.Background()

	t.Run("Fixes source and key into a fetch function", func(t *testing.T) {
		src := &mockSource[string, int]{
			FetchFunc: func(ctx context.Context, key string) (int, error) {
				require.Equal(t, "user:1", key)
				return 42, nil
			},
		}

		fetchFn := source.Bind[string, int](src, "user:1")
		value, err := fetchFn(ctx)
		require.NoError(t, err)
		assert.Equal(t, 42, value)
	})

	t.Run("Feeds the query cache read-through", func(t *testing.T) {
		var sourceCalls atomic.Int32
		src := &mockSource[string, string]{
			FetchFunc: func(ctx context.Context, key string) (string, error) {
				sourceCalls.Add(1)
				return "from-source", nil
			},
		}

		clk := clockwork.NewFakeClock()
		client := query.NewClient(&query.ClientConfig{Clock: clk}, zerolog.Nop())
		key := query.NewKey("users", 1)
		opts := query.Options{StaleTime: time.Minute}
		fetchFn := source.Bind[string, string](src, "user:1")

		// First read hits the source; the second is served from cache.
		_, value, err := query.Fetch(ctx, client, key, opts, fetchFn)
		require.NoError(t, err)
		assert.Equal(t, "from-source", value)

		_, value, err = query.Fetch(ctx, client, key, opts, fetchFn)
		require.NoError(t, err)
		assert.Equal(t, "from-source", value)
		assert.Equal(t, int32(1), sourceCalls.Load(), "cache hit must not reach the source")
	})

	t.Run("Source miss surfaces as ErrNotFound", func(t *testing.T) {
		src := &mockSource[string, string]{
			FetchFunc: func(ctx context.Context, key string) (string, error) {
				return "", fmt.Errorf("nothing at %s: %w", key, source.ErrNotFound)
			},
		}

		fetchFn := source.Bind[string, string](src, "missing")
		_, err := fetchFn(ctx)
		require.ErrorIs(t, err, source.ErrNotFound)
	})
}
