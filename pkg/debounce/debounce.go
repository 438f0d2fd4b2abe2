package debounce

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Executor coalesces near-simultaneous calls per key. The first caller for an
// idle key becomes the leader and schedules the work to run once after the
// debounce window; every caller arriving while that run is pending or
// executing awaits the same outcome instead of running the work again. When
// several observers mount within the same tick for one key, only one fetch
// routine actually executes.
type Executor[K comparable] struct {
	clock  clockwork.Clock
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[K]*run
}

type run struct {
	done chan struct{}
	err  error
}

// NewExecutor creates a per-key debounce executor. clock may be nil for the
// real system clock; tests inject a clockwork fake to drive the window
// deterministically.
func NewExecutor[K comparable](clock clockwork.Clock, logger zerolog.Logger) *Executor[K] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Executor[K]{
		clock:   clock,
		logger:  logger.With().Str("component", "DebounceExecutor").Logger(),
		pending: make(map[K]*run),
	}
}

// Do runs perform for key at most once per debounce cycle. The scheduled run
// is detached from the leader's context, so a leader that stops waiting does
// not strand the followers awaiting the same run; each caller stops waiting
// when its own ctx is done. Once the run completes its slot is cleared and
// the next call starts a fresh leader/window cycle.
func (e *Executor[K]) Do(ctx context.Context, key K, window time.Duration, perform func(context.Context) error) error {
	e.mu.Lock()
	if r, ok := e.pending[key]; ok {
		e.mu.Unlock()
		return e.await(ctx, r)
	}
	r := &run{done: make(chan struct{})}
	e.pending[key] = r
	e.mu.Unlock()

	runCtx := context.WithoutCancel(ctx)
	go func() {
		if window > 0 {
			<-e.clock.After(window)
		}
		r.err = perform(runCtx)
		if r.err != nil {
			e.logger.Debug().Err(r.err).Msg("Batched run completed with error.")
		}

		e.mu.Lock()
		delete(e.pending, key)
		e.mu.Unlock()
		close(r.done)
	}()

	return e.await(ctx, r)
}

func (e *Executor[K]) await(ctx context.Context, r *run) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PendingKeys reports how many keys currently have a scheduled or executing
// run.
func (e *Executor[K]) PendingKeys() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}
