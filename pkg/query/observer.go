package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-query/pkg/debounce"
)

// Result is the box of data a binding layer renders from: the latest value if
// one is cached, the latest error if the last fetch failed, and a loading
// flag for the gap before the first outcome.
type Result[V any] struct {
	Data    *V
	Err     error
	Loading bool
}

// ObserverConfig holds the per-observer settings.
type ObserverConfig struct {
	// Options configures freshness and mount behavior for the observed key.
	Options Options

	// DebounceWindow is how long refetch triggers (invalidation signals,
	// appear events) are held so that near-simultaneous triggers from
	// multiple observers of the same key collapse into one fetch.
	DebounceWindow time.Duration
}

const defaultDebounceWindow = 10 * time.Millisecond

// Observer ties one key to a fetch function and an onChange callback,
// implementing the stale-while-revalidate orchestration on top of the
// Client's primitives: a non-forced fetch first, and if the returned value
// was stale, a background forced refresh whose failure is swallowed: a stale
// value beats a hard error when revalidation fails transiently.
//
// While running it holds two subscriptions: cache-sync signals re-read the
// store and push the new state to onChange; invalidation signals re-run the
// whole fetch routine through the shared debounce executor.
type Observer[V any] struct {
	cfg      ObserverConfig
	client   *Client
	key      Key
	fetchFn  FetchFunc[V]
	executor *debounce.Executor[Key]
	logger   zerolog.Logger

	emitMu   sync.Mutex
	onChange func(Result[V])

	syncSub  *Subscription
	invalSub *Subscription
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewObserver creates an observer for key. cfg may be nil for defaults.
// executor is the per-key debounce coalescer, shared across all observers
// that should batch together; nil gives the observer a private one (no
// cross-observer batching). onChange receives every state change; calls are
// serialized, so the callback is the single-threaded boundary UI state
// expects.
func NewObserver[V any](
	cfg *ObserverConfig,
	client *Client,
	key Key,
	fetchFn FetchFunc[V],
	onChange func(Result[V]),
	executor *debounce.Executor[Key],
	logger zerolog.Logger,
) (*Observer[V], error) {
	if client == nil || fetchFn == nil || onChange == nil {
		return nil, fmt.Errorf("client, fetchFn and onChange cannot be nil")
	}

	config := ObserverConfig{Options: DefaultOptions(), DebounceWindow: defaultDebounceWindow}
	if cfg != nil {
		config = *cfg
	}
	if config.DebounceWindow <= 0 {
		config.DebounceWindow = defaultDebounceWindow
	}
	if executor == nil {
		executor = debounce.NewExecutor[Key](client.clock, logger)
	}

	return &Observer[V]{
		cfg:      config,
		client:   client,
		key:      key,
		fetchFn:  fetchFn,
		onChange: onChange,
		executor: executor,
		logger:   logger.With().Str("component", "QueryObserver").Stringer("key", key).Logger(),
	}, nil
}

// Start registers both subscriptions, begins their signal loops, and, when
// RefetchOnMount is set, runs the initial fetch routine. Subscriptions are
// registered before the first fetch so its cache-sync publish is not lost.
func (o *Observer[V]) Start(ctx context.Context) error {
	if o.syncSub != nil {
		return fmt.Errorf("observer for %s already started", o.key)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.syncSub = o.client.SubscribeSync(o.key)
	o.invalSub = o.client.SubscribeInvalidation(o.key)

	o.wg.Add(2)
	go o.syncLoop(loopCtx)
	go o.invalidationLoop(loopCtx)

	if cached, ok := Peek[V](o.client, o.key); ok {
		// Optimistic initial render from whatever is already cached.
		o.emit(Result[V]{Data: &cached})
	} else {
		o.emit(Result[V]{Loading: true})
	}

	if o.cfg.Options.RefetchOnMount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.Refetch(loopCtx)
		}()
	}

	o.logger.Debug().Msg("Observer started.")
	return nil
}

// Stop tears down both subscriptions and waits for the signal loops and any
// mount fetch to finish. The deregistration is deterministic: after Stop
// returns, the fabric holds no registration for this observer.
func (o *Observer[V]) Stop() {
	if o.syncSub == nil {
		return
	}
	o.syncSub.Unsubscribe()
	o.invalSub.Unsubscribe()
	o.cancel()
	o.wg.Wait()
	o.logger.Debug().Msg("Observer stopped.")
}

// Refetch runs the fetch routine through the debounce executor. It is the
// hook for view-lifecycle triggers (appear, identity change) as well as the
// invalidation loop; triggers for the same key landing within one debounce
// window execute the routine once.
func (o *Observer[V]) Refetch(ctx context.Context) {
	err := o.executor.Do(ctx, o.key, o.cfg.DebounceWindow, func(runCtx context.Context) error {
		o.runQuery(runCtx)
		return nil
	})
	if err != nil {
		o.logger.Debug().Err(err).Msg("Refetch abandoned before the batched run completed.")
	}
}

// runQuery is the stale-while-revalidate routine: serve whatever Fetch
// returns immediately, then revalidate in the background if it was stale.
func (o *Observer[V]) runQuery(ctx context.Context) {
	fresh, value, err := Fetch(ctx, o.client, o.key, o.cfg.Options, o.fetchFn)
	if err != nil {
		o.emit(Result[V]{Err: err})
		return
	}
	o.emit(Result[V]{Data: &value})

	if fresh {
		return
	}
	go func() {
		if _, _, refreshErr := Refresh(ctx, o.client, o.key, o.cfg.Options, o.fetchFn); refreshErr != nil {
			// Swallowed: the stale value stays; subscribers see the refreshed
			// value only when revalidation succeeds.
			o.logger.Debug().Err(refreshErr).Msg("Background revalidation failed; keeping cached value.")
		}
	}()
}

func (o *Observer[V]) syncLoop(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-o.syncSub.Signal():
			if !ok {
				return
			}
			o.emitFromStore()
		}
	}
}

func (o *Observer[V]) invalidationLoop(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-o.invalSub.Signal():
			if !ok {
				return
			}
			o.Refetch(ctx)
		}
	}
}

// emitFromStore re-reads the entry and pushes it to onChange. Signals carry
// no payload, so this is where a wake turns back into data.
func (o *Observer[V]) emitFromStore() {
	e, ok := o.client.store.entry(o.key)
	if !ok {
		return
	}
	switch {
	case e.hasData() && e.dataType == typeTag[V]():
		value := e.data.(V)
		o.emit(Result[V]{Data: &value})
	case e.err != nil:
		o.emit(Result[V]{Err: e.err})
	}
}

func (o *Observer[V]) emit(r Result[V]) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.onChange(r)
}
