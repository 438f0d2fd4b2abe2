package query

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// ClientConfig holds optional construction-time settings for a Client.
type ClientConfig struct {
	// Clock supplies the current time for freshness decisions. Defaults to
	// the real system clock; tests inject a clockwork fake.
	Clock clockwork.Clock
}

// Client is the cache coordinator. It owns the entry store, the in-flight
// registry and both signal buses; no other component mutates cache state.
// One Client instance is shared by reference across all observers in the
// process.
//
// Because Go methods cannot carry type parameters, the typed operations are
// package-level functions taking the Client as an argument: Fetch, Refresh
// and Peek.
type Client struct {
	clock  clockwork.Clock
	logger zerolog.Logger

	store        *entryStore
	inflight     *inflightRegistry
	syncBus      *signalBus
	invalidation *signalBus
}

// NewClient creates a cache coordinator. cfg may be nil for defaults.
func NewClient(cfg *ClientConfig, logger zerolog.Logger) *Client {
	clock := clockwork.NewRealClock()
	if cfg != nil && cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &Client{
		clock:        clock,
		logger:       logger.With().Str("component", "QueryClient").Logger(),
		store:        newEntryStore(),
		inflight:     newInflightRegistry(),
		syncBus:      newSignalBus(),
		invalidation: newSignalBus(),
	}
}

// FetchFunc is the asynchronous operation that produces a value for a key.
// It is opaque to the cache: any error it returns is stored and surfaced
// verbatim.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// Fetch is the read-through path. If cached data exists for key it is
// returned immediately, with fresh reporting whether its age is still inside
// opts.StaleTime. On a miss the fetch function runs (deduplicated, so
// concurrent callers for the same key share one execution) and its outcome
// is written back to the cache, published on the cache-sync bus, and reported
// fresh.
func Fetch[V any](ctx context.Context, c *Client, key Key, opts Options, fn FetchFunc[V]) (fresh bool, value V, err error) {
	return fetch(ctx, c, key, opts, false, fn)
}

// Refresh bypasses the cached value and always runs the fetch routine (still
// deduplicated against concurrent fetches for the same key). It is the
// force-refresh half of stale-while-revalidate: callers use it to revalidate
// in the background after Fetch reported data stale.
func Refresh[V any](ctx context.Context, c *Client, key Key, opts Options, fn FetchFunc[V]) (fresh bool, value V, err error) {
	return fetch(ctx, c, key, opts, true, fn)
}

func fetch[V any](ctx context.Context, c *Client, key Key, opts Options, force bool, fn FetchFunc[V]) (bool, V, error) {
	var zero V
	tag := typeTag[V]()

	if !force {
		var (
			cached  V
			hit     bool
			isFresh bool
			typeErr error
		)
		now := c.clock.Now()
		c.store.withEntry(key, now, func(e *cacheEntry, created bool) {
			if created || !e.hasData() {
				return
			}
			if e.dataType != tag {
				typeErr = typeMismatchError(key, e.dataType, tag)
				return
			}
			hit = true
			cached = e.data.(V)
			isFresh = now.Sub(e.updatedAt) < opts.StaleTime
		})
		if typeErr != nil {
			return false, zero, typeErr
		}
		if hit {
			c.logger.Debug().Stringer("key", key).Bool("fresh", isFresh).Msg("Cache hit.")
			return isFresh, cached, nil
		}
	}

	// Miss or forced refresh: run the fetch through the in-flight registry so
	// concurrent callers for this key share one execution. The fetch itself is
	// detached from this caller's cancellation, since other joiners may still
	// be waiting on it, and runs outside every lock; only the final write-back
	// re-enters the store.
	fetchCtx := context.WithoutCancel(ctx)
	result, err := c.inflight.do(ctx, key, tag, func() (any, error) {
		value, fetchErr := fn(fetchCtx)
		c.storeOutcome(key, tag, value, fetchErr, force)
		return value, fetchErr
	})
	if err != nil {
		// A result obtained from the newest fetch attempt is always reported
		// fresh, error outcomes included.
		return true, zero, err
	}

	value, ok := result.(V)
	if !ok {
		return true, zero, typeMismatchError(key, fmt.Sprintf("%T", result), tag)
	}
	c.logger.Debug().Stringer("key", key).Msg("Fetch completed and cached.")
	return true, value, nil
}

// storeOutcome writes a completed fetch into the store and publishes the
// cache-sync signal. Policy on failure: a forced (background revalidation)
// failure over existing data keeps the stale data and skips the sync
// publish (nothing a reader would re-read has changed), while a
// foreground failure clears data so the error is what readers see.
func (c *Client) storeOutcome(key Key, tag string, value any, fetchErr error, force bool) {
	now := c.clock.Now()
	publish := true
	c.store.withEntry(key, now, func(e *cacheEntry, _ bool) {
		switch {
		case fetchErr == nil:
			e.data = value
			e.dataType = tag
			e.err = nil
		case force && e.hasData():
			e.err = fetchErr
			publish = false
		default:
			e.data = nil
			e.dataType = ""
			e.err = fetchErr
		}
		e.updatedAt = now
	})

	if publish {
		// Never the invalidation bus: a completing fetch publishing there
		// would trigger its own refetch and loop.
		c.syncBus.publish(key)
	}
	if fetchErr != nil {
		c.logger.Debug().Err(fetchErr).Stringer("key", key).Bool("forced", force).Msg("Fetch failed; error cached.")
	}
}

// Peek returns whatever is currently cached for key without triggering a
// fetch, for optimistic initial rendering. A value cached under a different
// type is reported as absent, with an error logged; Fetch is the loud path
// for type mismatches.
func Peek[V any](c *Client, key Key) (V, bool) {
	var zero V
	e, ok := c.store.entry(key)
	if !ok || !e.hasData() {
		return zero, false
	}
	if e.dataType != typeTag[V]() {
		c.logger.Error().Stringer("key", key).Str("stored", e.dataType).Str("expected", typeTag[V]()).
			Msg("Peek with mismatched value type.")
		return zero, false
	}
	return e.data.(V), true
}

// Invalidate removes the entry for key entirely and wakes every invalidation
// subscriber. It does not refetch: re-running the fetch routine is the
// responsibility of whatever is subscribed to the invalidation bus.
func (c *Client) Invalidate(key Key) {
	c.store.remove(key)
	c.invalidation.publish(key)
	c.logger.Debug().Stringer("key", key).Msg("Invalidated cache entry.")
}

// SubscribeSync registers for cache-sync signals on key: a wake means a fetch
// completed and the store should be re-read.
func (c *Client) SubscribeSync(key Key) *Subscription {
	return c.syncBus.subscribe(key)
}

// SubscribeInvalidation registers for invalidation signals on key: a wake
// means the entry was explicitly invalidated and the fetch routine should be
// re-run for new data.
func (c *Client) SubscribeInvalidation(key Key) *Subscription {
	return c.invalidation.subscribe(key)
}
