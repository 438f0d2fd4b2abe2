package query

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// inflightRegistry tracks at most one outstanding fetch per key. Late callers
// join the running call and receive the same outcome rather than starting a
// second fetch. The heavy lifting is done by singleflight; the registry adds
// the expected-result-type check on top so that two callers joining the same
// key with different value types fail loudly instead of corrupting each other.
type inflightRegistry struct {
	group singleflight.Group

	mu       sync.Mutex
	expected map[string]string
}

func newInflightRegistry() *inflightRegistry {
	return &inflightRegistry{expected: make(map[string]string)}
}

// do runs fn for key, or joins an already-running call for the same key. All
// callers sharing one call receive the same value and error. A caller whose
// ctx is cancelled stops waiting, but the shared call runs to completion for
// the sake of any other joiner; the registry entry is cleared exactly once
// when it finishes.
func (r *inflightRegistry) do(ctx context.Context, key Key, resultType string, fn func() (any, error)) (any, error) {
	id := key.id()

	r.mu.Lock()
	if running, ok := r.expected[id]; ok && running != resultType {
		r.mu.Unlock()
		return nil, fmt.Errorf("in-flight fetch for %s produces %s, caller expects %s: %w",
			key, running, resultType, ErrTypeMismatch)
	}
	r.expected[id] = resultType
	r.mu.Unlock()

	ch := r.group.DoChan(id, func() (any, error) {
		defer r.clear(id)
		return fn()
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// active reports whether a fetch is currently registered for key.
func (r *inflightRegistry) active(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.expected[key.id()]
	return ok
}

func (r *inflightRegistry) clear(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.expected, id)
}
