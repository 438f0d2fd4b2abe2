package source

import (
	"context"
	"errors"
	"io"

	"github.com/illmade-knight/go-query/pkg/query"
)

// ErrNotFound is returned by a Source when the backing system has no value
// for the requested key.
var ErrNotFound = errors.New("key not found in source")

// Source is a read-only system of record that query fetch functions can be
// built from: Redis, Firestore, or anything else that answers keyed lookups.
type Source[K comparable, V any] interface {
	// Fetch retrieves the value for key from the backing system.
	Fetch(ctx context.Context, key K) (V, error)
	// Closer is included for implementations that manage network connections.
	io.Closer
}

// Bind fixes a source and a key into a query.FetchFunc, ready to hand to the
// cache coordinator.
func Bind[K comparable, V any](src Source[K, V], key K) query.FetchFunc[V] {
	return func(ctx context.Context) (V, error) {
		return src.Fetch(ctx, key)
	}
}
