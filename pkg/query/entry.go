package query

import (
	"errors"
	"fmt"
	"reflect"
	"time"
)

// ErrTypeMismatch is returned when a cached or in-flight value is read with a
// different expected type than the one it was stored or started with. This is
// a programming error on the caller's side and is surfaced loudly rather than
// silently coerced.
var ErrTypeMismatch = errors.New("cached value type mismatch")

// cacheEntry is the stored state for one key. Values of different types share
// one store, so data is held type-erased alongside a type tag; every typed
// read checks the tag before asserting.
type cacheEntry struct {
	data      any
	dataType  string
	err       error
	updatedAt time.Time
}

// hasData reports whether a completed fetch has left a value in the entry.
func (e *cacheEntry) hasData() bool {
	return e.data != nil
}

// typeTag returns the stable name used to tag stored and in-flight values of
// type V. Using reflect rather than a value's dynamic type keeps interface
// type parameters distinguishable from the concrete values they hold.
func typeTag[V any]() string {
	return reflect.TypeOf((*V)(nil)).Elem().String()
}

func typeMismatchError(key Key, stored, expected string) error {
	return fmt.Errorf("value for %s is stored as %s, caller expects %s: %w",
		key, stored, expected, ErrTypeMismatch)
}
