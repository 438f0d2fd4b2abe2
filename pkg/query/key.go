package query

import (
	"fmt"
	"strings"
)

// keySeparator joins the parts of a key internally. It is a non-printing
// character so that a part containing "/" can never collide with a
// multi-part key that merely displays the same way.
const keySeparator = "\x1f"

// Key identifies a cached resource. It is built from an ordered sequence of
// string parts; two keys are equal exactly when their part sequences are
// equal element-wise. Keys are immutable, comparable, and usable directly as
// Go map keys.
//
// The library does not own key identity: any caller may construct a key ad
// hoc, so keeping distinct resources under distinct keys is caller discipline.
type Key struct {
	encoded string
}

// NewKey builds a key from an ordered sequence of parts. Each part is
// stringified with fmt.Sprint; no normalization (case-folding, deduplication)
// is applied.
func NewKey(parts ...any) Key {
	elems := make([]string, len(parts))
	for i, part := range parts {
		elems[i] = fmt.Sprint(part)
	}
	return Key{encoded: strings.Join(elems, keySeparator)}
}

// KeyOf wraps a single string as a one-part key.
func KeyOf(part string) Key {
	return Key{encoded: part}
}

// Parts returns the ordered parts the key was built from.
func (k Key) Parts() []string {
	return strings.Split(k.encoded, keySeparator)
}

// String returns the human-readable form of the key, parts joined by "/".
func (k Key) String() string {
	return strings.ReplaceAll(k.encoded, keySeparator, "/")
}

// Compare orders keys lexicographically by their part sequences, returning
// -1, 0 or +1. A key that is a prefix of another sorts first.
func (k Key) Compare(other Key) int {
	return strings.Compare(k.encoded, other.encoded)
}

// id returns the canonical map/registry identifier for the key.
func (k Key) id() string {
	return k.encoded
}
