package query

import (
	"sync"
	"time"
)

// entryStore is the keyed storage behind a Client. It is the only place cache
// state is mutated, and withEntry is the only mutation path, so all freshness
// decisions and writes for one key happen inside a single critical section.
type entryStore struct {
	mu      sync.Mutex
	entries map[Key]*cacheEntry
}

func newEntryStore() *entryStore {
	return &entryStore{entries: make(map[Key]*cacheEntry)}
}

// entry returns a snapshot copy of the entry for key, or false if no fetch
// has ever populated one. The copy means callers can inspect it without
// holding the store lock.
func (s *entryStore) entry(key Key) (cacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return cacheEntry{}, false
	}
	return *e, true
}

// withEntry atomically hands the entry for key to fn by reference, creating
// an empty entry stamped with now first if none exists. fn receives a flag
// telling it whether the entry was freshly created. fn runs under the store
// lock: it must not block, and in particular must not re-enter the store.
func (s *entryStore) withEntry(key Key, now time.Time, fn func(e *cacheEntry, created bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &cacheEntry{updatedAt: now}
		s.entries[key] = e
	}
	fn(e, !ok)
}

// remove deletes the entry for key entirely. Used by invalidation: absence is
// observably identical to "never fetched".
func (s *entryStore) remove(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// size reports the number of stored entries.
func (s *entryStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
