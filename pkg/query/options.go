package query

import "time"

// Options configures how a single query's cached data is treated.
type Options struct {
	// StaleTime is the window after a completed fetch during which cached
	// data is considered fresh. Zero means data is never fresh: every read
	// after the first returns the cached value instantly but reports it
	// stale, prompting a background revalidation.
	StaleTime time.Duration

	// RefetchOnMount controls whether an Observer runs the fetch routine
	// when it starts (or when its view appears / changes identity).
	RefetchOnMount bool

	// GCTime is accepted for configuration compatibility but currently has
	// no effect: entries are never garbage collected automatically. This is
	// a known gap in the design, not an implemented behavior.
	GCTime time.Duration
}

// DefaultOptions returns the default query configuration: always stale
// (StaleTime zero) and refetch on mount.
func DefaultOptions() Options {
	return Options{
		StaleTime:      0,
		RefetchOnMount: true,
	}
}
