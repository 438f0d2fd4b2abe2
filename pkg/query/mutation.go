package query

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// MutateFunc is a write operation against the source of truth, taking a
// parameter and returning whatever the source answered.
type MutateFunc[P, R any] func(ctx context.Context, param P) (R, error)

// Mutation wraps a write operation and, on success, hands the Client to an
// optional callback so it can invalidate the keys the write affected. The
// cache asks nothing more of mutations: invalidation subscribers take it from
// there.
type Mutation[P, R any] struct {
	client    *Client
	perform   MutateFunc[P, R]
	onSuccess func(ctx context.Context, client *Client, result R)
	logger    zerolog.Logger
}

// NewMutation creates a mutation helper. onSuccess may be nil when the write
// invalidates nothing.
func NewMutation[P, R any](
	client *Client,
	perform MutateFunc[P, R],
	onSuccess func(ctx context.Context, client *Client, result R),
	logger zerolog.Logger,
) (*Mutation[P, R], error) {
	if client == nil || perform == nil {
		return nil, fmt.Errorf("client and perform cannot be nil")
	}
	return &Mutation[P, R]{
		client:    client,
		perform:   perform,
		onSuccess: onSuccess,
		logger:    logger.With().Str("component", "Mutation").Logger(),
	}, nil
}

// Execute runs the write. The callback runs only on success; an error is
// returned verbatim and leaves the cache untouched.
func (m *Mutation[P, R]) Execute(ctx context.Context, param P) (R, error) {
	result, err := m.perform(ctx, param)
	if err != nil {
		m.logger.Debug().Err(err).Msg("Mutation failed.")
		var zero R
		return zero, err
	}
	if m.onSuccess != nil {
		m.onSuccess(ctx, m.client, result)
	}
	return result, nil
}
