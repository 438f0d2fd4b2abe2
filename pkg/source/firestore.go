package source

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds the settings for a FirestoreSource.
type FirestoreConfig struct {
	ProjectID      string
	CollectionName string
}

// FirestoreSource reads documents from one Firestore collection by
// stringified key, mapping each document into a typed value. Like every
// Source it is read-only; the query cache in front of it decides when to come
// back for more.
type FirestoreSource[K comparable, V any] struct {
	client         *firestore.Client
	collectionName string
	logger         zerolog.Logger
}

// NewFirestoreSource creates a FirestoreSource over an existing client. The
// client's lifecycle belongs to the caller; Close here is a no-op.
func NewFirestoreSource[K comparable, V any](cfg *FirestoreConfig, client *firestore.Client, logger zerolog.Logger) (*FirestoreSource[K, V], error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}
	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.CollectionName).Msg("FirestoreSource initialized.")

	return &FirestoreSource[K, V]{
		client:         client,
		collectionName: cfg.CollectionName,
		logger:         logger.With().Str("component", "FirestoreSource").Logger(),
	}, nil
}

// Fetch retrieves a single document by its key.
func (s *FirestoreSource[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var zero V
	stringKey := fmt.Sprintf("%v", key)

	snap, err := s.client.Collection(s.collectionName).Doc(stringKey).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			s.logger.Warn().Str("key", stringKey).Msg("Document not found in Firestore.")
			return zero, fmt.Errorf("no document for %s: %w", stringKey, ErrNotFound)
		}
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to get document from Firestore.")
		return zero, fmt.Errorf("firestore get for %s: %w", stringKey, err)
	}

	var value V
	if err := snap.DataTo(&value); err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to map Firestore document data.")
		return zero, fmt.Errorf("firestore DataTo for %s: %w", stringKey, err)
	}

	s.logger.Debug().Str("key", stringKey).Msg("Fetched document from Firestore.")
	return value, nil
}

// Close satisfies Source; the Firestore client is owned by the caller.
func (s *FirestoreSource[K, V]) Close() error {
	return nil
}
