package journal

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Publisher receives every durable append, e.g. a Kafka producer feeding the
// query-side projection.
type Publisher interface {
	PublishAppend(ctx context.Context, key string, offset int64, eventType string, payload json.RawMessage) error
}

// PublishingStore decorates a Store with post-append publication. The append
// is durable first; a publication failure is logged and does not fail the
// append, since the projection can always be rebuilt from the journal.
type PublishingStore struct {
	inner     Store
	registry  *Registry
	publisher Publisher
	logger    *slog.Logger
}

// NewPublishingStore wraps the store so every append is also published.
func NewPublishingStore(inner Store, registry *Registry, publisher Publisher, logger *slog.Logger) *PublishingStore {
	return &PublishingStore{
		inner:     inner,
		registry:  registry,
		publisher: publisher,
		logger:    logger,
	}
}

// Append delegates to the wrapped store and publishes the stored event.
func (s *PublishingStore) Append(ctx context.Context, key string, event Event) (int64, error) {
	offset, err := s.inner.Append(ctx, key, event)
	if err != nil {
		return 0, err
	}

	eventType, payload, err := s.registry.Marshal(event)
	if err != nil {
		s.logger.Error("failed to marshal event for publication", "key", key, "offset", offset, "error", err)
		return offset, nil
	}
	if err := s.publisher.PublishAppend(ctx, key, offset, eventType, payload); err != nil {
		s.logger.Error("failed to publish journal append", "key", key, "offset", offset, "error", err)
	}

	return offset, nil
}

// Replay delegates to the wrapped store.
func (s *PublishingStore) Replay(ctx context.Context, key string, fromOffset int64) ([]Record, error) {
	return s.inner.Replay(ctx, key, fromOffset)
}
