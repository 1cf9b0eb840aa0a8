// Package mongostore provides the MongoDB implementation of the event
// journal. Events are stored one document per append, keyed by persistence
// key and a per-key monotonic sequence number; replay streams them back in
// sequence order.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/banking-saga-core/internal/journal"
)

const (
	// EventsCollectionName is the name of the journal collection in MongoDB
	EventsCollectionName = "journal_events"
)

type eventDocument struct {
	Key       string    `bson:"key"`
	Seq       int64     `bson:"seq"`
	EventType string    `bson:"event_type"`
	Payload   []byte    `bson:"payload"`
	CreatedAt time.Time `bson:"created_at"`
}

// Store implements journal.Store over MongoDB. Each persistence key has a
// single writer (its entity), so the next sequence number can be cached
// in-process once loaded from the collection.
type Store struct {
	db       *mongo.Database
	registry *journal.Registry
	logger   *slog.Logger

	mu      sync.Mutex
	nextSeq map[string]int64
}

// NewStore creates a MongoDB journal store.
func NewStore(logger *slog.Logger, db *mongo.Database, registry *journal.Registry) *Store {
	return &Store{
		db:       db,
		registry: registry,
		logger:   logger,
		nextSeq:  make(map[string]int64),
	}
}

// EnsureIndexes creates the unique (key, seq) index the journal relies on for
// per-key append ordering. Call once at startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	collection := s.db.Collection(EventsCollectionName)

	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}, {Key: "seq", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create journal index: %w", err)
	}
	return nil
}

// Append durably stores the event under the next sequence number for the key.
// The unique index turns a lost sequence race (e.g. two instances of the same
// entity after a partition) into a duplicate-key error instead of a silent
// overwrite.
func (s *Store) Append(ctx context.Context, key string, event journal.Event) (int64, error) {
	eventType, payload, err := s.registry.Marshal(event)
	if err != nil {
		return 0, err
	}

	seq, err := s.claimSeq(ctx, key)
	if err != nil {
		return 0, err
	}

	doc := eventDocument{
		Key:       key,
		Seq:       seq,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	collection := s.db.Collection(EventsCollectionName)
	if _, err := collection.InsertOne(ctx, doc); err != nil {
		s.releaseSeq(key, seq)
		s.logger.Error("Failed to append journal event",
			"key", key,
			"seq", seq,
			"event_type", eventType,
			"error", err)
		return 0, fmt.Errorf("failed to append journal event: %w", err)
	}

	return seq, nil
}

// Replay streams all events for the key at or after fromOffset, in sequence
// order.
func (s *Store) Replay(ctx context.Context, key string, fromOffset int64) ([]journal.Record, error) {
	collection := s.db.Collection(EventsCollectionName)

	filter := bson.M{
		"key": key,
		"seq": bson.M{"$gte": fromOffset},
	}
	opts := options.Find().SetSort(bson.M{"seq": 1})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		s.logger.Error("Failed to replay journal",
			"key", key,
			"from_offset", fromOffset,
			"error", err)
		return nil, fmt.Errorf("failed to replay journal: %w", err)
	}
	defer cursor.Close(ctx)

	var records []journal.Record
	for cursor.Next(ctx) {
		var doc eventDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode journal document: %w", err)
		}
		event, err := s.registry.Unmarshal(doc.EventType, doc.Payload)
		if err != nil {
			return nil, err
		}
		records = append(records, journal.Record{
			Key:    key,
			Offset: doc.Seq,
			Event:  event,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal cursor: %w", err)
	}

	return records, nil
}

// claimSeq reserves the next sequence number for the key, loading the current
// head from the collection on first use.
func (s *Store) claimSeq(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if next, loaded := s.nextSeq[key]; loaded {
		s.nextSeq[key] = next + 1
		return next, nil
	}

	head, err := s.loadHeadSeq(ctx, key)
	if err != nil {
		return 0, err
	}
	next := head + 1
	s.nextSeq[key] = next + 1
	return next, nil
}

func (s *Store) releaseSeq(key string, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextSeq[key] == seq+1 {
		s.nextSeq[key] = seq
	}
}

func (s *Store) loadHeadSeq(ctx context.Context, key string) (int64, error) {
	collection := s.db.Collection(EventsCollectionName)

	opts := options.FindOne().SetSort(bson.M{"seq": -1})
	var doc eventDocument
	err := collection.FindOne(ctx, bson.M{"key": key}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read journal head for %s: %w", key, err)
	}
	return doc.Seq, nil
}
