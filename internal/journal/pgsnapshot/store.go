// Package pgsnapshot provides the PostgreSQL implementation of the optional
// snapshot store. One row per persistence key holds the latest serialized
// entity state and the journal offset it was taken at.
package pgsnapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/banking-saga-core/internal/journal"
	"github.com/banking-saga-core/internal/platform/persistence"
)

// Store implements journal.SnapshotStore for PostgreSQL
type Store struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewStore creates a new PostgreSQL snapshot store.
func NewStore(logger *slog.Logger, db *persistence.PostgresDB) journal.SnapshotStore {
	return &Store{
		querier: db.Pool(),
		logger:  logger,
	}
}

// NewStoreWithQuerier creates a snapshot store over an explicit querier.
// Tests pass a mock; production code uses NewStore.
func NewStoreWithQuerier(logger *slog.Logger, querier persistence.Querier) *Store {
	return &Store{
		querier: querier,
		logger:  logger,
	}
}

// Save upserts the snapshot for its persistence key. A stale snapshot (lower
// offset than the stored one) is ignored: replay past the stored offset is
// always safe, replay before it is not.
func (s *Store) Save(ctx context.Context, snapshot *journal.Snapshot) error {
	query := `
		INSERT INTO entity_snapshots (persistence_key, state, journal_offset, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (persistence_key) DO UPDATE
		SET state = EXCLUDED.state, journal_offset = EXCLUDED.journal_offset, updated_at = NOW()
		WHERE entity_snapshots.journal_offset < EXCLUDED.journal_offset
	`

	_, err := s.querier.Exec(ctx, query, snapshot.Key, snapshot.State, snapshot.Offset)
	if err != nil {
		s.logger.Error("Failed to save snapshot", "key", snapshot.Key, "error", err)
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

// Load returns the stored snapshot for the key, or nil when none exists.
func (s *Store) Load(ctx context.Context, key string) (*journal.Snapshot, error) {
	query := `
		SELECT persistence_key, state, journal_offset
		FROM entity_snapshots
		WHERE persistence_key = $1
	`

	var snapshot journal.Snapshot
	err := s.querier.QueryRow(ctx, query, key).Scan(
		&snapshot.Key,
		&snapshot.State,
		&snapshot.Offset,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		s.logger.Error("Failed to load snapshot", "key", key, "error", err)
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	return &snapshot, nil
}
