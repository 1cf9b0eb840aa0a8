package journal

import (
	"context"
	"sync"
)

// MemoryStore is an in-process journal used by tests and single-node
// development runs. Records round-trip through the codec on replay so that
// replayed state is built from serialized events, exactly as it would be
// against a durable backend.
type MemoryStore struct {
	registry *Registry

	mu   sync.Mutex
	logs map[string][]memoryRecord
}

type memoryRecord struct {
	offset    int64
	eventType string
	data      []byte
}

// NewMemoryStore creates an empty in-memory journal using the given registry.
func NewMemoryStore(registry *Registry) *MemoryStore {
	return &MemoryStore{
		registry: registry,
		logs:     make(map[string][]memoryRecord),
	}
}

// Append serializes the event and appends it to the per-key log.
func (s *MemoryStore) Append(_ context.Context, key string, event Event) (int64, error) {
	eventType, data, err := s.registry.Marshal(event)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	offset := int64(len(s.logs[key])) + 1
	s.logs[key] = append(s.logs[key], memoryRecord{
		offset:    offset,
		eventType: eventType,
		data:      data,
	})
	return offset, nil
}

// Replay decodes and returns all records for the key at or after fromOffset.
func (s *MemoryStore) Replay(_ context.Context, key string, fromOffset int64) ([]Record, error) {
	s.mu.Lock()
	stored := make([]memoryRecord, len(s.logs[key]))
	copy(stored, s.logs[key])
	s.mu.Unlock()

	var records []Record
	for _, rec := range stored {
		if rec.offset < fromOffset {
			continue
		}
		event, err := s.registry.Unmarshal(rec.eventType, rec.data)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{
			Key:    key,
			Offset: rec.offset,
			Event:  event,
		})
	}
	return records, nil
}

// Len returns the number of events stored under the key.
func (s *MemoryStore) Len(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs[key])
}
