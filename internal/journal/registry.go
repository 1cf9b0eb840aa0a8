package journal

import (
	"encoding/json"
	"fmt"
)

// Registry maps event type tags to payload factories so stores can decode
// journal records back into typed events. Registration happens during wiring,
// before any replay, so lookups are not synchronized.
type Registry struct {
	factories map[string]func() Event
}

// NewRegistry creates an empty event registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() Event)}
}

// Register binds an event type tag to a factory producing an empty event of
// that type. Registering the same tag twice panics: it is a wiring bug.
func (r *Registry) Register(eventType string, factory func() Event) {
	if _, exists := r.factories[eventType]; exists {
		panic(fmt.Sprintf("event type %q registered twice", eventType))
	}
	r.factories[eventType] = factory
}

// Marshal serializes an event into its type tag and JSON payload.
func (r *Registry) Marshal(event Event) (string, []byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal event %q: %w", event.EventType(), err)
	}
	return event.EventType(), data, nil
}

// Unmarshal decodes a stored payload back into a typed event.
func (r *Registry) Unmarshal(eventType string, data []byte) (Event, error) {
	factory, ok := r.factories[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	event := factory()
	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event %q: %w", eventType, err)
	}
	return event, nil
}
