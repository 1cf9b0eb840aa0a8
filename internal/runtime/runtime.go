// Package runtime implements the addressable entity layer: commands are
// routed by entity id, each entity processes one message at a time, and an
// entity is recovered from its journal on first delivery. Appending to the
// journal is the only suspension point; a failed append stops the instance so
// the next delivery reactivates it from replay.
package runtime

import (
	"time"

	"github.com/banking-saga-core/internal/journal"
)

// Message is any command or acknowledgement delivered to an entity mailbox.
type Message any

// Ref is an address a message can be sent to. Entity refs route through the
// router; reply refs used by external callers wrap a channel or function.
type Ref interface {
	Tell(message Message)
}

// RefFunc adapts a function into a Ref.
type RefFunc func(message Message)

// Tell invokes the function with the message.
func (f RefFunc) Tell(message Message) { f(message) }

// Entity is a unit of state addressed by id. Apply folds a persisted event
// into in-memory state and is used both on the live path and during replay;
// it must be deterministic and must not produce side effects.
type Entity interface {
	Apply(event journal.Event)
	Receive(ctx *Context, message Message)
}

// Snapshotter is implemented by entities that support the optional snapshot
// fast-path on activation.
type Snapshotter interface {
	SnapshotState() ([]byte, error)
	RestoreSnapshot(state []byte) error
}

// Awakener is implemented by entities that need to resume in-flight work
// after activation, e.g. re-sending commands that were outstanding when the
// previous instance stopped. Awake runs after recovery, before the first
// message is processed.
type Awakener interface {
	Awake(ctx *Context)
}

// Factory constructs an empty entity for the given id prior to recovery.
type Factory func(id string) Entity

// Tick is the timeout signal delivered to entities with a tick schedule.
type Tick struct {
	Now time.Time
}
