package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/banking-saga-core/internal/journal"
)

// Context is handed to an entity for the duration of one message. It exposes
// persistence, messaging and timing; everything an entity does with the
// outside world goes through it.
type Context struct {
	router *Router
	mb     *mailbox
	failed bool
}

// EntityID returns the id the entity is addressed by.
func (c *Context) EntityID() string { return c.mb.id }

// Self returns a Ref addressing this entity.
func (c *Context) Self() Ref {
	return entityRef{router: c.router, kind: c.mb.kind, id: c.mb.id}
}

// Logger returns a logger annotated with the entity identity.
func (c *Context) Logger() *slog.Logger {
	return c.router.logger.With("kind", c.mb.kind, "entity_id", c.mb.id)
}

// Now reads the runtime clock.
func (c *Context) Now() time.Time { return c.router.clock.Now() }

// Persist durably appends the event to the entity's journal, then applies it
// to in-memory state. On append failure the instance is marked failed: no
// state change is exposed and the runtime stops it after the current message.
func (c *Context) Persist(event journal.Event) error {
	offset, err := c.router.store.Append(context.Background(), c.mb.key, event)
	if err != nil {
		c.failed = true
		c.Logger().Error("failed to append event, stopping entity instance",
			"event_type", event.EventType(),
			"error", err,
		)
		return err
	}

	c.mb.lastOffset = offset
	c.mb.entity.Apply(event)
	c.mb.sinceSnapshot++
	c.router.maybeSnapshot(c.mb)
	return nil
}

// Failed reports whether a persist failed during this message. Entities use
// it to abort multi-step handling; the runtime stops the instance afterwards.
func (c *Context) Failed() bool { return c.failed }

// Send delivers a message to another entity.
func (c *Context) Send(kind, id string, message Message) {
	c.router.Send(kind, id, message)
}

// ScheduleTicks starts periodic Tick delivery to this entity.
func (c *Context) ScheduleTicks(interval time.Duration) {
	c.router.ScheduleTicks(c.mb.kind, c.mb.id, interval)
}

// CancelTicks stops this entity's tick schedule.
func (c *Context) CancelTicks() {
	c.router.CancelTicks(c.mb.kind, c.mb.id)
}
