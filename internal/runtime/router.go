package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/banking-saga-core/internal/journal"
	"github.com/panjf2000/ants/v2"
)

// Config contains entity runtime configuration
type Config struct {
	WorkerPoolSize int   // Maximum number of concurrent mailbox drains
	SnapshotEvery  int64 // Take a snapshot every N persisted events (0 disables)
}

// Router delivers messages to entity mailboxes, activating entities from the
// journal on first delivery. Delivery within the process preserves
// point-to-point FIFO order: enqueueing happens synchronously in Tell/Send.
type Router struct {
	logger    *slog.Logger
	store     journal.Store
	snapshots journal.SnapshotStore
	clock     Clock
	cfg       Config
	pool      *ants.Pool

	mu       sync.Mutex
	kinds    map[string]Factory
	entities map[string]*mailbox
	tickers  map[string]chan struct{}
}

// NewRouter creates a router over the given journal. The snapshot store is
// optional; pass nil to disable the snapshot fast-path.
func NewRouter(logger *slog.Logger, store journal.Store, snapshots journal.SnapshotStore, clock Clock, cfg Config) (*Router, error) {
	if clock == nil {
		clock = WallClock{}
	}
	size := cfg.WorkerPoolSize
	if size <= 0 {
		size = 10
	}

	// Nonblocking keeps a saturated pool from wedging entities that send to
	// each other mid-drain; overflow drains run on plain goroutines.
	pool, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime worker pool: %w", err)
	}

	return &Router{
		logger:    logger,
		store:     store,
		snapshots: snapshots,
		clock:     clock,
		cfg:       cfg,
		pool:      pool,
		kinds:     make(map[string]Factory),
		entities:  make(map[string]*mailbox),
		tickers:   make(map[string]chan struct{}),
	}, nil
}

// RegisterKind binds an entity kind name to its factory. All kinds must be
// registered before the first Send.
func (r *Router) RegisterKind(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind] = factory
}

// Send delivers a message to the mailbox of the identified entity, creating
// the mailbox if needed.
func (r *Router) Send(kind, id string, message Message) {
	mb := r.mailboxFor(kind, id)

	mb.mu.Lock()
	mb.queue = append(mb.queue, message)
	start := !mb.running
	if start {
		mb.running = true
	}
	mb.mu.Unlock()

	if start {
		r.dispatch(mb)
	}
}

// EntityRef returns a Ref addressing the identified entity.
func (r *Router) EntityRef(kind, id string) Ref {
	return entityRef{router: r, kind: kind, id: id}
}

// Ask sends a message built with a one-shot reply ref and waits for the reply
// or context expiry.
func (r *Router) Ask(ctx context.Context, kind, id string, build func(replyTo Ref) Message) (Message, error) {
	ch := make(chan Message, 1)
	var once sync.Once
	reply := RefFunc(func(m Message) {
		once.Do(func() { ch <- m })
	})

	r.Send(kind, id, build(reply))

	select {
	case m := <-ch:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ScheduleTicks starts a periodic Tick delivery to the identified entity.
// Scheduling is idempotent while a schedule is active.
func (r *Router) ScheduleTicks(kind, id string, interval time.Duration) {
	key := entityKey(kind, id)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tickers[key]; exists {
		return
	}
	stop := make(chan struct{})
	r.tickers[key] = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.Send(kind, id, Tick{Now: r.clock.Now()})
			}
		}
	}()
}

// CancelTicks stops the tick schedule for the identified entity.
func (r *Router) CancelTicks(kind, id string) {
	key := entityKey(kind, id)

	r.mu.Lock()
	defer r.mu.Unlock()
	if stop, exists := r.tickers[key]; exists {
		close(stop)
		delete(r.tickers, key)
	}
}

// Passivate drops the in-memory instance of an entity. The next delivery
// reactivates it from the journal. Tests use this to simulate a crash.
func (r *Router) Passivate(kind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entities, entityKey(kind, id))
}

// Shutdown stops tick schedules and releases the worker pool.
func (r *Router) Shutdown() {
	r.mu.Lock()
	for key, stop := range r.tickers {
		close(stop)
		delete(r.tickers, key)
	}
	r.mu.Unlock()

	r.pool.Release()
}

func entityKey(kind, id string) string {
	return kind + "/" + id
}

func (r *Router) mailboxFor(kind, id string) *mailbox {
	key := entityKey(kind, id)

	r.mu.Lock()
	defer r.mu.Unlock()

	if mb, exists := r.entities[key]; exists {
		return mb
	}

	factory, registered := r.kinds[kind]
	if !registered {
		panic(fmt.Sprintf("unknown entity kind %q", kind))
	}

	mb := &mailbox{
		kind:   kind,
		id:     id,
		key:    kind + "-" + id,
		entity: factory(id),
	}
	r.entities[key] = mb
	return mb
}

func (r *Router) dispatch(mb *mailbox) {
	if err := r.pool.Submit(func() { r.drain(mb) }); err != nil {
		// Pool saturated; the drain still has to run to preserve liveness.
		go r.drain(mb)
	}
}

func (r *Router) drain(mb *mailbox) {
	for {
		mb.mu.Lock()
		if len(mb.queue) == 0 {
			mb.running = false
			mb.mu.Unlock()
			return
		}
		message := mb.queue[0]
		mb.queue = mb.queue[1:]
		mb.mu.Unlock()

		if !r.process(mb, message) {
			r.stopEntity(mb)
			return
		}
	}
}

// process handles a single message, recovering the entity first if needed.
// It returns false when the instance must stop.
func (r *Router) process(mb *mailbox, message Message) bool {
	if !mb.recovered {
		if err := r.recoverEntity(mb); err != nil {
			r.logger.Error("failed to recover entity, dropping instance",
				"kind", mb.kind,
				"entity_id", mb.id,
				"error", err,
			)
			return false
		}
	}

	c := &Context{router: r, mb: mb}
	mb.entity.Receive(c, message)
	return !c.failed
}

// recoverEntity rebuilds in-memory state from the snapshot store (when
// available) and the journal.
func (r *Router) recoverEntity(mb *mailbox) error {
	ctx := context.Background()
	fromOffset := int64(1)

	if r.snapshots != nil {
		if snapshotter, ok := mb.entity.(Snapshotter); ok {
			snap, err := r.snapshots.Load(ctx, mb.key)
			if err != nil {
				r.logger.Warn("failed to load snapshot, replaying full journal",
					"kind", mb.kind, "entity_id", mb.id, "error", err)
			} else if snap != nil {
				if err := snapshotter.RestoreSnapshot(snap.State); err != nil {
					return fmt.Errorf("failed to restore snapshot for %s: %w", mb.key, err)
				}
				mb.lastOffset = snap.Offset
				fromOffset = snap.Offset + 1
			}
		}
	}

	records, err := r.store.Replay(ctx, mb.key, fromOffset)
	if err != nil {
		return fmt.Errorf("failed to replay journal for %s: %w", mb.key, err)
	}
	for _, record := range records {
		mb.entity.Apply(record.Event)
		mb.lastOffset = record.Offset
	}
	mb.recovered = true

	if awakener, ok := mb.entity.(Awakener); ok {
		c := &Context{router: r, mb: mb}
		awakener.Awake(c)
		if c.failed {
			return fmt.Errorf("entity %s failed during awake", mb.key)
		}
	}
	return nil
}

// stopEntity removes the instance so the next delivery reactivates it via
// replay. Messages still queued on the stopped instance are discarded; the
// at-least-once retransmission upstream redelivers them.
func (r *Router) stopEntity(mb *mailbox) {
	mb.mu.Lock()
	dropped := len(mb.queue)
	mb.queue = nil
	mb.mu.Unlock()

	if dropped > 0 {
		r.logger.Warn("discarding queued messages for stopped entity",
			"kind", mb.kind, "entity_id", mb.id, "count", dropped)
	}

	r.mu.Lock()
	delete(r.entities, entityKey(mb.kind, mb.id))
	r.mu.Unlock()
}

func (r *Router) maybeSnapshot(mb *mailbox) {
	if r.snapshots == nil || r.cfg.SnapshotEvery <= 0 || mb.sinceSnapshot < r.cfg.SnapshotEvery {
		return
	}
	snapshotter, ok := mb.entity.(Snapshotter)
	if !ok {
		return
	}

	state, err := snapshotter.SnapshotState()
	if err != nil {
		r.logger.Warn("failed to serialize snapshot state",
			"kind", mb.kind, "entity_id", mb.id, "error", err)
		return
	}
	snap := &journal.Snapshot{Key: mb.key, State: state, Offset: mb.lastOffset}
	if err := r.snapshots.Save(context.Background(), snap); err != nil {
		r.logger.Warn("failed to save snapshot",
			"kind", mb.kind, "entity_id", mb.id, "error", err)
		return
	}
	mb.sinceSnapshot = 0
}

type entityRef struct {
	router *Router
	kind   string
	id     string
}

func (e entityRef) Tell(message Message) {
	e.router.Send(e.kind, e.id, message)
}

type mailbox struct {
	kind   string
	id     string
	key    string
	entity Entity

	// recovery bookkeeping, touched only by the draining worker
	recovered     bool
	lastOffset    int64
	sinceSnapshot int64

	mu      sync.Mutex
	queue   []Message
	running bool
}
