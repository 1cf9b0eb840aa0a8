package account

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking-saga-core/internal/domain/money"
	"github.com/banking-saga-core/internal/domain/shared"
	"github.com/banking-saga-core/internal/journal"
	"github.com/banking-saga-core/internal/runtime"
)

type harness struct {
	router *runtime.Router
	store  *journal.MemoryStore
}

func newHarness(t *testing.T, stashLimit int) *harness {
	t.Helper()

	registry := journal.NewRegistry()
	RegisterEvents(registry)
	store := journal.NewMemoryStore(registry)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router, err := runtime.NewRouter(logger, store, nil, runtime.NewManualClock(time.Unix(1700000000, 0)), runtime.Config{
		WorkerPoolSize: 4,
	})
	require.NoError(t, err)
	t.Cleanup(router.Shutdown)

	router.RegisterKind(shared.AccountKind, NewFactory(stashLimit))

	return &harness{router: router, store: store}
}

func (h *harness) getState(t *testing.T, accountNumber string) StateSnapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := h.router.Ask(ctx, shared.AccountKind, accountNumber, func(replyTo runtime.Ref) runtime.Message {
		return GetBankAccountState{ReplyTo: replyTo}
	})
	require.NoError(t, err)

	snapshot, ok := reply.(StateSnapshot)
	require.True(t, ok)
	return snapshot
}

func (h *harness) create(t *testing.T, customerNumber, accountNumber string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := h.router.Ask(ctx, shared.AccountKind, accountNumber, func(replyTo runtime.Ref) runtime.Message {
		return CreateBankAccount{CustomerNumber: customerNumber, AccountNumber: accountNumber, ReplyTo: replyTo}
	})
	require.NoError(t, err)
	require.IsType(t, CreateAck{}, reply)
}

func (h *harness) events(t *testing.T, accountNumber string) []journal.Record {
	t.Helper()
	records, err := h.store.Replay(context.Background(), shared.AccountKind+"-"+accountNumber, 1)
	require.NoError(t, err)
	return records
}

// ackRecorder collects participant acknowledgements the way a coordinator
// would receive them.
type ackRecorder struct {
	mu   sync.Mutex
	acks []runtime.Message
}

func (r *ackRecorder) Tell(message runtime.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks = append(r.acks, message)
}

func (r *ackRecorder) list() []runtime.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]runtime.Message(nil), r.acks...)
}

func deposit(accountNumber, amount string) shared.Operation {
	return shared.Operation{
		Type:          shared.OperationTypeDeposit,
		AccountNumber: accountNumber,
		Amount:        money.MustParse(amount),
	}
}

func withdrawal(accountNumber, amount string) shared.Operation {
	return shared.Operation{
		Type:          shared.OperationTypeWithdrawal,
		AccountNumber: accountNumber,
		Amount:        money.MustParse(amount),
	}
}

func TestEntity_CreateAndQuery(t *testing.T) {
	h := newHarness(t, 0)

	h.create(t, "cust", "A1")

	state := h.getState(t, "A1")
	assert.Equal(t, StatusActive, state.Status)
	assert.True(t, state.Balance.IsZero())
	assert.True(t, state.PendingBalance.IsZero())
	assert.Equal(t, "cust", state.CustomerNumber)

	records := h.events(t, "A1")
	require.Len(t, records, 1)
	created, ok := records[0].Event.(*BankAccountCreated)
	require.True(t, ok)
	assert.Equal(t, "cust", created.CustomerNumber)
	assert.Equal(t, "A1", created.AccountNumber)
}

func TestEntity_CreateIsIdempotent(t *testing.T) {
	h := newHarness(t, 0)
	h.create(t, "cust", "A1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := h.router.Ask(ctx, shared.AccountKind, "A1", func(replyTo runtime.Ref) runtime.Message {
		return CreateBankAccount{CustomerNumber: "cust", AccountNumber: "A1", ReplyTo: replyTo}
	})
	require.NoError(t, err)

	ack := reply.(CreateAck)
	assert.True(t, ack.AlreadyExists)
	assert.Len(t, h.events(t, "A1"), 1)
}

func TestEntity_DepositStagesAndHolds(t *testing.T) {
	h := newHarness(t, 0)
	h.create(t, "cust", "A1")

	coordinator := &ackRecorder{}
	h.router.Send(shared.AccountKind, "A1", shared.StartTransaction{
		TxID:      "t1",
		Operation: deposit("A1", "10"),
		ReplyTo:   coordinator,
	})

	state := h.getState(t, "A1")
	assert.Equal(t, StatusInTransaction, state.Status)
	assert.True(t, state.Balance.IsZero())
	assert.True(t, state.PendingBalance.Equal(money.MustParse("10")))
	assert.Equal(t, "t1", state.CurrentTransactionID)

	acks := coordinator.list()
	require.Len(t, acks, 1)
	assert.Equal(t, shared.Ready{AccountNumber: "A1", TxID: "t1"}, acks[0])

	records := h.events(t, "A1")
	require.Len(t, records, 2)
	started, ok := records[1].Event.(*TransactionStarted)
	require.True(t, ok)
	assert.Equal(t, "t1", started.TxID)
	assert.Equal(t, shared.OperationTypeDeposit, started.Inner.Type)
	assert.True(t, started.Inner.Amount.Equal(money.MustParse("10")))
}

func TestEntity_SecondTransactionIsStashed(t *testing.T) {
	h := newHarness(t, 0)
	h.create(t, "cust", "A1")

	coordinator := &ackRecorder{}
	h.router.Send(shared.AccountKind, "A1", shared.StartTransaction{
		TxID: "t1", Operation: deposit("A1", "10"), ReplyTo: coordinator,
	})
	h.router.Send(shared.AccountKind, "A1", shared.StartTransaction{
		TxID: "t2", Operation: withdrawal("A1", "5"), ReplyTo: coordinator,
	})

	state := h.getState(t, "A1")
	assert.Equal(t, StatusInTransaction, state.Status)
	assert.Equal(t, "t1", state.CurrentTransactionID)
	assert.Equal(t, 1, state.StashDepth)

	// No ack for t2 and no new event until t1 finishes.
	assert.Len(t, coordinator.list(), 1)
	assert.Len(t, h.events(t, "A1"), 2)
}

func TestEntity_CommitDrainsStash(t *testing.T) {
	h := newHarness(t, 0)
	h.create(t, "cust", "A1")

	coordinator := &ackRecorder{}
	h.router.Send(shared.AccountKind, "A1", shared.StartTransaction{
		TxID: "t1", Operation: deposit("A1", "10"), ReplyTo: coordinator,
	})
	h.router.Send(shared.AccountKind, "A1", shared.StartTransaction{
		TxID: "t2", Operation: withdrawal("A1", "5"), ReplyTo: coordinator,
	})
	h.router.Send(shared.AccountKind, "A1", shared.CommitTransaction{
		TxID: "t1", AccountNumber: "A1", ReplyTo: coordinator,
	})

	state := h.getState(t, "A1")
	assert.Equal(t, StatusInTransaction, state.Status)
	assert.Equal(t, "t2", state.CurrentTransactionID)
	assert.True(t, state.Balance.Equal(money.MustParse("10")))
	assert.True(t, state.PendingBalance.Equal(money.FromInt(-5)))

	acks := coordinator.list()
	require.Len(t, acks, 3)
	assert.Equal(t, shared.Cleared{AccountNumber: "A1", TxID: "t1"}, acks[1])
	assert.Equal(t, shared.Ready{AccountNumber: "A1", TxID: "t2"}, acks[2])

	records := h.events(t, "A1")
	require.Len(t, records, 4)
	assert.IsType(t, &TransactionCleared{}, records[2].Event)
	assert.IsType(t, &TransactionStarted{}, records[3].Event)

	// Committing the drained transaction settles the withdrawal.
	h.router.Send(shared.AccountKind, "A1", shared.CommitTransaction{
		TxID: "t2", AccountNumber: "A1", ReplyTo: coordinator,
	})

	state = h.getState(t, "A1")
	assert.Equal(t, StatusActive, state.Status)
	assert.True(t, state.Balance.Equal(money.MustParse("5")))
	assert.True(t, state.PendingBalance.IsZero())
}

func TestEntity_RollbackDiscardsStagedDeposit(t *testing.T) {
	h := newHarness(t, 0)
	h.create(t, "cust", "A1")

	coordinator := &ackRecorder{}
	h.router.Send(shared.AccountKind, "A1", shared.StartTransaction{
		TxID: "t1", Operation: deposit("A1", "5"), ReplyTo: coordinator,
	})
	h.router.Send(shared.AccountKind, "A1", shared.CommitTransaction{
		TxID: "t1", AccountNumber: "A1", ReplyTo: coordinator,
	})

	h.router.Send(shared.AccountKind, "A1", shared.StartTransaction{
		TxID: "t3", Operation: deposit("A1", "11"), ReplyTo: coordinator,
	})
	h.router.Send(shared.AccountKind, "A1", shared.RollbackTransaction{
		TxID: "t3", AccountNumber: "A1", ReplyTo: coordinator,
	})

	state := h.getState(t, "A1")
	assert.Equal(t, StatusActive, state.Status)
	assert.True(t, state.Balance.Equal(money.MustParse("5")))
	assert.True(t, state.PendingBalance.IsZero())

	records := h.events(t, "A1")
	require.Len(t, records, 5)
	reversed, ok := records[4].Event.(*TransactionReversed)
	require.True(t, ok)
	assert.Equal(t, "t3", reversed.TxID)
	assert.True(t, reversed.Inner.Amount.Equal(money.MustParse("11")))

	acks := coordinator.list()
	require.Len(t, acks, 4)
	assert.Equal(t, shared.Reversed{AccountNumber: "A1", TxID: "t3"}, acks[3])
}

func TestEntity_CrashAndReplay(t *testing.T) {
	h := newHarness(t, 0)
	h.create(t, "cust", "A1")

	coordinator := &ackRecorder{}
	h.router.Send(shared.AccountKind, "A1", shared.StartTransaction{
		TxID: "t1", Operation: deposit("A1", "5"), ReplyTo: coordinator,
	})
	h.router.Send(shared.AccountKind, "A1", shared.CommitTransaction{
		TxID: "t1", AccountNumber: "A1", ReplyTo: coordinator,
	})

	before := h.getState(t, "A1")

	// Drop the live instance; the next query reactivates from the journal.
	h.router.Passivate(shared.AccountKind, "A1")

	after := h.getState(t, "A1")
	assert.Equal(t, before.Status, after.Status)
	assert.True(t, before.Balance.Equal(after.Balance))
	assert.True(t, before.PendingBalance.Equal(after.PendingBalance))
	assert.Equal(t, before.CurrentTransactionID, after.CurrentTransactionID)

	// The stash is transient: it does not survive the crash.
	assert.Equal(t, 0, after.StashDepth)
}

func TestEntity_ReplayRestoresInFlightTransaction(t *testing.T) {
	h := newHarness(t, 0)
	h.create(t, "cust", "A1")

	coordinator := &ackRecorder{}
	h.router.Send(shared.AccountKind, "A1", shared.StartTransaction{
		TxID: "t1", Operation: deposit("A1", "7"), ReplyTo: coordinator,
	})

	h.router.Passivate(shared.AccountKind, "A1")

	state := h.getState(t, "A1")
	assert.Equal(t, StatusInTransaction, state.Status)
	assert.Equal(t, "t1", state.CurrentTransactionID)
	assert.True(t, state.PendingBalance.Equal(money.MustParse("7")))
}

func TestEntity_InsufficientFundsRejected(t *testing.T) {
	h := newHarness(t, 0)
	h.create(t, "cust", "A2")

	coordinator := &ackRecorder{}
	h.router.Send(shared.AccountKind, "A2", shared.StartTransaction{
		TxID: "t1", Operation: withdrawal("A2", "999"), ReplyTo: coordinator,
	})

	state := h.getState(t, "A2")
	assert.Equal(t, StatusActive, state.Status)

	acks := coordinator.list()
	require.Len(t, acks, 1)
	rejected, ok := acks[0].(shared.Rejected)
	require.True(t, ok)
	assert.Equal(t, shared.ReasonInsufficientFunds, rejected.Reason)

	// Rejections are replies, not events.
	assert.Len(t, h.events(t, "A2"), 1)
}

func TestEntity_StartOnUninitializedAccountRejected(t *testing.T) {
	h := newHarness(t, 0)

	coordinator := &ackRecorder{}
	h.router.Send(shared.AccountKind, "ghost", shared.StartTransaction{
		TxID: "t1", Operation: deposit("ghost", "1"), ReplyTo: coordinator,
	})

	state := h.getState(t, "ghost")
	assert.Equal(t, StatusUninitialized, state.Status)

	acks := coordinator.list()
	require.Len(t, acks, 1)
	rejected, ok := acks[0].(shared.Rejected)
	require.True(t, ok)
	assert.Equal(t, shared.ReasonAccountNotFound, rejected.Reason)
}

func TestEntity_CommitForUnknownTransaction(t *testing.T) {
	h := newHarness(t, 0)
	h.create(t, "cust", "A1")

	coordinator := &ackRecorder{}
	h.router.Send(shared.AccountKind, "A1", shared.CommitTransaction{
		TxID: "nope", AccountNumber: "A1", ReplyTo: coordinator,
	})
	h.getState(t, "A1")

	acks := coordinator.list()
	require.Len(t, acks, 1)
	assert.Equal(t, shared.UnknownTransaction{AccountNumber: "A1", TxID: "nope"}, acks[0])
}

func TestEntity_CommitForForeignTransactionWhileStaged(t *testing.T) {
	h := newHarness(t, 0)
	h.create(t, "cust", "A1")

	coordinator := &ackRecorder{}
	h.router.Send(shared.AccountKind, "A1", shared.StartTransaction{
		TxID: "t1", Operation: deposit("A1", "10"), ReplyTo: coordinator,
	})
	h.router.Send(shared.AccountKind, "A1", shared.CommitTransaction{
		TxID: "t9", AccountNumber: "A1", ReplyTo: coordinator,
	})

	state := h.getState(t, "A1")
	assert.Equal(t, StatusInTransaction, state.Status)
	assert.Equal(t, "t1", state.CurrentTransactionID)

	acks := coordinator.list()
	require.Len(t, acks, 2)
	assert.Equal(t, shared.UnknownTransaction{AccountNumber: "A1", TxID: "t9"}, acks[1])
}

func TestEntity_RetriedCommandsAreIdempotent(t *testing.T) {
	h := newHarness(t, 0)
	h.create(t, "cust", "A1")

	coordinator := &ackRecorder{}
	start := shared.StartTransaction{TxID: "t1", Operation: deposit("A1", "10"), ReplyTo: coordinator}
	commit := shared.CommitTransaction{TxID: "t1", AccountNumber: "A1", ReplyTo: coordinator}

	h.router.Send(shared.AccountKind, "A1", start)
	h.router.Send(shared.AccountKind, "A1", start) // duplicate delivery
	h.router.Send(shared.AccountKind, "A1", commit)
	h.router.Send(shared.AccountKind, "A1", commit) // duplicate delivery
	h.getState(t, "A1")

	acks := coordinator.list()
	require.Len(t, acks, 4)
	assert.Equal(t, shared.Ready{AccountNumber: "A1", TxID: "t1"}, acks[0])
	assert.Equal(t, shared.Ready{AccountNumber: "A1", TxID: "t1"}, acks[1])
	assert.Equal(t, shared.Cleared{AccountNumber: "A1", TxID: "t1"}, acks[2])
	assert.Equal(t, shared.Cleared{AccountNumber: "A1", TxID: "t1"}, acks[3])

	// One staged, one cleared: duplicates produced no extra events.
	assert.Len(t, h.events(t, "A1"), 3)

	// A retried start after completion also re-acks the terminal state.
	h.router.Send(shared.AccountKind, "A1", start)
	h.getState(t, "A1")
	acks = coordinator.list()
	require.Len(t, acks, 5)
	assert.Equal(t, shared.Cleared{AccountNumber: "A1", TxID: "t1"}, acks[4])
}

func TestEntity_StashOverflowRepliesBusy(t *testing.T) {
	h := newHarness(t, 1)
	h.create(t, "cust", "A1")

	coordinator := &ackRecorder{}
	h.router.Send(shared.AccountKind, "A1", shared.StartTransaction{
		TxID: "t1", Operation: deposit("A1", "1"), ReplyTo: coordinator,
	})
	h.router.Send(shared.AccountKind, "A1", shared.StartTransaction{
		TxID: "t2", Operation: deposit("A1", "2"), ReplyTo: coordinator,
	})
	h.router.Send(shared.AccountKind, "A1", shared.StartTransaction{
		TxID: "t3", Operation: deposit("A1", "3"), ReplyTo: coordinator,
	})

	state := h.getState(t, "A1")
	assert.Equal(t, 1, state.StashDepth)

	acks := coordinator.list()
	require.Len(t, acks, 2)
	busy, ok := acks[1].(shared.Rejected)
	require.True(t, ok)
	assert.Equal(t, "t3", busy.TxID)
	assert.Equal(t, shared.ReasonBusy, busy.Reason)
}

func TestEntity_SnapshotRoundTrip(t *testing.T) {
	entity := NewFactory(0)("A1").(*Entity)
	entity.Apply(&BankAccountCreated{CustomerNumber: "cust", AccountNumber: "A1"})
	entity.Apply(&TransactionStarted{TxID: "t1", Inner: deposit("A1", "10")})
	entity.Apply(&TransactionCleared{TxID: "t1", Inner: deposit("A1", "10")})
	entity.Apply(&TransactionStarted{TxID: "t2", Inner: withdrawal("A1", "4")})

	data, err := entity.SnapshotState()
	require.NoError(t, err)

	restored := NewFactory(0)("A1").(*Entity)
	require.NoError(t, restored.RestoreSnapshot(data))

	assert.Equal(t, StatusInTransaction, restored.State().Status)
	assert.True(t, restored.State().Balance.Equal(money.MustParse("10")))
	assert.True(t, restored.State().PendingBalance.Equal(money.FromInt(-4)))
	assert.Equal(t, "t2", restored.State().CurrentTransactionID)
	assert.True(t, restored.State().HasCleared("t1"))
}
