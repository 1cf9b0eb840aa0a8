package account

import (
	"encoding/json"
	"fmt"

	"github.com/banking-saga-core/internal/domain/money"
	"github.com/banking-saga-core/internal/domain/shared"
	"github.com/banking-saga-core/internal/journal"
	"github.com/banking-saga-core/internal/runtime"
)

// Entity is the bank account state machine. It serializes concurrent
// transactions: while one transaction is staged, StartTransaction commands
// for other transactions wait in an in-memory FIFO stash and are reprocessed
// when the current transaction clears or reverses. The stash is not
// persisted; after a crash the coordinator's retransmission restores it.
type Entity struct {
	id         string
	state      *State
	stashLimit int
	stash      []shared.StartTransaction
}

// NewFactory returns a runtime factory for account entities. stashLimit
// bounds the stash; zero or negative means unbounded.
func NewFactory(stashLimit int) runtime.Factory {
	return func(id string) runtime.Entity {
		return &Entity{
			id:         id,
			state:      NewState(),
			stashLimit: stashLimit,
		}
	}
}

// State exposes the in-memory state for tests.
func (e *Entity) State() *State { return e.state }

// Apply folds a persisted event into the state.
func (e *Entity) Apply(event journal.Event) {
	switch ev := event.(type) {
	case *BankAccountCreated:
		e.state.applyCreated(ev)
	case *TransactionStarted:
		e.state.applyStarted(ev)
	case *TransactionCleared:
		e.state.applyCleared(ev)
	case *TransactionReversed:
		e.state.applyReversed(ev)
	}
}

// Receive processes one command.
func (e *Entity) Receive(ctx *runtime.Context, message runtime.Message) {
	switch cmd := message.(type) {
	case CreateBankAccount:
		e.handleCreate(ctx, cmd)
	case GetBankAccountState:
		tell(cmd.ReplyTo, e.snapshot())
	case shared.StartTransaction:
		e.handleStartTransaction(ctx, cmd)
	case shared.CommitTransaction:
		e.handleCommit(ctx, cmd)
	case shared.RollbackTransaction:
		e.handleRollback(ctx, cmd)
	default:
		ctx.Logger().Warn("ignoring unexpected message", "message_type", fmt.Sprintf("%T", message))
	}
}

func (e *Entity) handleCreate(ctx *runtime.Context, cmd CreateBankAccount) {
	if e.state.Status != StatusUninitialized {
		tell(cmd.ReplyTo, CreateAck{AccountNumber: e.id, AlreadyExists: true})
		return
	}

	event := &BankAccountCreated{
		CustomerNumber: cmd.CustomerNumber,
		AccountNumber:  cmd.AccountNumber,
	}
	if err := ctx.Persist(event); err != nil {
		return
	}

	ctx.Logger().Info("bank account created", "customer_number", cmd.CustomerNumber)
	tell(cmd.ReplyTo, CreateAck{AccountNumber: cmd.AccountNumber})
}

func (e *Entity) handleStartTransaction(ctx *runtime.Context, cmd shared.StartTransaction) {
	if e.state.Status == StatusUninitialized {
		tell(cmd.ReplyTo, shared.Rejected{
			AccountNumber: e.id,
			TxID:          cmd.TxID,
			Reason:        shared.ReasonAccountNotFound,
		})
		return
	}

	// Retried commands for transactions that already finished here are
	// re-acknowledged with their terminal ack.
	if e.state.HasCleared(cmd.TxID) {
		tell(cmd.ReplyTo, shared.Cleared{AccountNumber: e.id, TxID: cmd.TxID})
		return
	}
	if e.state.HasReversed(cmd.TxID) {
		tell(cmd.ReplyTo, shared.Reversed{AccountNumber: e.id, TxID: cmd.TxID})
		return
	}

	if e.state.Status == StatusInTransaction {
		if cmd.TxID == e.state.CurrentTransactionID {
			tell(cmd.ReplyTo, shared.Ready{AccountNumber: e.id, TxID: cmd.TxID})
			return
		}
		e.stashCommand(ctx, cmd)
		return
	}

	if !cmd.Operation.Amount.IsPositive() {
		tell(cmd.ReplyTo, shared.Rejected{
			AccountNumber: e.id,
			TxID:          cmd.TxID,
			Reason:        shared.ReasonInvalidAmount,
		})
		return
	}

	if cmd.Operation.Type == shared.OperationTypeWithdrawal && !e.state.CanWithdraw(cmd.Operation.Amount) {
		ctx.Logger().Info("rejecting withdrawal, insufficient funds",
			"tx_id", cmd.TxID,
			"balance", e.state.Balance.String(),
			"amount", cmd.Operation.Amount.String(),
		)
		tell(cmd.ReplyTo, shared.Rejected{
			AccountNumber: e.id,
			TxID:          cmd.TxID,
			Reason:        shared.ReasonInsufficientFunds,
		})
		return
	}

	event := &TransactionStarted{TxID: cmd.TxID, Inner: cmd.Operation}
	if err := ctx.Persist(event); err != nil {
		return
	}

	tell(cmd.ReplyTo, shared.Ready{AccountNumber: e.id, TxID: cmd.TxID})
}

func (e *Entity) handleCommit(ctx *runtime.Context, cmd shared.CommitTransaction) {
	if e.state.Status == StatusInTransaction && e.state.CurrentTransactionID == cmd.TxID {
		event := &TransactionCleared{TxID: cmd.TxID, Inner: e.state.CurrentOperation}
		if err := ctx.Persist(event); err != nil {
			return
		}
		tell(cmd.ReplyTo, shared.Cleared{AccountNumber: e.id, TxID: cmd.TxID})
		e.drainStash(ctx)
		return
	}

	if e.state.HasCleared(cmd.TxID) {
		tell(cmd.ReplyTo, shared.Cleared{AccountNumber: e.id, TxID: cmd.TxID})
		return
	}
	if e.state.HasReversed(cmd.TxID) {
		tell(cmd.ReplyTo, shared.Reversed{AccountNumber: e.id, TxID: cmd.TxID})
		return
	}

	ctx.Logger().Warn("commit for unknown transaction", "tx_id", cmd.TxID)
	tell(cmd.ReplyTo, shared.UnknownTransaction{AccountNumber: e.id, TxID: cmd.TxID})
}

func (e *Entity) handleRollback(ctx *runtime.Context, cmd shared.RollbackTransaction) {
	if e.state.Status == StatusInTransaction && e.state.CurrentTransactionID == cmd.TxID {
		event := &TransactionReversed{TxID: cmd.TxID, Inner: e.state.CurrentOperation}
		if err := ctx.Persist(event); err != nil {
			return
		}
		tell(cmd.ReplyTo, shared.Reversed{AccountNumber: e.id, TxID: cmd.TxID})
		e.drainStash(ctx)
		return
	}

	if e.state.HasReversed(cmd.TxID) {
		tell(cmd.ReplyTo, shared.Reversed{AccountNumber: e.id, TxID: cmd.TxID})
		return
	}
	if e.state.HasCleared(cmd.TxID) {
		tell(cmd.ReplyTo, shared.Cleared{AccountNumber: e.id, TxID: cmd.TxID})
		return
	}

	ctx.Logger().Warn("rollback for unknown transaction", "tx_id", cmd.TxID)
	tell(cmd.ReplyTo, shared.UnknownTransaction{AccountNumber: e.id, TxID: cmd.TxID})
}

// stashCommand defers a StartTransaction that arrived while another
// transaction is staged. Duplicates of an already-stashed transaction are
// absorbed.
func (e *Entity) stashCommand(ctx *runtime.Context, cmd shared.StartTransaction) {
	for _, stashed := range e.stash {
		if stashed.TxID == cmd.TxID {
			return
		}
	}

	if e.stashLimit > 0 && len(e.stash) >= e.stashLimit {
		ctx.Logger().Warn("stash full, rejecting transaction", "tx_id", cmd.TxID, "stash_depth", len(e.stash))
		tell(cmd.ReplyTo, shared.Rejected{
			AccountNumber: e.id,
			TxID:          cmd.TxID,
			Reason:        shared.ReasonBusy,
		})
		return
	}

	e.stash = append(e.stash, cmd)
}

// drainStash reprocesses deferred commands in FIFO order after the entity
// returned to Active. The first accepted command puts the entity back
// InTransaction and the remainder stay stashed.
func (e *Entity) drainStash(ctx *runtime.Context) {
	for len(e.stash) > 0 && e.state.Status == StatusActive && !ctx.Failed() {
		cmd := e.stash[0]
		e.stash = e.stash[1:]
		e.handleStartTransaction(ctx, cmd)
	}
}

func (e *Entity) snapshot() StateSnapshot {
	return StateSnapshot{
		AccountNumber:        e.state.AccountNumber,
		CustomerNumber:       e.state.CustomerNumber,
		Status:               e.state.Status,
		Balance:              e.state.Balance,
		PendingBalance:       e.state.PendingBalance,
		CurrentTransactionID: e.state.CurrentTransactionID,
		StashDepth:           len(e.stash),
	}
}

// snapshotState is the serialized form written to the snapshot store.
type snapshotState struct {
	Status               Status           `json:"status"`
	CustomerNumber       string           `json:"customer_number"`
	AccountNumber        string           `json:"account_number"`
	Balance              string           `json:"balance"`
	PendingBalance       string           `json:"pending_balance"`
	CurrentTransactionID string           `json:"current_transaction_id,omitempty"`
	CurrentOperation     shared.Operation `json:"current_operation,omitempty"`
	Cleared              []string         `json:"cleared,omitempty"`
	Reversed             []string         `json:"reversed,omitempty"`
}

// SnapshotState serializes the account state for the snapshot store.
func (e *Entity) SnapshotState() ([]byte, error) {
	snap := snapshotState{
		Status:               e.state.Status,
		CustomerNumber:       e.state.CustomerNumber,
		AccountNumber:        e.state.AccountNumber,
		Balance:              e.state.Balance.String(),
		PendingBalance:       e.state.PendingBalance.String(),
		CurrentTransactionID: e.state.CurrentTransactionID,
		CurrentOperation:     e.state.CurrentOperation,
	}
	for txID := range e.state.cleared {
		snap.Cleared = append(snap.Cleared, txID)
	}
	for txID := range e.state.reversed {
		snap.Reversed = append(snap.Reversed, txID)
	}
	return json.Marshal(snap)
}

// RestoreSnapshot rebuilds the account state from its serialized form.
func (e *Entity) RestoreSnapshot(data []byte) error {
	var snap snapshotState
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode account snapshot: %w", err)
	}

	balance, err := money.Parse(snap.Balance)
	if err != nil {
		return fmt.Errorf("invalid snapshot balance: %w", err)
	}
	pending, err := money.ParseSigned(snap.PendingBalance)
	if err != nil {
		return fmt.Errorf("invalid snapshot pending balance: %w", err)
	}

	state := NewState()
	state.Status = snap.Status
	state.CustomerNumber = snap.CustomerNumber
	state.AccountNumber = snap.AccountNumber
	state.Balance = balance
	state.PendingBalance = pending
	state.CurrentTransactionID = snap.CurrentTransactionID
	state.CurrentOperation = snap.CurrentOperation
	for _, txID := range snap.Cleared {
		state.cleared[txID] = true
	}
	for _, txID := range snap.Reversed {
		state.reversed[txID] = true
	}
	e.state = state
	return nil
}

func tell(ref runtime.Ref, message runtime.Message) {
	if ref != nil {
		ref.Tell(message)
	}
}
