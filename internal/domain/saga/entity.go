package saga

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/banking-saga-core/internal/domain/shared"
	"github.com/banking-saga-core/internal/journal"
	"github.com/banking-saga-core/internal/runtime"
)

// Validation errors reported in the StartAck of a refused StartSaga.
var (
	ErrNoOperations         = errors.New("saga requires at least one operation")
	ErrDuplicateParticipant = errors.New("account appears in more than one operation")
	ErrEmptyAccountNumber   = errors.New("account number cannot be empty")
	ErrNonPositiveAmount    = errors.New("amount must be positive")
)

// Entity is the saga coordinator state machine. It drives a fixed set of
// deposits and withdrawals across participant accounts to a single global
// outcome: once every participant votes ready the saga commits, and any
// rejection or a missed prepare deadline rolls every staged participant back.
// After the decision, periodic ticks retransmit outstanding commands until
// all participants acknowledge.
type Entity struct {
	id             string
	state          *State
	prepareTimeout time.Duration
	retryInterval  time.Duration
}

// NewFactory returns a runtime factory for saga entities.
func NewFactory(prepareTimeout, retryInterval time.Duration) runtime.Factory {
	return func(id string) runtime.Entity {
		return &Entity{
			id:             id,
			state:          NewState(),
			prepareTimeout: prepareTimeout,
			retryInterval:  retryInterval,
		}
	}
}

// State exposes the in-memory state for tests.
func (e *Entity) State() *State { return e.state }

// Apply folds a persisted event into the state.
func (e *Entity) Apply(event journal.Event) {
	switch ev := event.(type) {
	case *SagaStarted:
		e.state.applyStarted(ev)
	case *ParticipantReady:
		e.state.applyReady(ev)
	case *ParticipantRejected:
		e.state.applyRejected(ev)
	case *CommitDecided:
		e.state.applyCommitDecided(ev)
	case *RollbackDecided:
		e.state.applyRollbackDecided(ev)
	case *ParticipantCleared:
		e.state.applyCleared(ev)
	case *ParticipantReversed:
		e.state.applyReversed(ev)
	case *SagaCompleted:
		e.state.applyCompleted(ev)
	}
}

// Awake resumes an in-flight saga after activation: the tick schedule is
// restarted and outstanding commands are retransmitted immediately. The
// participant stash is not persisted on the account side, so resending is
// what restores it.
func (e *Entity) Awake(ctx *runtime.Context) {
	switch e.state.Status {
	case StatusAwaitingReady, StatusCommitting, StatusRollingBack:
		ctx.ScheduleTicks(e.retryInterval)
		e.handleTick(ctx, runtime.Tick{Now: ctx.Now()})
	}
}

// Receive processes one command or acknowledgement.
func (e *Entity) Receive(ctx *runtime.Context, message runtime.Message) {
	switch msg := message.(type) {
	case StartSaga:
		e.handleStart(ctx, msg)
	case shared.Ready:
		e.handleReady(ctx, msg)
	case shared.Rejected:
		e.handleRejected(ctx, msg)
	case shared.Cleared:
		e.handleCleared(ctx, msg)
	case shared.Reversed:
		e.handleReversed(ctx, msg)
	case shared.UnknownTransaction:
		ctx.Logger().Warn("participant reported unknown transaction",
			"account_number", msg.AccountNumber, "tx_id", msg.TxID)
	case runtime.Tick:
		e.handleTick(ctx, msg)
	case GetSagaState:
		tell(msg.ReplyTo, e.snapshot())
	default:
		ctx.Logger().Warn("ignoring unexpected message", "message_type", fmt.Sprintf("%T", message))
	}
}

func (e *Entity) handleStart(ctx *runtime.Context, cmd StartSaga) {
	if e.state.Status != StatusPending {
		// Redelivered start; the saga is already running or done.
		tell(cmd.ReplyTo, StartAck{TxID: e.id, Accepted: true})
		return
	}

	operations, err := buildOperations(cmd)
	if err != nil {
		ctx.Logger().Warn("refusing saga start", "error", err)
		tell(cmd.ReplyTo, StartAck{TxID: e.id, Accepted: false, Reason: err.Error()})
		return
	}

	deadline := ctx.Now().Add(e.prepareTimeout)
	event := &SagaStarted{TxID: e.id, Operations: operations, Deadline: deadline}
	if err := ctx.Persist(event); err != nil {
		return
	}

	ctx.Logger().Info("saga started",
		"participants", len(e.state.Participants()),
		"deadline", deadline,
	)

	for _, op := range operations {
		ctx.Send(shared.AccountKind, op.AccountNumber, shared.StartTransaction{
			TxID:      e.id,
			Operation: op,
			ReplyTo:   ctx.Self(),
		})
	}
	ctx.ScheduleTicks(e.retryInterval)

	tell(cmd.ReplyTo, StartAck{TxID: e.id, Accepted: true})
}

func (e *Entity) handleReady(ctx *runtime.Context, ack shared.Ready) {
	switch e.state.Status {
	case StatusAwaitingReady:
		if e.state.IsReady(ack.AccountNumber) {
			return
		}
		if err := ctx.Persist(&ParticipantReady{TxID: e.id, AccountNumber: ack.AccountNumber}); err != nil {
			return
		}
		if e.state.AllReady() {
			e.decideCommit(ctx)
		}
	case StatusRollingBack:
		// A participant staged after the rollback decision; it must be
		// reversed like the rest.
		if e.state.IsReady(ack.AccountNumber) {
			return
		}
		if err := ctx.Persist(&ParticipantReady{TxID: e.id, AccountNumber: ack.AccountNumber}); err != nil {
			return
		}
		ctx.Send(shared.AccountKind, ack.AccountNumber, shared.RollbackTransaction{
			TxID:          e.id,
			AccountNumber: ack.AccountNumber,
			ReplyTo:       ctx.Self(),
		})
	}
}

func (e *Entity) handleRejected(ctx *runtime.Context, ack shared.Rejected) {
	switch e.state.Status {
	case StatusAwaitingReady:
		ctx.Logger().Info("participant rejected transaction",
			"account_number", ack.AccountNumber, "reason", string(ack.Reason))

		if !e.state.IsRejected(ack.AccountNumber) {
			event := &ParticipantRejected{TxID: e.id, AccountNumber: ack.AccountNumber, Reason: ack.Reason}
			if err := ctx.Persist(event); err != nil {
				return
			}
		}
		e.decideRollback(ctx)
	case StatusRollingBack:
		// A previously silent participant resolved after the decision; it
		// staged nothing, so recording the rejection may complete the saga.
		if e.state.IsRejected(ack.AccountNumber) || e.state.IsReady(ack.AccountNumber) {
			return
		}
		event := &ParticipantRejected{TxID: e.id, AccountNumber: ack.AccountNumber, Reason: ack.Reason}
		if err := ctx.Persist(event); err != nil {
			return
		}
		if e.state.RollbackComplete() {
			e.complete(ctx, OutcomeRolledBack)
		}
	}
}

func (e *Entity) handleCleared(ctx *runtime.Context, ack shared.Cleared) {
	if e.state.Status != StatusCommitting || e.state.IsCleared(ack.AccountNumber) {
		return
	}
	if err := ctx.Persist(&ParticipantCleared{TxID: e.id, AccountNumber: ack.AccountNumber}); err != nil {
		return
	}
	if e.state.AllCleared() {
		e.complete(ctx, OutcomeCommitted)
	}
}

func (e *Entity) handleReversed(ctx *runtime.Context, ack shared.Reversed) {
	if e.state.Status != StatusRollingBack || e.state.IsReversed(ack.AccountNumber) {
		return
	}
	if err := ctx.Persist(&ParticipantReversed{TxID: e.id, AccountNumber: ack.AccountNumber}); err != nil {
		return
	}
	if e.state.RollbackComplete() {
		e.complete(ctx, OutcomeRolledBack)
	}
}

func (e *Entity) handleTick(ctx *runtime.Context, tick runtime.Tick) {
	switch e.state.Status {
	case StatusAwaitingReady:
		if !tick.Now.Before(e.state.Deadline) && !e.state.AllReady() {
			ctx.Logger().Warn("prepare deadline reached, rolling back",
				"ready", len(e.state.ready), "participants", len(e.state.Participants()))
			e.decideRollback(ctx)
			return
		}
		// Retransmit to participants that have not answered.
		for _, op := range e.state.Operations {
			if e.state.IsReady(op.AccountNumber) || e.state.IsRejected(op.AccountNumber) {
				continue
			}
			ctx.Send(shared.AccountKind, op.AccountNumber, shared.StartTransaction{
				TxID:      e.id,
				Operation: op,
				ReplyTo:   ctx.Self(),
			})
		}
	case StatusCommitting:
		for _, accountNumber := range e.state.Participants() {
			if e.state.IsCleared(accountNumber) {
				continue
			}
			ctx.Send(shared.AccountKind, accountNumber, shared.CommitTransaction{
				TxID:          e.id,
				AccountNumber: accountNumber,
				ReplyTo:       ctx.Self(),
			})
		}
	case StatusRollingBack:
		// Unresolved participants still hold the original StartTransaction;
		// retransmitting drives them to a Ready or Rejected answer so the
		// rollback can finish. Staged participants get the rollback again.
		for _, op := range e.state.Operations {
			switch {
			case e.state.IsRejected(op.AccountNumber):
			case !e.state.IsReady(op.AccountNumber):
				ctx.Send(shared.AccountKind, op.AccountNumber, shared.StartTransaction{
					TxID:      e.id,
					Operation: op,
					ReplyTo:   ctx.Self(),
				})
			case !e.state.IsReversed(op.AccountNumber):
				ctx.Send(shared.AccountKind, op.AccountNumber, shared.RollbackTransaction{
					TxID:          e.id,
					AccountNumber: op.AccountNumber,
					ReplyTo:       ctx.Self(),
				})
			}
		}
	default:
		ctx.CancelTicks()
	}
}

// decideCommit is the point of no return: deadlines no longer apply and the
// saga drives every participant to cleared.
func (e *Entity) decideCommit(ctx *runtime.Context) {
	if err := ctx.Persist(&CommitDecided{TxID: e.id}); err != nil {
		return
	}
	ctx.Logger().Info("commit decided", "participants", len(e.state.Participants()))

	for _, accountNumber := range e.state.Participants() {
		ctx.Send(shared.AccountKind, accountNumber, shared.CommitTransaction{
			TxID:          e.id,
			AccountNumber: accountNumber,
			ReplyTo:       ctx.Self(),
		})
	}
}

// decideRollback sends RollbackTransaction to every participant that staged.
// The saga completes immediately only when every participant is already
// resolved (all rejected); a participant that has not answered yet may still
// stage late and must be reversed before completion.
func (e *Entity) decideRollback(ctx *runtime.Context) {
	if err := ctx.Persist(&RollbackDecided{TxID: e.id}); err != nil {
		return
	}
	ctx.Logger().Info("rollback decided",
		"ready", len(e.state.ready), "rejected", len(e.state.rejected))

	if e.state.RollbackComplete() {
		e.complete(ctx, OutcomeRolledBack)
		return
	}
	for _, accountNumber := range e.state.Participants() {
		if !e.state.IsReady(accountNumber) {
			continue
		}
		ctx.Send(shared.AccountKind, accountNumber, shared.RollbackTransaction{
			TxID:          e.id,
			AccountNumber: accountNumber,
			ReplyTo:       ctx.Self(),
		})
	}
}

func (e *Entity) complete(ctx *runtime.Context, outcome Outcome) {
	if err := ctx.Persist(&SagaCompleted{TxID: e.id, Outcome: outcome}); err != nil {
		return
	}
	ctx.CancelTicks()
	ctx.Logger().Info("saga completed", "outcome", string(outcome))
}

func (e *Entity) snapshot() StateSnapshot {
	return StateSnapshot{
		TxID:         e.id,
		Status:       e.state.Status,
		Outcome:      e.state.Outcome,
		Participants: e.state.Participants(),
		Ready:        sortedKeys(e.state.ready),
		Rejected:     sortedKeys(e.state.rejected),
		Cleared:      sortedKeys(e.state.cleared),
		Reversed:     sortedKeys(e.state.reversed),
		Deadline:     e.state.Deadline,
	}
}

// buildOperations validates a StartSaga command and flattens it into the
// ordered operation sequence: deposits first, then withdrawals.
func buildOperations(cmd StartSaga) ([]shared.Operation, error) {
	total := len(cmd.Deposits) + len(cmd.Withdrawals)
	if total == 0 {
		return nil, ErrNoOperations
	}

	seen := make(map[string]bool, total)
	operations := make([]shared.Operation, 0, total)

	appendMovement := func(opType shared.OperationType, m Movement) error {
		if m.AccountNumber == "" {
			return ErrEmptyAccountNumber
		}
		if !m.Amount.IsPositive() {
			return fmt.Errorf("%w: account %s", ErrNonPositiveAmount, m.AccountNumber)
		}
		if seen[m.AccountNumber] {
			return fmt.Errorf("%w: %s", ErrDuplicateParticipant, m.AccountNumber)
		}
		seen[m.AccountNumber] = true
		operations = append(operations, shared.Operation{
			Type:          opType,
			AccountNumber: m.AccountNumber,
			Amount:        m.Amount,
		})
		return nil
	}

	for _, m := range cmd.Deposits {
		if err := appendMovement(shared.OperationTypeDeposit, m); err != nil {
			return nil, err
		}
	}
	for _, m := range cmd.Withdrawals {
		if err := appendMovement(shared.OperationTypeWithdrawal, m); err != nil {
			return nil, err
		}
	}
	return operations, nil
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func tell(ref runtime.Ref, message runtime.Message) {
	if ref != nil {
		ref.Tell(message)
	}
}
