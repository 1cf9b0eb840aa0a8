// Package shared holds the message types exchanged between the saga
// coordinator and its participant accounts. Both entity kinds depend on this
// package; neither depends on the other.
package shared

import (
	"github.com/banking-saga-core/internal/domain/money"
	"github.com/banking-saga-core/internal/runtime"
)

// Entity kind names registered with the runtime router.
const (
	AccountKind = "account"
	SagaKind    = "saga"
)

// OperationType defines possible transaction operations
type OperationType string

const (
	OperationTypeDeposit    OperationType = "DEPOSIT"
	OperationTypeWithdrawal OperationType = "WITHDRAWAL"
)

// Operation is one money movement against a single account. Amount is always
// positive; the sign of the staged delta comes from the type.
type Operation struct {
	Type          OperationType `json:"type"`
	AccountNumber string        `json:"account_number"`
	Amount        money.Amount  `json:"amount"`
}

// Delta returns the signed balance change the operation stages: positive for
// deposits, negative for withdrawals.
func (o Operation) Delta() money.Amount {
	if o.Type == OperationTypeWithdrawal {
		return o.Amount.Neg()
	}
	return o.Amount
}

// RejectionReason defines why a participant refused to stage a transaction
type RejectionReason string

const (
	ReasonAccountNotFound    RejectionReason = "ACCOUNT_NOT_FOUND"
	ReasonInsufficientFunds  RejectionReason = "INSUFFICIENT_FUNDS"
	ReasonInvalidAmount      RejectionReason = "INVALID_AMOUNT"
	ReasonBusy               RejectionReason = "BUSY"
	ReasonUnknownTransaction RejectionReason = "UNKNOWN_TRANSACTION"
)

// StartTransaction asks an account to durably stage the operation's delta for
// the given transaction. The account answers Ready or Rejected on ReplyTo.
type StartTransaction struct {
	TxID      string
	Operation Operation
	ReplyTo   runtime.Ref
}

// CommitTransaction finalizes a staged transaction: the delta is applied to
// the balance. The account answers Cleared on ReplyTo.
type CommitTransaction struct {
	TxID          string
	AccountNumber string
	ReplyTo       runtime.Ref
}

// RollbackTransaction discards a staged transaction. The account answers
// Reversed on ReplyTo.
type RollbackTransaction struct {
	TxID          string
	AccountNumber string
	ReplyTo       runtime.Ref
}

// Ready acknowledges that the participant staged its delta.
type Ready struct {
	AccountNumber string
	TxID          string
}

// Rejected reports that the participant refused to stage.
type Rejected struct {
	AccountNumber string
	TxID          string
	Reason        RejectionReason
}

// Cleared acknowledges that the participant applied its staged delta.
type Cleared struct {
	AccountNumber string
	TxID          string
}

// Reversed acknowledges that the participant discarded its staged delta.
type Reversed struct {
	AccountNumber string
	TxID          string
}

// UnknownTransaction is the recoverable protocol-violation ack: a commit or
// rollback referenced a transaction the participant has no record of.
type UnknownTransaction struct {
	AccountNumber string
	TxID          string
}
