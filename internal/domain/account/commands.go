package account

import (
	"github.com/banking-saga-core/internal/domain/money"
	"github.com/banking-saga-core/internal/runtime"
)

// CreateBankAccount opens the account. Creation is idempotent: a duplicate is
// acknowledged as a no-op.
type CreateBankAccount struct {
	CustomerNumber string
	AccountNumber  string
	ReplyTo        runtime.Ref
}

// CreateAck answers CreateBankAccount.
type CreateAck struct {
	AccountNumber string
	AlreadyExists bool
}

// GetBankAccountState is the side-effect-free state query.
type GetBankAccountState struct {
	ReplyTo runtime.Ref
}

// StateSnapshot answers GetBankAccountState.
type StateSnapshot struct {
	AccountNumber        string
	CustomerNumber       string
	Status               Status
	Balance              money.Amount
	PendingBalance       money.Amount
	CurrentTransactionID string
	StashDepth           int
}
