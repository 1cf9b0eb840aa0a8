package account

import (
	"github.com/banking-saga-core/internal/domain/money"
	"github.com/banking-saga-core/internal/domain/shared"
)

// Status defines the account lifecycle states
type Status string

const (
	StatusUninitialized Status = "UNINITIALIZED"
	StatusActive        Status = "ACTIVE"
	StatusInTransaction Status = "IN_TRANSACTION"
)

// State is the in-memory view of an account, a deterministic fold of its
// journal. Completed transaction ids are retained so retried commits and
// rollbacks can be re-acknowledged idempotently.
type State struct {
	Status               Status
	CustomerNumber       string
	AccountNumber        string
	Balance              money.Amount
	PendingBalance       money.Amount
	CurrentTransactionID string
	CurrentOperation     shared.Operation

	cleared  map[string]bool
	reversed map[string]bool
}

// NewState returns an uninitialized account state.
func NewState() *State {
	return &State{
		Status:   StatusUninitialized,
		cleared:  make(map[string]bool),
		reversed: make(map[string]bool),
	}
}

func (s *State) applyCreated(e *BankAccountCreated) {
	s.Status = StatusActive
	s.CustomerNumber = e.CustomerNumber
	s.AccountNumber = e.AccountNumber
	s.Balance = money.Zero
	s.PendingBalance = money.Zero
}

func (s *State) applyStarted(e *TransactionStarted) {
	s.Status = StatusInTransaction
	s.CurrentTransactionID = e.TxID
	s.CurrentOperation = e.Inner
	s.PendingBalance = e.Inner.Delta()
}

func (s *State) applyCleared(e *TransactionCleared) {
	s.Balance = s.Balance.Add(s.PendingBalance)
	s.PendingBalance = money.Zero
	s.Status = StatusActive
	s.CurrentTransactionID = ""
	s.CurrentOperation = shared.Operation{}
	s.cleared[e.TxID] = true
}

func (s *State) applyReversed(e *TransactionReversed) {
	s.PendingBalance = money.Zero
	s.Status = StatusActive
	s.CurrentTransactionID = ""
	s.CurrentOperation = shared.Operation{}
	s.reversed[e.TxID] = true
}

// HasCleared reports whether the transaction committed on this account.
func (s *State) HasCleared(txID string) bool { return s.cleared[txID] }

// HasReversed reports whether the transaction was rolled back on this
// account.
func (s *State) HasReversed(txID string) bool { return s.reversed[txID] }

// CanWithdraw reports whether the balance covers the amount.
func (s *State) CanWithdraw(amount money.Amount) bool {
	return s.Balance.Cmp(amount) >= 0
}
