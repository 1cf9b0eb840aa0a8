package account

import (
	"github.com/banking-saga-core/internal/domain/shared"
	"github.com/banking-saga-core/internal/journal"
)

// Event type tags as stored in the journal.
const (
	EventTypeCreated             = "bank_account_created"
	EventTypeTransactionStarted  = "transaction_started"
	EventTypeTransactionCleared  = "transaction_cleared"
	EventTypeTransactionReversed = "transaction_reversed"
)

// BankAccountCreated records account creation.
type BankAccountCreated struct {
	CustomerNumber string `json:"customer_number"`
	AccountNumber  string `json:"account_number"`
}

func (BankAccountCreated) EventType() string { return EventTypeCreated }

// TransactionStarted records that the inner operation's delta was staged for
// the transaction.
type TransactionStarted struct {
	TxID  string           `json:"tx_id"`
	Inner shared.Operation `json:"inner"`
}

func (TransactionStarted) EventType() string { return EventTypeTransactionStarted }

// TransactionCleared records that the staged delta was applied to the
// balance.
type TransactionCleared struct {
	TxID  string           `json:"tx_id"`
	Inner shared.Operation `json:"inner"`
}

func (TransactionCleared) EventType() string { return EventTypeTransactionCleared }

// TransactionReversed records that the staged delta was discarded.
type TransactionReversed struct {
	TxID  string           `json:"tx_id"`
	Inner shared.Operation `json:"inner"`
}

func (TransactionReversed) EventType() string { return EventTypeTransactionReversed }

// RegisterEvents registers all account event types with the journal codec.
func RegisterEvents(registry *journal.Registry) {
	registry.Register(EventTypeCreated, func() journal.Event { return &BankAccountCreated{} })
	registry.Register(EventTypeTransactionStarted, func() journal.Event { return &TransactionStarted{} })
	registry.Register(EventTypeTransactionCleared, func() journal.Event { return &TransactionCleared{} })
	registry.Register(EventTypeTransactionReversed, func() journal.Event { return &TransactionReversed{} })
}
