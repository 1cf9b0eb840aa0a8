package saga

import (
	"time"

	"github.com/banking-saga-core/internal/domain/money"
	"github.com/banking-saga-core/internal/runtime"
)

// Movement is one account/amount pair in a StartSaga request.
type Movement struct {
	AccountNumber string       `json:"account_number"`
	Amount        money.Amount `json:"amount"`
}

// StartSaga begins the transaction across all named accounts. The participant
// set is the distinct account numbers of deposits and withdrawals.
type StartSaga struct {
	TxID        string
	Deposits    []Movement
	Withdrawals []Movement
	ReplyTo     runtime.Ref
}

// StartAck answers StartSaga. A rejected start names the validation failure.
type StartAck struct {
	TxID     string
	Accepted bool
	Reason   string
}

// GetSagaState is the side-effect-free state query.
type GetSagaState struct {
	ReplyTo runtime.Ref
}

// StateSnapshot answers GetSagaState.
type StateSnapshot struct {
	TxID         string
	Status       Status
	Outcome      Outcome
	Participants []string
	Ready        []string
	Rejected     []string
	Cleared      []string
	Reversed     []string
	Deadline     time.Time
}
