package saga

import (
	"time"

	"github.com/banking-saga-core/internal/domain/shared"
)

// Status captures the lifecycle state of a saga.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusAwaitingReady Status = "AWAITING_READY"
	StatusCommitting    Status = "COMMITTING"
	StatusRollingBack   Status = "ROLLING_BACK"
	StatusCompleted     Status = "COMPLETED"
)

// Outcome is the terminal result of a completed saga.
type Outcome string

const (
	OutcomeCommitted  Outcome = "COMMITTED"
	OutcomeRolledBack Outcome = "ROLLED_BACK"
)

// State is the in-memory view of a saga, a deterministic fold of its journal.
type State struct {
	TxID       string
	Status     Status
	Operations []shared.Operation
	Deadline   time.Time
	Outcome    Outcome

	ready    map[string]bool
	rejected map[string]bool
	cleared  map[string]bool
	reversed map[string]bool
}

// NewState returns a saga state awaiting its StartSaga command.
func NewState() *State {
	return &State{
		Status:   StatusPending,
		ready:    make(map[string]bool),
		rejected: make(map[string]bool),
		cleared:  make(map[string]bool),
		reversed: make(map[string]bool),
	}
}

// Participants returns the distinct account numbers in operation order.
func (s *State) Participants() []string {
	seen := make(map[string]bool, len(s.Operations))
	var participants []string
	for _, op := range s.Operations {
		if !seen[op.AccountNumber] {
			seen[op.AccountNumber] = true
			participants = append(participants, op.AccountNumber)
		}
	}
	return participants
}

// IsReady reports whether the participant acknowledged staging.
func (s *State) IsReady(accountNumber string) bool { return s.ready[accountNumber] }

// IsRejected reports whether the participant refused to stage.
func (s *State) IsRejected(accountNumber string) bool { return s.rejected[accountNumber] }

// IsCleared reports whether the participant acknowledged the commit.
func (s *State) IsCleared(accountNumber string) bool { return s.cleared[accountNumber] }

// IsReversed reports whether the participant acknowledged the rollback.
func (s *State) IsReversed(accountNumber string) bool { return s.reversed[accountNumber] }

// AllReady reports whether every participant acknowledged staging.
func (s *State) AllReady() bool {
	return len(s.ready) == len(s.Participants())
}

// AllCleared reports whether every participant acknowledged the commit.
func (s *State) AllCleared() bool {
	return len(s.cleared) == len(s.Participants())
}

// RollbackComplete reports whether every participant is resolved: it either
// rejected (nothing staged) or staged and acknowledged the rollback. A
// participant that has answered nothing yet may still stage late, so the
// saga must not complete while one remains unresolved.
func (s *State) RollbackComplete() bool {
	for _, accountNumber := range s.Participants() {
		if s.rejected[accountNumber] {
			continue
		}
		if !s.ready[accountNumber] || !s.reversed[accountNumber] {
			return false
		}
	}
	return true
}

func (s *State) applyStarted(e *SagaStarted) {
	s.TxID = e.TxID
	s.Status = StatusAwaitingReady
	s.Operations = e.Operations
	s.Deadline = e.Deadline
}

func (s *State) applyReady(e *ParticipantReady) {
	s.ready[e.AccountNumber] = true
}

func (s *State) applyRejected(e *ParticipantRejected) {
	s.rejected[e.AccountNumber] = true
}

func (s *State) applyCommitDecided(*CommitDecided) {
	s.Status = StatusCommitting
}

func (s *State) applyRollbackDecided(*RollbackDecided) {
	s.Status = StatusRollingBack
}

func (s *State) applyCleared(e *ParticipantCleared) {
	s.cleared[e.AccountNumber] = true
}

func (s *State) applyReversed(e *ParticipantReversed) {
	s.reversed[e.AccountNumber] = true
}

func (s *State) applyCompleted(e *SagaCompleted) {
	s.Status = StatusCompleted
	s.Outcome = e.Outcome
}
