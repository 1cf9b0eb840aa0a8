package saga

import (
	"time"

	"github.com/banking-saga-core/internal/domain/shared"
	"github.com/banking-saga-core/internal/journal"
)

// Event type tags as stored in the journal.
const (
	EventTypeStarted             = "saga_started"
	EventTypeParticipantReady    = "participant_ready"
	EventTypeParticipantRejected = "participant_rejected"
	EventTypeCommitDecided       = "commit_decided"
	EventTypeRollbackDecided     = "rollback_decided"
	EventTypeParticipantCleared  = "participant_cleared"
	EventTypeParticipantReversed = "participant_reversed"
	EventTypeCompleted           = "saga_completed"
)

// SagaStarted fixes the participant set and the prepare-phase deadline.
type SagaStarted struct {
	TxID       string             `json:"tx_id"`
	Operations []shared.Operation `json:"operations"`
	Deadline   time.Time          `json:"deadline"`
}

func (SagaStarted) EventType() string { return EventTypeStarted }

// ParticipantReady records a participant's staging acknowledgement.
type ParticipantReady struct {
	TxID          string `json:"tx_id"`
	AccountNumber string `json:"account_number"`
}

func (ParticipantReady) EventType() string { return EventTypeParticipantReady }

// ParticipantRejected records a participant's refusal to stage.
type ParticipantRejected struct {
	TxID          string                 `json:"tx_id"`
	AccountNumber string                 `json:"account_number"`
	Reason        shared.RejectionReason `json:"reason,omitempty"`
}

func (ParticipantRejected) EventType() string { return EventTypeParticipantRejected }

// CommitDecided is the point of no return: every participant voted ready.
type CommitDecided struct {
	TxID string `json:"tx_id"`
}

func (CommitDecided) EventType() string { return EventTypeCommitDecided }

// RollbackDecided records the global rollback decision.
type RollbackDecided struct {
	TxID string `json:"tx_id"`
}

func (RollbackDecided) EventType() string { return EventTypeRollbackDecided }

// ParticipantCleared records a participant's commit acknowledgement.
type ParticipantCleared struct {
	TxID          string `json:"tx_id"`
	AccountNumber string `json:"account_number"`
}

func (ParticipantCleared) EventType() string { return EventTypeParticipantCleared }

// ParticipantReversed records a participant's rollback acknowledgement.
type ParticipantReversed struct {
	TxID          string `json:"tx_id"`
	AccountNumber string `json:"account_number"`
}

func (ParticipantReversed) EventType() string { return EventTypeParticipantReversed }

// SagaCompleted is the terminal event.
type SagaCompleted struct {
	TxID    string  `json:"tx_id"`
	Outcome Outcome `json:"outcome"`
}

func (SagaCompleted) EventType() string { return EventTypeCompleted }

// RegisterEvents registers all saga event types with the journal codec.
func RegisterEvents(registry *journal.Registry) {
	registry.Register(EventTypeStarted, func() journal.Event { return &SagaStarted{} })
	registry.Register(EventTypeParticipantReady, func() journal.Event { return &ParticipantReady{} })
	registry.Register(EventTypeParticipantRejected, func() journal.Event { return &ParticipantRejected{} })
	registry.Register(EventTypeCommitDecided, func() journal.Event { return &CommitDecided{} })
	registry.Register(EventTypeRollbackDecided, func() journal.Event { return &RollbackDecided{} })
	registry.Register(EventTypeParticipantCleared, func() journal.Event { return &ParticipantCleared{} })
	registry.Register(EventTypeParticipantReversed, func() journal.Event { return &ParticipantReversed{} })
	registry.Register(EventTypeCompleted, func() journal.Event { return &SagaCompleted{} })
}
