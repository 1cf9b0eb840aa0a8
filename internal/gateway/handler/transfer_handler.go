package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/banking-saga-core/internal/domain/money"
	"github.com/banking-saga-core/internal/domain/saga"
	"github.com/banking-saga-core/internal/domain/shared"
	"github.com/banking-saga-core/internal/runtime"
)

// TransferHandler handles HTTP requests for multi-account transfer sagas
type TransferHandler struct {
	router *runtime.Router
	logger *slog.Logger
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(logger *slog.Logger, router *runtime.Router) *TransferHandler {
	return &TransferHandler{
		router: router,
		logger: logger,
	}
}

// Create starts a saga across the named accounts. The saga runs
// asynchronously; the response reports acceptance, and the transfer resource
// can be polled for the outcome.
func (h *TransferHandler) Create(c *gin.Context) {
	var req StartTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	txID := req.TransactionID
	if txID == "" {
		txID = uuid.New().String()
	}

	deposits, err := mapMovements(req.Deposits)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}
	withdrawals, err := mapMovements(req.Withdrawals)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	askCtx, cancel := withAskTimeout(c)
	defer cancel()

	reply, err := h.router.Ask(askCtx, shared.SagaKind, txID, func(replyTo runtime.Ref) runtime.Message {
		return saga.StartSaga{
			TxID:        txID,
			Deposits:    deposits,
			Withdrawals: withdrawals,
			ReplyTo:     replyTo,
		}
	})
	if err != nil {
		h.respondAskFailure(c, err, "start transfer", txID)
		return
	}

	ack, ok := reply.(saga.StartAck)
	if !ok {
		h.logger.Error("Unexpected reply to start transfer", "tx_id", txID)
		RespondInternalError(c)
		return
	}

	if !ack.Accepted {
		RespondBadRequest(c, ack.Reason)
		return
	}

	RespondAccepted(c, TransferResponse{
		TransactionID: txID,
		Status:        string(saga.StatusAwaitingReady),
	})
}

// GetByID retrieves a saga's current state, returning 404 for transactions
// that were never started.
func (h *TransferHandler) GetByID(c *gin.Context) {
	txID := c.Param("id")
	if txID == "" {
		RespondBadRequest(c, "Invalid transaction ID")
		return
	}

	askCtx, cancel := withAskTimeout(c)
	defer cancel()

	reply, err := h.router.Ask(askCtx, shared.SagaKind, txID, func(replyTo runtime.Ref) runtime.Message {
		return saga.GetSagaState{ReplyTo: replyTo}
	})
	if err != nil {
		h.respondAskFailure(c, err, "get transfer", txID)
		return
	}

	snapshot, ok := reply.(saga.StateSnapshot)
	if !ok {
		h.logger.Error("Unexpected reply to get transfer", "tx_id", txID)
		RespondInternalError(c)
		return
	}

	if snapshot.Status == saga.StatusPending {
		RespondNotFound(c, "Transfer not found")
		return
	}

	RespondOK(c, TransferResponse{
		TransactionID: snapshot.TxID,
		Status:        string(snapshot.Status),
		Outcome:       string(snapshot.Outcome),
		Participants:  snapshot.Participants,
		Ready:         snapshot.Ready,
		Rejected:      snapshot.Rejected,
		Cleared:       snapshot.Cleared,
		Reversed:      snapshot.Reversed,
	})
}

func (h *TransferHandler) respondAskFailure(c *gin.Context, err error, operation, txID string) {
	if errors.Is(err, context.DeadlineExceeded) {
		h.logger.Error("Timed out waiting for saga entity", "operation", operation, "tx_id", txID)
		RespondGatewayTimeout(c, "Timed out waiting for transfer")
		return
	}
	h.logger.Error("Failed to reach saga entity", "operation", operation, "tx_id", txID, "error", err)
	RespondInternalError(c)
}

func mapMovements(requests []MovementRequest) ([]saga.Movement, error) {
	movements := make([]saga.Movement, 0, len(requests))
	for _, r := range requests {
		amount, err := money.Parse(r.Amount)
		if err != nil {
			return nil, errors.New("invalid amount for account " + r.AccountNumber + ": " + r.Amount)
		}
		movements = append(movements, saga.Movement{
			AccountNumber: r.AccountNumber,
			Amount:        amount,
		})
	}
	return movements, nil
}
