package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/banking-saga-core/internal/domain/account"
	"github.com/banking-saga-core/internal/domain/shared"
	"github.com/banking-saga-core/internal/runtime"
)

// askTimeout bounds how long a handler waits for an entity reply.
const askTimeout = 5 * time.Second

// AccountHandler handles HTTP requests for account operations
type AccountHandler struct {
	router *runtime.Router
	logger *slog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(logger *slog.Logger, router *runtime.Router) *AccountHandler {
	return &AccountHandler{
		router: router,
		logger: logger,
	}
}

// Create handles creation of a new account. Creation is idempotent: a
// duplicate returns the existing account with 200 instead of 201.
func (h *AccountHandler) Create(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	askCtx, cancel := withAskTimeout(c)
	defer cancel()

	reply, err := h.router.Ask(askCtx, shared.AccountKind, req.AccountNumber, func(replyTo runtime.Ref) runtime.Message {
		return account.CreateBankAccount{
			CustomerNumber: req.CustomerNumber,
			AccountNumber:  req.AccountNumber,
			ReplyTo:        replyTo,
		}
	})
	if err != nil {
		h.respondAskFailure(c, err, "create account", req.AccountNumber)
		return
	}

	ack, ok := reply.(account.CreateAck)
	if !ok {
		h.logger.Error("Unexpected reply to create account", "account_number", req.AccountNumber)
		RespondInternalError(c)
		return
	}

	if ack.AlreadyExists {
		// The account predates this request; answer with its actual state.
		reply, err = h.router.Ask(askCtx, shared.AccountKind, req.AccountNumber, func(replyTo runtime.Ref) runtime.Message {
			return account.GetBankAccountState{ReplyTo: replyTo}
		})
		if err != nil {
			h.respondAskFailure(c, err, "get account", req.AccountNumber)
			return
		}
		if snapshot, ok := reply.(account.StateSnapshot); ok {
			RespondOK(c, mapSnapshotToResponse(req.AccountNumber, snapshot))
			return
		}
		RespondInternalError(c)
		return
	}

	RespondCreated(c, AccountResponse{
		AccountNumber:  ack.AccountNumber,
		CustomerNumber: req.CustomerNumber,
		Status:         string(account.StatusActive),
		Balance:        "0",
		PendingBalance: "0",
	})
}

// GetByID retrieves an account's current state, returning 404 for accounts
// that were never created.
func (h *AccountHandler) GetByID(c *gin.Context) {
	accountNumber := c.Param("id")
	if accountNumber == "" {
		RespondBadRequest(c, "Invalid account number")
		return
	}

	askCtx, cancel := withAskTimeout(c)
	defer cancel()

	reply, err := h.router.Ask(askCtx, shared.AccountKind, accountNumber, func(replyTo runtime.Ref) runtime.Message {
		return account.GetBankAccountState{ReplyTo: replyTo}
	})
	if err != nil {
		h.respondAskFailure(c, err, "get account", accountNumber)
		return
	}

	snapshot, ok := reply.(account.StateSnapshot)
	if !ok {
		h.logger.Error("Unexpected reply to get account", "account_number", accountNumber)
		RespondInternalError(c)
		return
	}

	if snapshot.Status == account.StatusUninitialized {
		RespondNotFound(c, "Account not found")
		return
	}

	RespondOK(c, mapSnapshotToResponse(accountNumber, snapshot))
}

func (h *AccountHandler) respondAskFailure(c *gin.Context, err error, operation, accountNumber string) {
	if errors.Is(err, context.DeadlineExceeded) {
		h.logger.Error("Timed out waiting for account entity", "operation", operation, "account_number", accountNumber)
		RespondGatewayTimeout(c, "Timed out waiting for account")
		return
	}
	h.logger.Error("Failed to reach account entity", "operation", operation, "account_number", accountNumber, "error", err)
	RespondInternalError(c)
}

// mapSnapshotToResponse maps an account state snapshot to a response DTO
func mapSnapshotToResponse(accountNumber string, snapshot account.StateSnapshot) AccountResponse {
	return AccountResponse{
		AccountNumber:        accountNumber,
		CustomerNumber:       snapshot.CustomerNumber,
		Status:               string(snapshot.Status),
		Balance:              snapshot.Balance.String(),
		PendingBalance:       snapshot.PendingBalance.String(),
		CurrentTransactionID: snapshot.CurrentTransactionID,
	}
}

func withAskTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), askTimeout)
}
