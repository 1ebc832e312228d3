package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pawnmarket-contract-engine/internal/api_gateway/service"
	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/workflow"
)

// ActionHandler handles HTTP requests for the action request lifecycle
type ActionHandler struct {
	actionService service.ActionService
	logger        *slog.Logger
}

// NewActionHandler creates a new action handler
func NewActionHandler(logger *slog.Logger, actionService service.ActionService) *ActionHandler {
	return &ActionHandler{
		actionService: actionService,
		logger:        logger,
	}
}

// Quote previews the financial outcome of an action on a contract
func (h *ActionHandler) Quote(c *gin.Context) {
	contractID, ok := pathID(c, "id", "contract ID")
	if !ok {
		return
	}

	var q QuoteQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	amount := decimal.Zero
	if q.Amount != "" {
		var err error
		if amount, err = decimal.NewFromString(q.Amount); err != nil {
			RespondBadRequest(c, "Invalid amount")
			return
		}
	}

	quote, err := h.actionService.Preview(c.Request.Context(), contractID, action.Type(q.ActionType), amount)
	if err != nil {
		respondError(c, h.logger, "preview action", err)
		return
	}
	RespondOK(c, quote)
}

// Create opens an action request for the calling pawner
func (h *ActionHandler) Create(c *gin.Context) {
	pawnerID, ok := actorID(c)
	if !ok {
		return
	}

	var req CreateActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	r, err := h.actionService.CreateRequest(c.Request.Context(), workflow.CreateRequestInput{
		ContractID: uuid.MustParse(req.ContractID),
		PawnerID:   pawnerID,
		ActionType: action.Type(req.ActionType),
		Amount:     req.Amount,
	})
	if err != nil {
		respondError(c, h.logger, "create action request", err)
		return
	}
	RespondCreated(c, r)
}

// GetByID retrieves one action request, returns 404 if not found
func (h *ActionHandler) GetByID(c *gin.Context) {
	id, ok := pathID(c, "id", "action request ID")
	if !ok {
		return
	}

	r, err := h.actionService.GetRequest(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "get action request", err)
		return
	}
	RespondOK(c, r)
}

// ListByContract retrieves a contract's action requests, newest first
func (h *ActionHandler) ListByContract(c *gin.Context) {
	contractID, ok := pathID(c, "id", "contract ID")
	if !ok {
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	requests, total, err := h.actionService.ListRequests(c.Request.Context(), contractID, pagination.Page, pagination.PerPage)
	if err != nil {
		respondError(c, h.logger, "list action requests", err)
		return
	}
	if requests == nil {
		requests = []*action.Request{}
	}
	RespondWithPaginatedData(c, requests, pagination.Page, pagination.PerPage, total)
}

// DecideInvestor records the investor's approval or rejection of a principal increase
func (h *ActionHandler) DecideInvestor(c *gin.Context) {
	id, ok := pathID(c, "id", "action request ID")
	if !ok {
		return
	}
	investorID, ok := actorID(c)
	if !ok {
		return
	}

	var req InvestorDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	r, err := h.actionService.DecideInvestor(c.Request.Context(), workflow.InvestorDecision{
		RequestID:  id,
		InvestorID: investorID,
		Approve:    *req.Approve,
		Reason:     req.Reason,
	})
	if err != nil {
		respondError(c, h.logger, "record investor decision", err)
		return
	}
	RespondOK(c, r)
}

// Sign uploads the pawner's signature and completes a borrower-funded action
func (h *ActionHandler) Sign(c *gin.Context) {
	id, ok := pathID(c, "id", "action request ID")
	if !ok {
		return
	}
	pawnerID, ok := actorID(c)
	if !ok {
		return
	}

	signature, err := readUpload(c)
	if err != nil {
		respondUploadError(c, err)
		return
	}

	r, err := h.actionService.Sign(c.Request.Context(), id, pawnerID, signature)
	if err != nil {
		respondError(c, h.logger, "sign action request", err)
		return
	}
	RespondOK(c, r)
}

// Confirm records the pawner's receipt of the investor's transfer
func (h *ActionHandler) Confirm(c *gin.Context) {
	id, ok := pathID(c, "id", "action request ID")
	if !ok {
		return
	}
	pawnerID, ok := actorID(c)
	if !ok {
		return
	}

	r, err := h.actionService.ConfirmReceipt(c.Request.Context(), id, pawnerID)
	if err != nil {
		respondError(c, h.logger, "confirm receipt", err)
		return
	}
	RespondOK(c, r)
}

// Cancel voids an action request the pawner has not paid yet
func (h *ActionHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id", "action request ID")
	if !ok {
		return
	}
	pawnerID, ok := actorID(c)
	if !ok {
		return
	}

	var req CancelActionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondBadRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	r, err := h.actionService.Cancel(c.Request.Context(), id, pawnerID, req.Reason)
	if err != nil {
		respondError(c, h.logger, "cancel action request", err)
		return
	}
	RespondOK(c, r)
}

// ListVerifications retrieves every slip verification attempt of a request
func (h *ActionHandler) ListVerifications(c *gin.Context) {
	id, ok := pathID(c, "id", "action request ID")
	if !ok {
		return
	}

	records, err := h.actionService.ListVerifications(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "list verifications", err)
		return
	}
	RespondOK(c, records)
}

// ListAudit retrieves a request's audit trail, oldest first
func (h *ActionHandler) ListAudit(c *gin.Context) {
	id, ok := pathID(c, "id", "action request ID")
	if !ok {
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	entries, total, err := h.actionService.ListAudit(c.Request.Context(), id, pagination.Page, pagination.PerPage)
	if err != nil {
		respondError(c, h.logger, "list audit entries", err)
		return
	}
	RespondWithPaginatedData(c, entries, pagination.Page, pagination.PerPage, total)
}
