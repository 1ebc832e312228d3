package handler

import (
	"github.com/shopspring/decimal"
)

// QuoteQuery represents the query string of a quote preview
type QuoteQuery struct {
	ActionType string `form:"action_type" binding:"required,oneof=INTEREST_PAYMENT PRINCIPAL_REDUCTION PRINCIPAL_INCREASE"`
	Amount     string `form:"amount"` // Ignored for interest payments
}

// CreateActionRequest represents a pawner confirming a previewed quote
type CreateActionRequest struct {
	ContractID string          `json:"contract_id" binding:"required,uuid"`
	ActionType string          `json:"action_type" binding:"required,oneof=INTEREST_PAYMENT PRINCIPAL_REDUCTION PRINCIPAL_INCREASE"`
	Amount     decimal.Decimal `json:"amount"`
}

// InvestorDecisionRequest represents the investor's answer to a principal increase
type InvestorDecisionRequest struct {
	Approve *bool  `json:"approve" binding:"required"`
	Reason  string `json:"reason" binding:"max=500"`
}

// CancelActionRequest represents a pawner withdrawing an unpaid request
type CancelActionRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// SlipAcceptedResponse acknowledges a slip queued for verification
type SlipAcceptedResponse struct {
	SubmissionID string `json:"submission_id"`
	RequestID    string `json:"request_id"`
	Leg          string `json:"leg"`
	SlipURL      string `json:"slip_url"`
	Status       string `json:"status"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=10" binding:"min=1,max=100"`
}
