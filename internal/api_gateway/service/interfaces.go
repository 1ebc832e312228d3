package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/domain/audit"
	"github.com/pawnmarket-contract-engine/internal/domain/evidence"
	"github.com/pawnmarket-contract-engine/internal/domain/verification"
	"github.com/pawnmarket-contract-engine/internal/workflow"
)

// Upload is one evidence file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SlipUpload is a payment slip uploaded by one side of a request.
type SlipUpload struct {
	RequestID      uuid.UUID
	Leg            action.Leg
	ActorID        uuid.UUID
	File           Upload
	IdempotencyKey string
	CorrelationID  string
}

// ActionService defines the request lifecycle operations exposed over HTTP
type ActionService interface {
	Preview(ctx context.Context, contractID uuid.UUID, typ action.Type, amount decimal.Decimal) (*action.Quote, error)
	CreateRequest(ctx context.Context, in workflow.CreateRequestInput) (*action.Request, error)

	// GetRequest returns action.ErrRequestNotFound if the request doesn't exist
	GetRequest(ctx context.Context, id uuid.UUID) (*action.Request, error)

	// ListRequests returns one page of a contract's requests and the total count
	ListRequests(ctx context.Context, contractID uuid.UUID, page, perPage int) ([]*action.Request, int64, error)

	DecideInvestor(ctx context.Context, d workflow.InvestorDecision) (*action.Request, error)

	// Sign stores the signature image and completes the request
	Sign(ctx context.Context, requestID, pawnerID uuid.UUID, signature Upload) (*action.Request, error)
	ConfirmReceipt(ctx context.Context, requestID, pawnerID uuid.UUID) (*action.Request, error)
	Cancel(ctx context.Context, requestID, pawnerID uuid.UUID, reason string) (*action.Request, error)

	ListVerifications(ctx context.Context, requestID uuid.UUID) ([]*verification.Record, error)
	ListAudit(ctx context.Context, requestID uuid.UUID, page, perPage int) ([]*audit.Entry, int64, error)
}

// EvidenceService accepts slip uploads for asynchronous verification and
// serves stored evidence
type EvidenceService interface {
	// SubmitSlip stores the slip and queues it; verification happens in the
	// action processor
	SubmitSlip(ctx context.Context, upload SlipUpload) (*action.SlipSubmitted, error)

	// Open returns evidence.ErrNotFound if no file has the id
	Open(ctx context.Context, id string) (*evidence.Object, error)
}

// Workflow is the slice of the workflow service the gateway drives
type Workflow interface {
	Preview(ctx context.Context, contractID uuid.UUID, typ action.Type, amount decimal.Decimal) (*action.Quote, error)
	CreateRequest(ctx context.Context, in workflow.CreateRequestInput) (*action.Request, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*action.Request, error)
	ListRequests(ctx context.Context, contractID uuid.UUID, limit, offset int) ([]*action.Request, int64, error)
	CheckSlip(ctx context.Context, requestID uuid.UUID, leg action.Leg) (*action.Request, error)
	DecideInvestor(ctx context.Context, d workflow.InvestorDecision) (*action.Request, error)
	Sign(ctx context.Context, requestID, pawnerID uuid.UUID, signatureURL string) (*action.Request, error)
	ConfirmReceipt(ctx context.Context, requestID, pawnerID uuid.UUID) (*action.Request, error)
	Cancel(ctx context.Context, requestID, pawnerID uuid.UUID, reason string) (*action.Request, error)
	ListVerifications(ctx context.Context, requestID uuid.UUID) ([]*verification.Record, error)
	ListAudit(ctx context.Context, requestID uuid.UUID, limit, offset int) ([]*audit.Entry, int64, error)
}

var _ Workflow = (*workflow.Service)(nil)
