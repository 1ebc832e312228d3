package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/domain/audit"
	"github.com/pawnmarket-contract-engine/internal/domain/contract"
	"github.com/pawnmarket-contract-engine/internal/domain/evidence"
	"github.com/pawnmarket-contract-engine/internal/domain/verification"
	"github.com/pawnmarket-contract-engine/internal/workflow"
)

// ActionServiceImpl implements the ActionService interface
type ActionServiceImpl struct {
	workflow Workflow
	store    evidence.Store
	logger   *slog.Logger
}

func NewActionService(logger *slog.Logger, wf Workflow, store evidence.Store) ActionService {
	return &ActionServiceImpl{
		workflow: wf,
		store:    store,
		logger:   logger,
	}
}

func (s *ActionServiceImpl) Preview(ctx context.Context, contractID uuid.UUID, typ action.Type, amount decimal.Decimal) (*action.Quote, error) {
	return s.workflow.Preview(ctx, contractID, typ, amount)
}

func (s *ActionServiceImpl) CreateRequest(ctx context.Context, in workflow.CreateRequestInput) (*action.Request, error) {
	return s.workflow.CreateRequest(ctx, in)
}

func (s *ActionServiceImpl) GetRequest(ctx context.Context, id uuid.UUID) (*action.Request, error) {
	return s.workflow.GetRequest(ctx, id)
}

func (s *ActionServiceImpl) ListRequests(ctx context.Context, contractID uuid.UUID, page, perPage int) ([]*action.Request, int64, error) {
	return s.workflow.ListRequests(ctx, contractID, perPage, (page-1)*perPage)
}

func (s *ActionServiceImpl) DecideInvestor(ctx context.Context, d workflow.InvestorDecision) (*action.Request, error) {
	return s.workflow.DecideInvestor(ctx, d)
}

// Sign checks the caller before storing anything, so a stranger's upload
// never lands in the evidence bucket.
func (s *ActionServiceImpl) Sign(ctx context.Context, requestID, pawnerID uuid.UUID, signature Upload) (*action.Request, error) {
	r, err := s.workflow.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.PawnerID != pawnerID {
		return nil, contract.ErrNotContractPawner
	}

	url, err := s.store.Upload(ctx, signature.Filename, signature.ContentType, signature.Data)
	if err != nil {
		s.logger.Error("Failed to store signature",
			"request_id", requestID.String(),
			"error", err,
		)
		return nil, err
	}
	return s.workflow.Sign(ctx, requestID, pawnerID, url)
}

func (s *ActionServiceImpl) ConfirmReceipt(ctx context.Context, requestID, pawnerID uuid.UUID) (*action.Request, error) {
	return s.workflow.ConfirmReceipt(ctx, requestID, pawnerID)
}

func (s *ActionServiceImpl) Cancel(ctx context.Context, requestID, pawnerID uuid.UUID, reason string) (*action.Request, error) {
	return s.workflow.Cancel(ctx, requestID, pawnerID, reason)
}

func (s *ActionServiceImpl) ListVerifications(ctx context.Context, requestID uuid.UUID) ([]*verification.Record, error) {
	return s.workflow.ListVerifications(ctx, requestID)
}

func (s *ActionServiceImpl) ListAudit(ctx context.Context, requestID uuid.UUID, page, perPage int) ([]*audit.Entry, int64, error) {
	return s.workflow.ListAudit(ctx, requestID, perPage, (page-1)*perPage)
}
