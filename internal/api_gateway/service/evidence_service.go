package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/domain/contract"
	"github.com/pawnmarket-contract-engine/internal/domain/evidence"
	"github.com/pawnmarket-contract-engine/internal/platform/messaging/producers"
	"github.com/pawnmarket-contract-engine/internal/workflow"
)

// EvidenceServiceImpl implements the EvidenceService interface
type EvidenceServiceImpl struct {
	workflow Workflow
	store    evidence.Store
	producer producers.MessagePublisher
	logger   *slog.Logger
}

func NewEvidenceService(logger *slog.Logger, wf Workflow, store evidence.Store, producer producers.MessagePublisher) EvidenceService {
	return &EvidenceServiceImpl{
		workflow: wf,
		store:    store,
		producer: producer,
		logger:   logger,
	}
}

// SubmitSlip rejects a slip the request cannot take before storing it, so no
// attempt is spent on an upload that would be refused anyway. The attempt is
// consumed by the processor, not here.
func (s *EvidenceServiceImpl) SubmitSlip(ctx context.Context, upload SlipUpload) (*action.SlipSubmitted, error) {
	logger := s.logger.With(
		"request_id", upload.RequestID.String(),
		"leg", string(upload.Leg),
	)
	if upload.CorrelationID != "" {
		logger = logger.With("correlation_id", upload.CorrelationID)
	}

	if err := evidence.CheckUpload(upload.File.ContentType, upload.File.Data); err != nil {
		return nil, err
	}

	r, err := s.workflow.CheckSlip(ctx, upload.RequestID, upload.Leg)
	if err != nil {
		return nil, err
	}
	if upload.Leg == action.LegPawner && r.PawnerID != upload.ActorID {
		return nil, contract.ErrNotContractPawner
	}
	if upload.Leg == action.LegInvestor && r.InvestorID != upload.ActorID {
		return nil, contract.ErrNotContractInvestor
	}

	url, err := s.store.Upload(ctx, upload.File.Filename, upload.File.ContentType, upload.File.Data)
	if err != nil {
		logger.Error("Failed to store slip", "error", err)
		return nil, &workflow.CollaboratorError{Op: "store slip", Err: err}
	}

	msg := &action.SlipSubmitted{
		SubmissionID:   uuid.New(),
		RequestID:      upload.RequestID,
		Leg:            upload.Leg,
		SlipURL:        url,
		IdempotencyKey: upload.IdempotencyKey,
		CorrelationID:  upload.CorrelationID,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.producer.Publish(ctx, msg.RequestID.String(), msg); err != nil {
		logger.Error("Failed to publish slip submission", "slip_url", url, "error", err)
		return nil, &workflow.CollaboratorError{Op: "publish slip submission", Err: err}
	}

	logger.Info("Slip submission queued",
		"submission_id", msg.SubmissionID.String(),
		"slip_url", url,
	)
	return msg, nil
}

func (s *EvidenceServiceImpl) Open(ctx context.Context, id string) (*evidence.Object, error) {
	obj, err := s.store.Open(ctx, id)
	if err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			return nil, err
		}
		return nil, &workflow.CollaboratorError{Op: "open evidence", Err: err}
	}
	return obj, nil
}
