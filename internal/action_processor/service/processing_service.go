package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/domain/contract"
	"github.com/pawnmarket-contract-engine/internal/workflow"
)

type ProcessingServiceImpl struct {
	workflow SlipWorkflow
	logger   *slog.Logger
}

func NewProcessingService(wf SlipWorkflow, logger *slog.Logger) ProcessingService {
	return &ProcessingServiceImpl{
		workflow: wf,
		logger:   logger,
	}
}

// ProcessSubmission runs one slip through the workflow. Outcomes that a
// redelivery cannot change are acknowledged by returning nil; any other
// failure is returned so the offset is not committed.
func (s *ProcessingServiceImpl) ProcessSubmission(ctx context.Context, msg *action.SlipSubmitted) error {
	logger := s.logger
	if msg.CorrelationID != "" {
		logger = s.logger.With("correlation_id", msg.CorrelationID)
	}
	logger = logger.With(
		"submission_id", msg.SubmissionID.String(),
		"request_id", msg.RequestID.String(),
		"leg", string(msg.Leg),
	)

	logger.Info("Processing slip submission")

	r, err := s.workflow.SubmitSlip(ctx, workflow.SlipSubmission{
		RequestID: msg.RequestID,
		Leg:       msg.Leg,
		SlipURL:   msg.SlipURL,
	})
	if err != nil {
		if reason, final := permanent(err); final {
			logger.Warn("Slip submission dropped", "reason", reason, "error", err)
			return nil
		}
		logger.Error("Failed to process slip submission", "error", err)
		return fmt.Errorf("processing slip submission %s failed: %w", msg.SubmissionID, err)
	}

	logger.Info("Slip submission processed", "status", string(r.Status))
	return nil
}

// permanent reports whether err is final for this submission. A stored
// attempt is never replayed, since a replay would consume another attempt.
func permanent(err error) (string, bool) {
	var collab *workflow.CollaboratorError
	switch {
	case errors.Is(err, action.ErrAlreadyProcessed):
		return "already_processed", true
	case errors.Is(err, action.ErrInvalidState):
		return "invalid_state", true
	case errors.Is(err, action.ErrRequestNotFound{}):
		return "request_not_found", true
	case errors.Is(err, contract.ErrContractNotFound{}):
		return "contract_not_found", true
	case errors.Is(err, action.ErrUnknownLeg),
		errors.Is(err, action.ErrNotInvestorFunded),
		errors.Is(err, action.ErrMissingEvidence):
		return "invalid_submission", true
	case errors.Is(err, workflow.ErrFatalInvariant):
		return "fatal_invariant", true
	case errors.As(err, &collab):
		return "attempt_consumed", true
	}
	return "", false
}
