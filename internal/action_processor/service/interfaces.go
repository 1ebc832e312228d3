package service

import (
	"context"

	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/workflow"
)

// ProcessingService verifies slip submissions taken off the evidence topic.
type ProcessingService interface {
	ProcessSubmission(ctx context.Context, msg *action.SlipSubmitted) error
}

// SlipWorkflow is the part of the workflow service the processor drives.
type SlipWorkflow interface {
	SubmitSlip(ctx context.Context, sub workflow.SlipSubmission) (*action.Request, error)
}
