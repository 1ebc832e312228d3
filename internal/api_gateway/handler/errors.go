package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pawnmarket-contract-engine/internal/accrual"
	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/domain/contract"
	"github.com/pawnmarket-contract-engine/internal/domain/evidence"
	"github.com/pawnmarket-contract-engine/internal/workflow"
)

var badRequestErrors = []error{
	action.ErrInvalidAmount,
	action.ErrUnknownActionType,
	action.ErrNotInvestorFunded,
	action.ErrMissingRejectCause,
	action.ErrUnknownLeg,
	action.ErrMissingEvidence,
	evidence.ErrEmptyUpload,
	evidence.ErrUnsupportedType,
}

var conflictErrors = []error{
	action.ErrInvalidState,
	action.ErrAlreadyProcessed,
	action.ErrOpenRequestExists,
	contract.ErrContractNotActive,
	accrual.ErrNoDuration,
}

// respondError maps a service error onto the response envelope. Anything
// unrecognised is logged and hidden behind a 500.
func respondError(c *gin.Context, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, action.ErrRequestNotFound{}):
		RespondNotFound(c, "Action request not found")
		return
	case errors.Is(err, contract.ErrContractNotFound{}):
		RespondNotFound(c, "Contract not found")
		return
	case errors.Is(err, evidence.ErrNotFound):
		RespondNotFound(c, "Evidence not found")
		return
	case errors.Is(err, contract.ErrNotContractPawner), errors.Is(err, contract.ErrNotContractInvestor):
		RespondForbidden(c, err.Error())
		return
	}

	var collab *workflow.CollaboratorError
	if errors.As(err, &collab) {
		logger.Error("Failed to "+op, "error", err, "collaborator", collab.Op)
		RespondServiceUnavailable(c)
		return
	}

	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			RespondWithError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
			return
		}
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			RespondConflict(c, err.Error())
			return
		}
	}

	logger.Error("Failed to "+op, "error", err)
	RespondInternalError(c)
}
