package action

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrUnknownActionType  = errors.New("unknown action type")
	ErrInvalidState       = errors.New("action request is not in a valid state for this operation")
	ErrAlreadyProcessed   = errors.New("action request already processed")
	ErrOpenRequestExists  = errors.New("contract already has an open action request")
	ErrNotInvestorFunded  = errors.New("action type has no investor leg")
	ErrMissingRejectCause = errors.New("a reason is required when rejecting")
	ErrUnknownLeg         = errors.New("unknown payment leg")
	ErrMissingEvidence    = errors.New("evidence URL is required")
)

// StateError reports a request that is not in a valid predecessor state.
// It matches ErrInvalidState, and ErrAlreadyProcessed when the targeted leg
// has already been settled.
type StateError struct {
	ID               uuid.UUID
	Current          Status
	Event            Event
	AlreadyProcessed bool
}

func (e StateError) Error() string {
	if e.AlreadyProcessed {
		return fmt.Sprintf("action request %s already processed (status %s)", e.ID, e.Current)
	}
	return fmt.Sprintf("action request %s cannot handle %s in status %s", e.ID, e.Event, e.Current)
}

func (e StateError) Is(target error) bool {
	if target == ErrInvalidState {
		return true
	}
	return e.AlreadyProcessed && target == ErrAlreadyProcessed
}

// ErrRequestNotFound indicates missing action request
type ErrRequestNotFound struct {
	ID uuid.UUID
}

func (e ErrRequestNotFound) Error() string {
	return "action request not found: " + e.ID.String()
}

// Is matches any ErrRequestNotFound when the target carries no ID
func (e ErrRequestNotFound) Is(target error) bool {
	t, ok := target.(ErrRequestNotFound)
	if !ok {
		return false
	}
	if t.ID == uuid.Nil {
		return true
	}
	return e.ID == t.ID
}

// ErrConcurrentModification indicates the conditional update matched no row
type ErrConcurrentModification struct {
	ID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for action request: " + e.ID.String()
}
