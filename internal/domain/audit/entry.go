package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entry is an immutable record of one committed state transition.
type Entry struct {
	ID              uuid.UUID           `json:"id"`
	RequestID       uuid.UUID           `json:"request_id"`
	ContractID      uuid.UUID           `json:"contract_id"`
	Event           string              `json:"event"`
	FromStatus      string              `json:"from_status"`
	ToStatus        string              `json:"to_status"`
	Actor           string              `json:"actor"`
	PrincipalBefore decimal.NullDecimal `json:"principal_before"`
	PrincipalAfter  decimal.NullDecimal `json:"principal_after"`
	EndDateBefore   *time.Time          `json:"end_date_before,omitempty"`
	EndDateAfter    *time.Time          `json:"end_date_after,omitempty"`
	Details         map[string]string   `json:"details,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// Repository stores audit entries; Append is idempotent on Entry.ID.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	ListByRequest(ctx context.Context, requestID uuid.UUID, limit, offset int) ([]*Entry, error)
	CountByRequest(ctx context.Context, requestID uuid.UUID) (int64, error)
}
