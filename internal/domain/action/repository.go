package action

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines action request persistence operations
type Repository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	ListByContract(ctx context.Context, contractID uuid.UUID, limit, offset int) ([]*Request, error)
	CountByContract(ctx context.Context, contractID uuid.UUID) (int64, error)

	// GetOpenByContract returns the non-terminal request of a contract, or nil
	GetOpenByContract(ctx context.Context, contractID uuid.UUID) (*Request, error)

	// UpdateConditional persists r only while the stored row still has
	// version r.Version-1, a status in from, and no ledger effect applied.
	// It returns ErrConcurrentModification when no row matched.
	UpdateConditional(ctx context.Context, r *Request, from []Status) error
	WithTx(tx pgx.Tx) Repository
}
