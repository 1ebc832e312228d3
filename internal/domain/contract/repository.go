package contract

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines contract persistence operations
type Repository interface {
	Create(ctx context.Context, c *Contract) error
	GetByID(ctx context.Context, id uuid.UUID) (*Contract, error)

	// LockForUpdate acquires a row lock for the ledger mutation transaction
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Contract, error)

	// Update persists a mutated contract; c.Version must already be incremented
	Update(ctx context.Context, c *Contract) error

	// ListActive returns active contracts in id order, keyset-paginated after the given id
	ListActive(ctx context.Context, after uuid.UUID, limit int) ([]*Contract, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrContractNotFound indicates missing contract
type ErrContractNotFound struct {
	ID uuid.UUID
}

func (e ErrContractNotFound) Error() string {
	return "contract not found: " + e.ID.String()
}

// Is matches any ErrContractNotFound when the target carries no ID
func (e ErrContractNotFound) Is(target error) bool {
	t, ok := target.(ErrContractNotFound)
	if !ok {
		return false
	}
	if t.ID == uuid.Nil {
		return true
	}
	return e.ID == t.ID
}

// ErrConcurrentModification indicates optimistic lock failure
type ErrConcurrentModification struct {
	ID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for contract: " + e.ID.String()
}
