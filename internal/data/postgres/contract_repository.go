// Package postgres provides PostgreSQL implementations of the domain repositories.
// Every repository can be rebound to a transaction with WithTx so that a state
// change and its outbox rows commit together.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pawnmarket-contract-engine/internal/domain/contract"
	"github.com/pawnmarket-contract-engine/internal/platform/persistence"
)

const contractColumns = `id, pawner_id, investor_id, drop_point_id, status,
		item_estimated_value, loan_principal_amount, original_principal_amount, current_principal_amount,
		interest_rate, platform_fee_rate, interest_amount,
		contract_start_date, contract_end_date, contract_duration_days,
		total_interest_paid, total_fee_paid, total_principal_reduced, total_principal_increased,
		extension_count, version, created_at, updated_at`

// ContractRepository implements the contract.Repository interface for PostgreSQL
type ContractRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewContractRepository creates a new PostgreSQL contract repository.
func NewContractRepository(logger *slog.Logger, db *persistence.PostgresDB) contract.Repository {
	return &ContractRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository that runs every statement on tx.
func (r *ContractRepository) WithTx(tx pgx.Tx) contract.Repository {
	return &ContractRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func scanContract(row pgx.Row) (*contract.Contract, error) {
	var c contract.Contract
	err := row.Scan(
		&c.ID,
		&c.PawnerID,
		&c.InvestorID,
		&c.DropPointID,
		&c.Status,
		&c.ItemEstimatedValue,
		&c.LoanPrincipalAmount,
		&c.OriginalPrincipalAmount,
		&c.CurrentPrincipalAmount,
		&c.InterestRate,
		&c.PlatformFeeRate,
		&c.InterestAmount,
		&c.ContractStartDate,
		&c.ContractEndDate,
		&c.ContractDurationDays,
		&c.TotalInterestPaid,
		&c.TotalFeePaid,
		&c.TotalPrincipalReduced,
		&c.TotalPrincipalIncreased,
		&c.ExtensionCount,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create stores a new contract. Contracts are onboarded elsewhere; this is
// used for seeding.
func (r *ContractRepository) Create(ctx context.Context, c *contract.Contract) error {
	query := `
		INSERT INTO contracts (` + contractColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`

	_, err := r.querier.Exec(ctx, query,
		c.ID,
		c.PawnerID,
		c.InvestorID,
		c.DropPointID,
		c.Status,
		c.ItemEstimatedValue,
		c.LoanPrincipalAmount,
		c.OriginalPrincipalAmount,
		c.CurrentPrincipalAmount,
		c.InterestRate,
		c.PlatformFeeRate,
		c.InterestAmount,
		c.ContractStartDate,
		c.ContractEndDate,
		c.ContractDurationDays,
		c.TotalInterestPaid,
		c.TotalFeePaid,
		c.TotalPrincipalReduced,
		c.TotalPrincipalIncreased,
		c.ExtensionCount,
		c.Version,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create contract", "id", c.ID.String(), "error", err)
		return fmt.Errorf("failed to create contract: %w", err)
	}

	return nil
}

// GetByID retrieves a contract by its ID
func (r *ContractRepository) GetByID(ctx context.Context, id uuid.UUID) (*contract.Contract, error) {
	query := `
		SELECT ` + contractColumns + `
		FROM contracts
		WHERE id = $1
	`

	c, err := scanContract(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contract.ErrContractNotFound{ID: id}
		}
		r.logger.Error("Failed to get contract", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}

	return c, nil
}

// LockForUpdate obtains a row lock on the contract and returns its current state.
// It must run inside a transaction.
func (r *ContractRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*contract.Contract, error) {
	query := `
		SELECT ` + contractColumns + `
		FROM contracts
		WHERE id = $1
		FOR UPDATE
	`

	c, err := scanContract(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contract.ErrContractNotFound{ID: id}
		}
		r.logger.Error("Failed to lock contract for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock contract for update: %w", err)
	}

	return c, nil
}

// Update writes the mutable ledger fields, checking the previous version
func (r *ContractRepository) Update(ctx context.Context, c *contract.Contract) error {
	query := `
		UPDATE contracts
		SET status = $1, loan_principal_amount = $2, current_principal_amount = $3, interest_amount = $4,
			contract_end_date = $5, total_interest_paid = $6, total_fee_paid = $7,
			total_principal_reduced = $8, total_principal_increased = $9, extension_count = $10,
			version = $11, updated_at = $12
		WHERE id = $13 AND version = $14
	`

	result, err := r.querier.Exec(ctx, query,
		c.Status,
		c.LoanPrincipalAmount,
		c.CurrentPrincipalAmount,
		c.InterestAmount,
		c.ContractEndDate,
		c.TotalInterestPaid,
		c.TotalFeePaid,
		c.TotalPrincipalReduced,
		c.TotalPrincipalIncreased,
		c.ExtensionCount,
		c.Version,
		c.UpdatedAt,
		c.ID,
		c.Version-1, // Check previous version for optimistic locking
	)
	if err != nil {
		r.logger.Error("Failed to update contract", "id", c.ID.String(), "error", err)
		return fmt.Errorf("failed to update contract: %w", err)
	}

	if result.RowsAffected() == 0 {
		return contract.ErrConcurrentModification{ID: c.ID}
	}

	return nil
}

// ListActive returns up to limit active contracts with id greater than after.
func (r *ContractRepository) ListActive(ctx context.Context, after uuid.UUID, limit int) ([]*contract.Contract, error) {
	query := `
		SELECT ` + contractColumns + `
		FROM contracts
		WHERE status = $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3
	`

	rows, err := r.querier.Query(ctx, query, contract.StatusActive, after, limit)
	if err != nil {
		r.logger.Error("Failed to list active contracts", "error", err)
		return nil, fmt.Errorf("failed to list active contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*contract.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			r.logger.Error("Failed to scan contract", "error", err)
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		contracts = append(contracts, c)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over contracts", "error", err)
		return nil, fmt.Errorf("error iterating over contracts: %w", err)
	}

	return contracts, nil
}
