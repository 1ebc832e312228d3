package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/platform/persistence"
)

const uniqueViolation = "23505"

const actionRequestColumns = `id, contract_id, pawner_id, investor_id, action_type, requested_amount, quote, status,
		pawner_attempts, investor_attempts, pawner_slip_url, investor_slip_url, signature_url,
		pawner_verification, investor_verification, void_reason, investor_reject_reason,
		pawner_verified_at, investor_decided_at, investor_transferred_at, completed_at, voided_at, ledger_applied_at,
		version, created_at, updated_at`

// ActionRequestRepository implements the action.Repository interface for PostgreSQL
type ActionRequestRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewActionRequestRepository creates a new PostgreSQL action request repository
func NewActionRequestRepository(logger *slog.Logger, db *persistence.PostgresDB) action.Repository {
	return &ActionRequestRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository that runs every statement on tx.
func (r *ActionRequestRepository) WithTx(tx pgx.Tx) action.Repository {
	return &ActionRequestRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func scanActionRequest(row pgx.Row) (*action.Request, error) {
	var (
		req   action.Request
		quote []byte
	)
	err := row.Scan(
		&req.ID,
		&req.ContractID,
		&req.PawnerID,
		&req.InvestorID,
		&req.ActionType,
		&req.RequestedAmount,
		&quote,
		&req.Status,
		&req.PawnerAttempts,
		&req.InvestorAttempts,
		&req.PawnerSlipURL,
		&req.InvestorSlipURL,
		&req.SignatureURL,
		&req.PawnerVerification,
		&req.InvestorVerification,
		&req.VoidReason,
		&req.InvestorRejectReason,
		&req.PawnerVerifiedAt,
		&req.InvestorDecidedAt,
		&req.InvestorTransferredAt,
		&req.CompletedAt,
		&req.VoidedAt,
		&req.LedgerAppliedAt,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(quote, &req.Quote); err != nil {
		return nil, fmt.Errorf("failed to decode frozen quote: %w", err)
	}
	return &req, nil
}

// Create stores a new action request. A second open request for the same
// contract violates a partial unique index and is reported as ErrOpenRequestExists.
func (r *ActionRequestRepository) Create(ctx context.Context, req *action.Request) error {
	quote, err := json.Marshal(req.Quote)
	if err != nil {
		return fmt.Errorf("failed to encode quote: %w", err)
	}

	query := `
		INSERT INTO action_requests (` + actionRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
	`

	_, err = r.querier.Exec(ctx, query,
		req.ID,
		req.ContractID,
		req.PawnerID,
		req.InvestorID,
		req.ActionType,
		req.RequestedAmount,
		quote,
		req.Status,
		req.PawnerAttempts,
		req.InvestorAttempts,
		req.PawnerSlipURL,
		req.InvestorSlipURL,
		req.SignatureURL,
		req.PawnerVerification,
		req.InvestorVerification,
		req.VoidReason,
		req.InvestorRejectReason,
		req.PawnerVerifiedAt,
		req.InvestorDecidedAt,
		req.InvestorTransferredAt,
		req.CompletedAt,
		req.VoidedAt,
		req.LedgerAppliedAt,
		req.Version,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return action.ErrOpenRequestExists
		}
		r.logger.Error("Failed to create action request", "id", req.ID.String(), "error", err)
		return fmt.Errorf("failed to create action request: %w", err)
	}

	return nil
}

// GetByID retrieves an action request by its ID
func (r *ActionRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*action.Request, error) {
	query := `
		SELECT ` + actionRequestColumns + `
		FROM action_requests
		WHERE id = $1
	`

	req, err := scanActionRequest(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, action.ErrRequestNotFound{ID: id}
		}
		r.logger.Error("Failed to get action request", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get action request: %w", err)
	}

	return req, nil
}

// ListByContract returns a page of a contract's requests, newest first
func (r *ActionRequestRepository) ListByContract(ctx context.Context, contractID uuid.UUID, limit, offset int) ([]*action.Request, error) {
	query := `
		SELECT ` + actionRequestColumns + `
		FROM action_requests
		WHERE contract_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, contractID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list action requests", "contract_id", contractID.String(), "error", err)
		return nil, fmt.Errorf("failed to list action requests: %w", err)
	}
	defer rows.Close()

	var requests []*action.Request
	for rows.Next() {
		req, err := scanActionRequest(rows)
		if err != nil {
			r.logger.Error("Failed to scan action request", "error", err)
			return nil, fmt.Errorf("failed to scan action request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over action requests", "error", err)
		return nil, fmt.Errorf("error iterating over action requests: %w", err)
	}

	return requests, nil
}

// CountByContract returns the total number of requests of a contract
func (r *ActionRequestRepository) CountByContract(ctx context.Context, contractID uuid.UUID) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM action_requests
		WHERE contract_id = $1
	`

	var count int64
	if err := r.querier.QueryRow(ctx, query, contractID).Scan(&count); err != nil {
		r.logger.Error("Failed to count action requests", "contract_id", contractID.String(), "error", err)
		return 0, fmt.Errorf("failed to count action requests: %w", err)
	}

	return count, nil
}

// GetOpenByContract returns the contract's non-terminal request, or nil when there is none
func (r *ActionRequestRepository) GetOpenByContract(ctx context.Context, contractID uuid.UUID) (*action.Request, error) {
	query := `
		SELECT ` + actionRequestColumns + `
		FROM action_requests
		WHERE contract_id = $1 AND NOT (status = ANY($2::text[]))
		ORDER BY created_at DESC
		LIMIT 1
	`

	terminal := action.StatusStrings(action.TerminalStatuses())
	req, err := scanActionRequest(r.querier.QueryRow(ctx, query, contractID, terminal))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get open action request", "contract_id", contractID.String(), "error", err)
		return nil, fmt.Errorf("failed to get open action request: %w", err)
	}

	return req, nil
}

// UpdateConditional is the compare-and-transition write: it succeeds only
// when the stored row is still at the previous version, in one of the from
// statuses, and has no ledger effect recorded.
func (r *ActionRequestRepository) UpdateConditional(ctx context.Context, req *action.Request, from []action.Status) error {
	query := `
		UPDATE action_requests
		SET status = $1, pawner_attempts = $2, investor_attempts = $3,
			pawner_slip_url = $4, investor_slip_url = $5, signature_url = $6,
			pawner_verification = $7, investor_verification = $8, void_reason = $9, investor_reject_reason = $10,
			pawner_verified_at = $11, investor_decided_at = $12, investor_transferred_at = $13,
			completed_at = $14, voided_at = $15, ledger_applied_at = $16,
			version = $17, updated_at = $18
		WHERE id = $19 AND version = $20 AND status = ANY($21::text[]) AND ledger_applied_at IS NULL
	`

	result, err := r.querier.Exec(ctx, query,
		req.Status,
		req.PawnerAttempts,
		req.InvestorAttempts,
		req.PawnerSlipURL,
		req.InvestorSlipURL,
		req.SignatureURL,
		req.PawnerVerification,
		req.InvestorVerification,
		req.VoidReason,
		req.InvestorRejectReason,
		req.PawnerVerifiedAt,
		req.InvestorDecidedAt,
		req.InvestorTransferredAt,
		req.CompletedAt,
		req.VoidedAt,
		req.LedgerAppliedAt,
		req.Version,
		req.UpdatedAt,
		req.ID,
		req.Version-1,
		action.StatusStrings(from),
	)
	if err != nil {
		r.logger.Error("Failed to update action request",
			"id", req.ID.String(),
			"status", string(req.Status),
			"error", err,
		)
		return fmt.Errorf("failed to update action request: %w", err)
	}

	if result.RowsAffected() == 0 {
		return action.ErrConcurrentModification{ID: req.ID}
	}

	return nil
}
