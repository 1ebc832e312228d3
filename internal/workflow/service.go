// Package workflow drives action requests from quote to ledger mutation.
// Every status change is a conditional write against the request's valid
// predecessor statuses; audit entries and notifications are enqueued in the
// same transaction and delivered after commit.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pawnmarket-contract-engine/internal/accrual"
	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/domain/audit"
	"github.com/pawnmarket-contract-engine/internal/domain/contract"
	"github.com/pawnmarket-contract-engine/internal/domain/outbox"
	"github.com/pawnmarket-contract-engine/internal/domain/verification"
	"github.com/pawnmarket-contract-engine/internal/platform/persistence"
)

// DefaultMaxSlipAttempts is the per-leg attempt cap. Stored attempt counters
// are constrained to it, so larger values fall back to it.
const DefaultMaxSlipAttempts = 2

// Service owns the lifecycle of action requests.
type Service struct {
	db            persistence.TxRunner
	contracts     contract.Repository
	requests      action.Repository
	outbox        outbox.Repository
	verifications verification.Repository
	audits        audit.Repository
	verifier      verification.Verifier
	calendar      accrual.Calendar
	maxAttempts   int
	logger        *slog.Logger
}

// Dependencies groups the collaborators of a Service.
type Dependencies struct {
	DB            persistence.TxRunner
	Contracts     contract.Repository
	Requests      action.Repository
	Outbox        outbox.Repository
	Verifications verification.Repository
	Audits        audit.Repository
	Verifier      verification.Verifier
	Calendar      accrual.Calendar
	MaxAttempts   int
}

func NewService(deps Dependencies, logger *slog.Logger) *Service {
	maxAttempts := deps.MaxAttempts
	if maxAttempts <= 0 || maxAttempts > DefaultMaxSlipAttempts {
		maxAttempts = DefaultMaxSlipAttempts
	}
	return &Service{
		db:            deps.DB,
		contracts:     deps.Contracts,
		requests:      deps.Requests,
		outbox:        deps.Outbox,
		verifications: deps.Verifications,
		audits:        deps.Audits,
		verifier:      deps.Verifier,
		calendar:      deps.Calendar,
		maxAttempts:   maxAttempts,
		logger:        logger,
	}
}

// CreateRequestInput is a pawner's confirmation of a previewed quote.
type CreateRequestInput struct {
	ContractID uuid.UUID
	PawnerID   uuid.UUID
	ActionType action.Type
	Amount     decimal.Decimal
}

// Preview computes the quote of an action without storing anything.
func (s *Service) Preview(ctx context.Context, contractID uuid.UUID, typ action.Type, amount decimal.Decimal) (*action.Quote, error) {
	kind, err := action.KindOf(typ)
	if err != nil {
		return nil, err
	}

	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !c.IsActive() {
		return nil, fmt.Errorf("%w: %s", contract.ErrContractNotActive, c.Status)
	}

	q, err := kind.Quote(c, amount, s.calendar.Today())
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// CreateRequest freezes a fresh quote on a new request awaiting the pawner's payment.
func (s *Service) CreateRequest(ctx context.Context, in CreateRequestInput) (*action.Request, error) {
	logger := s.logger.With("contract_id", in.ContractID.String(), "action_type", string(in.ActionType))

	kind, err := action.KindOf(in.ActionType)
	if err != nil {
		return nil, err
	}

	c, err := s.contracts.GetByID(ctx, in.ContractID)
	if err != nil {
		return nil, err
	}
	if c.PawnerID != in.PawnerID {
		return nil, contract.ErrNotContractPawner
	}

	q, err := kind.Quote(c, in.Amount, s.calendar.Today())
	if err != nil {
		return nil, err
	}

	req, err := action.NewRequest(c, q, s.calendar.Now())
	if err != nil {
		return nil, err
	}

	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		requestsTx := s.requests.WithTx(tx)

		open, err := requestsTx.GetOpenByContract(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("failed to check open requests: %w", err)
		}
		if open != nil {
			return fmt.Errorf("%w: %s", action.ErrOpenRequestExists, open.ID)
		}

		if err := requestsTx.Create(ctx, req); err != nil {
			return err
		}

		ev := transition{event: "CREATE", to: req.Status, actor: pawnerActor(req)}
		return s.enqueue(ctx, tx, req, ev, nil, nil)
	})
	if err != nil {
		if !errors.Is(err, action.ErrOpenRequestExists) {
			logger.Error("Failed to create action request", "error", err)
		}
		return nil, err
	}

	logger.Info("Action request created",
		"request_id", req.ID.String(),
		"amount_due", req.Quote.AmountDue.String())
	return req, nil
}

// GetRequest returns one action request.
func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (*action.Request, error) {
	return s.requests.GetByID(ctx, id)
}

// ListRequests returns a page of a contract's requests, newest first, and the total count.
func (s *Service) ListRequests(ctx context.Context, contractID uuid.UUID, limit, offset int) ([]*action.Request, int64, error) {
	if _, err := s.contracts.GetByID(ctx, contractID); err != nil {
		return nil, 0, err
	}

	requests, err := s.requests.ListByContract(ctx, contractID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.requests.CountByContract(ctx, contractID)
	if err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

// ListVerifications returns every slip verification attempt of a request.
func (s *Service) ListVerifications(ctx context.Context, requestID uuid.UUID) ([]*verification.Record, error) {
	if _, err := s.requests.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	records, err := s.verifications.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, collaboratorFailure("list verifications", err)
	}
	return records, nil
}

// ListAudit returns a page of a request's audit trail, oldest first, and the total count.
func (s *Service) ListAudit(ctx context.Context, requestID uuid.UUID, limit, offset int) ([]*audit.Entry, int64, error) {
	if _, err := s.requests.GetByID(ctx, requestID); err != nil {
		return nil, 0, err
	}
	entries, err := s.audits.ListByRequest(ctx, requestID, limit, offset)
	if err != nil {
		return nil, 0, collaboratorFailure("list audit entries", err)
	}
	total, err := s.audits.CountByRequest(ctx, requestID)
	if err != nil {
		return nil, 0, collaboratorFailure("count audit entries", err)
	}
	return entries, total, nil
}

// update persists r after a status change guarded by from. A lost race is
// reported as the state error the caller would have seen a moment later.
func (s *Service) update(ctx context.Context, repo action.Repository, r *action.Request, from []action.Status, ev action.Event) error {
	err := repo.UpdateConditional(ctx, r, from)
	if err == nil {
		return nil
	}
	var conflict action.ErrConcurrentModification
	if !errors.As(err, &conflict) {
		return err
	}

	current, getErr := s.requests.GetByID(ctx, r.ID)
	if getErr != nil {
		return action.StateError{ID: r.ID, Current: r.Status, Event: ev}
	}
	return action.StateError{ID: r.ID, Current: current.Status, Event: ev, AlreadyProcessed: current.IsTerminal()}
}

// checkEvent reports whether ev can fire on r as stored.
func checkEvent(r *action.Request, ev action.Event) error {
	if _, ok := action.Next(r.Status, ev); ok {
		return nil
	}
	return action.StateError{ID: r.ID, Current: r.Status, Event: ev, AlreadyProcessed: r.IsTerminal()}
}
