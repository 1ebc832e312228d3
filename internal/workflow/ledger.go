package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/domain/contract"
	"github.com/pawnmarket-contract-engine/internal/domain/notification"
)

// Sign completes a borrower-funded action once the pawner signs the amendment.
func (s *Service) Sign(ctx context.Context, requestID, pawnerID uuid.UUID, signatureURL string) (*action.Request, error) {
	if signatureURL == "" {
		return nil, action.ErrMissingEvidence
	}
	r, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.PawnerID != pawnerID {
		return nil, contract.ErrNotContractPawner
	}
	return s.complete(ctx, r, action.EventSign, func(r *action.Request) {
		r.SignatureURL = signatureURL
	})
}

// ConfirmReceipt completes a principal increase once the pawner confirms
// the investor's transfer arrived.
func (s *Service) ConfirmReceipt(ctx context.Context, requestID, pawnerID uuid.UUID) (*action.Request, error) {
	r, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.PawnerID != pawnerID {
		return nil, contract.ErrNotContractPawner
	}
	return s.complete(ctx, r, action.EventConfirm, nil)
}

// complete applies the request's frozen quote to its contract and marks the
// request COMPLETED in one transaction. The request row is only updated
// while ledger_applied_at is unset, so the ledger effect happens once.
func (s *Service) complete(ctx context.Context, r *action.Request, ev action.Event, prepare func(*action.Request)) (*action.Request, error) {
	kind, err := r.Kind()
	if err != nil {
		return nil, err
	}
	if kind.CompletionEvent() != ev {
		return nil, action.StateError{ID: r.ID, Current: r.Status, Event: ev, AlreadyProcessed: r.IsTerminal()}
	}
	if err := checkEvent(r, ev); err != nil {
		return nil, err
	}

	logger := s.logger.With(
		"request_id", r.ID.String(),
		"contract_id", r.ContractID.String(),
		"action_type", string(r.ActionType))

	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		contractsTx := s.contracts.WithTx(tx)

		c, err := contractsTx.LockForUpdate(ctx, r.ContractID)
		if err != nil {
			return err
		}
		logger.Info("Contract locked for completion", "version", c.Version)

		if err := guardCompletion(c, r, ev); err != nil {
			return err
		}

		change := ledgerChange{principalBefore: c.Principal(), endBefore: c.ContractEndDate}
		if err := kind.Apply(c, r.Quote); err != nil {
			return fatalf("apply %s to contract %s: %v", r.ActionType, c.ID, err)
		}
		if err := c.CheckInvariants(); err != nil {
			return fatalf("contract %s after %s: %v", c.ID, r.ActionType, err)
		}
		change.principalAfter = c.Principal()
		change.endAfter = c.ContractEndDate

		now := s.calendar.Now()
		c.Touch(now)
		if err := contractsTx.Update(ctx, c); err != nil {
			return err
		}

		from := r.Status
		if prepare != nil {
			prepare(r)
		}
		if err := r.Fire(ev, now); err != nil {
			return err
		}
		r.LedgerAppliedAt = &now
		r.Touch(now)
		if err := s.update(ctx, s.requests.WithTx(tx), r, action.Predecessors(ev), ev); err != nil {
			return err
		}

		t := transition{
			event: string(ev),
			from:  from,
			to:    r.Status,
			actor: pawnerActor(r),
			details: map[string]string{
				"requested_amount": r.Quote.RequestedAmount.String(),
				"amount_due":       r.Quote.AmountDue.String(),
			},
		}
		text := fmt.Sprintf("Your %s was completed.", describe(r.ActionType))
		notices := []*notification.Message{
			s.notice(r, r.PawnerID, notification.TypeActionCompleted, text),
			s.notice(r, r.InvestorID, notification.TypeActionCompleted, text),
		}
		return s.enqueue(ctx, tx, r, t, &change, notices)
	})
	if err != nil {
		if errors.Is(err, ErrFatalInvariant) {
			logger.Error("Ledger mutation aborted", "error", err)
		} else {
			logger.Warn("Failed to complete action request", "error", err)
		}
		return nil, err
	}

	logger.Info("Ledger mutation applied", "status", string(r.Status))
	return r, nil
}

// guardCompletion re-checks, under the contract lock, what must hold before
// any ledger field is touched.
func guardCompletion(c *contract.Contract, r *action.Request, ev action.Event) error {
	if c.ID != r.ContractID {
		return fatalf("request %s belongs to contract %s, locked %s", r.ID, r.ContractID, c.ID)
	}
	if r.LedgerAppliedAt != nil {
		return action.StateError{ID: r.ID, Current: r.Status, Event: ev, AlreadyProcessed: true}
	}
	if _, ok := action.Next(r.Status, ev); !ok {
		return fatalf("request %s in status %s is not completable", r.ID, r.Status)
	}
	if !c.IsActive() {
		return fmt.Errorf("%w: %s", contract.ErrContractNotActive, c.Status)
	}
	return nil
}

func describe(t action.Type) string {
	switch t {
	case action.TypeInterestPayment:
		return "interest payment and renewal"
	case action.TypePrincipalReduction:
		return "principal reduction"
	case action.TypePrincipalIncrease:
		return "principal increase"
	}
	return string(t)
}
