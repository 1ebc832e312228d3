package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/domain/audit"
	"github.com/pawnmarket-contract-engine/internal/domain/notification"
	"github.com/pawnmarket-contract-engine/internal/domain/outbox"
)

// transition describes one committed status change for the audit trail.
type transition struct {
	event   string
	from    action.Status
	to      action.Status
	actor   string
	details map[string]string
}

// ledgerChange captures the contract fields a completion moved.
type ledgerChange struct {
	principalBefore decimal.Decimal
	principalAfter  decimal.Decimal
	endBefore       time.Time
	endAfter        time.Time
}

func pawnerActor(r *action.Request) string   { return "pawner:" + r.PawnerID.String() }
func investorActor(r *action.Request) string { return "investor:" + r.InvestorID.String() }

const systemActor = "system:slip-verifier"

func newAuditEntry(r *action.Request, t transition, change *ledgerChange, now time.Time) *audit.Entry {
	e := &audit.Entry{
		ID:         uuid.New(),
		RequestID:  r.ID,
		ContractID: r.ContractID,
		Event:      t.event,
		FromStatus: string(t.from),
		ToStatus:   string(t.to),
		Actor:      t.actor,
		Details:    t.details,
		CreatedAt:  now,
	}
	if change != nil {
		e.PrincipalBefore = decimal.NewNullDecimal(change.principalBefore)
		e.PrincipalAfter = decimal.NewNullDecimal(change.principalAfter)
		endBefore, endAfter := change.endBefore, change.endAfter
		e.EndDateBefore = &endBefore
		e.EndDateAfter = &endAfter
	}
	return e
}

func (s *Service) notice(r *action.Request, recipient uuid.UUID, typ notification.Type, text string) *notification.Message {
	msg := notification.New(recipient, typ, r.ContractID, text, s.calendar.Now())
	id := r.ID
	msg.RequestID = &id
	msg.Data = map[string]string{
		"action_type": string(r.ActionType),
		"status":      string(r.Status),
	}
	return msg
}

// enqueue writes the audit entry and notices of a transition to the outbox
// inside tx, so they exist exactly when the transition commits.
func (s *Service) enqueue(ctx context.Context, tx pgx.Tx, r *action.Request, t transition, change *ledgerChange, notices []*notification.Message) error {
	outboxTx := s.outbox.WithTx(tx)

	entry := newAuditEntry(r, t, change, s.calendar.Now())
	msg, err := outbox.NewMessage(outbox.KindAudit, r.ID, entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	if err := outboxTx.Create(ctx, msg); err != nil {
		return fmt.Errorf("failed to enqueue audit entry: %w", err)
	}

	for _, n := range notices {
		msg, err := outbox.NewMessage(outbox.KindNotification, r.ID, n)
		if err != nil {
			return fmt.Errorf("failed to encode notification: %w", err)
		}
		if err := outboxTx.Create(ctx, msg); err != nil {
			return fmt.Errorf("failed to enqueue notification: %w", err)
		}
	}
	return nil
}

// slipNotices tells the parties what a verification outcome means for them.
func (s *Service) slipNotices(r *action.Request, leg action.Leg, outcome action.Event) []*notification.Message {
	payer := r.PawnerID
	if leg == action.LegInvestor {
		payer = r.InvestorID
	}
	accepted, rejected, _ := leg.Events()

	switch outcome {
	case accepted:
		out := []*notification.Message{
			s.notice(r, payer, notification.TypeSlipVerified, "Your payment slip was verified."),
		}
		switch r.Status {
		case action.StatusPendingInvestorApproval:
			out = append(out, s.notice(r, r.InvestorID, notification.TypeInvestorApprovalNeeded,
				fmt.Sprintf("The pawner asks to increase the principal by %s. Please approve or reject.", r.Quote.RequestedAmount.StringFixed(2))))
		case action.StatusAwaitingPawnerConfirm:
			out = append(out, s.notice(r, r.PawnerID, notification.TypeInvestorTransferred,
				fmt.Sprintf("The investor transferred %s. Please confirm receipt.", r.Quote.InvestorTransferAmount.StringFixed(2))))
		}
		return out
	case rejected:
		return []*notification.Message{
			s.notice(r, payer, notification.TypeSlipRejected, "Your payment slip could not be verified. Please upload a new slip."),
		}
	default:
		out := []*notification.Message{
			s.notice(r, r.PawnerID, notification.TypeRequestVoided, "The action request was voided: "+r.VoidReason),
		}
		if leg == action.LegInvestor {
			out = append(out, s.notice(r, r.InvestorID, notification.TypeRequestVoided, "The action request was voided: "+r.VoidReason))
		}
		return out
	}
}
