package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/domain/contract"
	"github.com/pawnmarket-contract-engine/internal/domain/notification"
)

// InvestorDecision is the investor's answer to a principal increase.
type InvestorDecision struct {
	RequestID  uuid.UUID
	InvestorID uuid.UUID
	Approve    bool
	Reason     string
}

// DecideInvestor approves or rejects a principal increase awaiting the investor.
func (s *Service) DecideInvestor(ctx context.Context, d InvestorDecision) (*action.Request, error) {
	r, err := s.requests.GetByID(ctx, d.RequestID)
	if err != nil {
		return nil, err
	}
	if !r.ActionType.IsInvestorFunded() {
		return nil, fmt.Errorf("%w: %s", action.ErrNotInvestorFunded, r.ActionType)
	}
	if r.InvestorID != d.InvestorID {
		return nil, contract.ErrNotContractInvestor
	}

	ev := action.EventInvestorApprove
	if !d.Approve {
		ev = action.EventInvestorReject
		if d.Reason == "" {
			return nil, action.ErrMissingRejectCause
		}
	}
	if err := checkEvent(r, ev); err != nil {
		return nil, err
	}

	now := s.calendar.Now()
	from := r.Status
	if !d.Approve {
		r.InvestorRejectReason = d.Reason
	}
	if err := r.Fire(ev, now); err != nil {
		return nil, err
	}
	r.Touch(now)

	var notices []*notification.Message
	details := map[string]string{}
	if d.Approve {
		notices = append(notices, s.notice(r, r.PawnerID, notification.TypeInvestorApproved,
			"The investor approved your principal increase and will transfer the funds."))
	} else {
		details["reason"] = d.Reason
		notices = append(notices, s.notice(r, r.PawnerID, notification.TypeInvestorRejected,
			"The investor rejected your principal increase: "+d.Reason))
	}

	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.update(ctx, s.requests.WithTx(tx), r, action.Predecessors(ev), ev); err != nil {
			return err
		}
		t := transition{event: string(ev), from: from, to: r.Status, actor: investorActor(r), details: details}
		return s.enqueue(ctx, tx, r, t, nil, notices)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Investor decided on principal increase",
		"request_id", r.ID.String(),
		"approved", d.Approve,
		"status", string(r.Status))
	return r, nil
}

// Cancel voids a request the pawner has not paid yet.
func (s *Service) Cancel(ctx context.Context, requestID, pawnerID uuid.UUID, reason string) (*action.Request, error) {
	r, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.PawnerID != pawnerID {
		return nil, contract.ErrNotContractPawner
	}
	if err := checkEvent(r, action.EventCancel); err != nil {
		return nil, err
	}

	now := s.calendar.Now()
	from := r.Status
	r.VoidReason = "cancelled by pawner"
	if reason != "" {
		r.VoidReason += ": " + reason
	}
	if err := r.Fire(action.EventCancel, now); err != nil {
		return nil, err
	}
	r.Touch(now)

	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.update(ctx, s.requests.WithTx(tx), r, action.Predecessors(action.EventCancel), action.EventCancel); err != nil {
			return err
		}
		t := transition{
			event:   string(action.EventCancel),
			from:    from,
			to:      r.Status,
			actor:   pawnerActor(r),
			details: map[string]string{"void_reason": r.VoidReason},
		}
		notices := []*notification.Message{
			s.notice(r, r.PawnerID, notification.TypeRequestVoided, "Your action request was cancelled."),
		}
		return s.enqueue(ctx, tx, r, t, nil, notices)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Action request cancelled", "request_id", r.ID.String())
	return r, nil
}
