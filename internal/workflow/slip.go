package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/domain/verification"
)

// SlipSubmission is one uploaded payment slip for a leg of a request.
type SlipSubmission struct {
	RequestID uuid.UUID
	Leg       action.Leg
	SlipURL   string
}

// CheckSlip rejects a slip the request cannot take, without consuming an
// attempt. The gateway calls it before accepting an upload.
func (s *Service) CheckSlip(ctx context.Context, requestID uuid.UUID, leg action.Leg) (*action.Request, error) {
	if !leg.Valid() {
		return nil, fmt.Errorf("%w: %q", action.ErrUnknownLeg, leg)
	}
	r, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if leg == action.LegInvestor && !r.ActionType.IsInvestorFunded() {
		return nil, fmt.Errorf("%w: %s", action.ErrNotInvestorFunded, r.ActionType)
	}
	if err := r.CheckSlipAllowed(leg); err != nil {
		return nil, err
	}
	return r, nil
}

// SubmitPawnerSlip verifies the pawner's payment slip.
func (s *Service) SubmitPawnerSlip(ctx context.Context, requestID uuid.UUID, slipURL string) (*action.Request, error) {
	return s.SubmitSlip(ctx, SlipSubmission{RequestID: requestID, Leg: action.LegPawner, SlipURL: slipURL})
}

// SubmitInvestorSlip verifies the investor's transfer slip of a principal increase.
func (s *Service) SubmitInvestorSlip(ctx context.Context, requestID uuid.UUID, slipURL string) (*action.Request, error) {
	return s.SubmitSlip(ctx, SlipSubmission{RequestID: requestID, Leg: action.LegInvestor, SlipURL: slipURL})
}

// SubmitSlip consumes one attempt on the leg, verifies the slip, records the
// verification and moves the request forward, back to retry, or to its void
// status once the attempts are exhausted.
func (s *Service) SubmitSlip(ctx context.Context, sub SlipSubmission) (*action.Request, error) {
	if sub.SlipURL == "" {
		return nil, action.ErrMissingEvidence
	}
	r, err := s.CheckSlip(ctx, sub.RequestID, sub.Leg)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(
		"request_id", r.ID.String(),
		"contract_id", r.ContractID.String(),
		"leg", string(sub.Leg))
	accepted, _, final := sub.Leg.Events()

	// a crash between consuming the last attempt and recording its outcome
	// leaves the leg exhausted without a verdict
	if r.Attempts(sub.Leg) >= s.maxAttempts {
		logger.Warn("Slip attempts exhausted without a recorded outcome, voiding request",
			"attempts", r.Attempts(sub.Leg))
		r.VoidReason = fmt.Sprintf("%s slip attempts exhausted (%d of %d)", legName(sub.Leg), r.Attempts(sub.Leg), s.maxAttempts)
		return s.resolveSlip(ctx, r, sub.Leg, final, nil)
	}

	now := s.calendar.Now()
	attempt := r.BeginAttempt(sub.Leg, sub.SlipURL)
	r.Touch(now)
	if err := s.update(ctx, s.requests, r, sub.Leg.Accepting(), accepted); err != nil {
		logger.Warn("Failed to consume slip attempt", "error", err)
		return nil, err
	}
	logger.Info("Slip attempt consumed", "attempt", attempt)

	expected := r.ExpectedAmount(sub.Leg)
	rec := &verification.Record{
		ID:             uuid.New(),
		RequestID:      r.ID,
		ContractID:     r.ContractID,
		Leg:            sub.Leg,
		Attempt:        attempt,
		ImageURL:       sub.SlipURL,
		ExpectedAmount: expected,
		CreatedAt:      now,
	}

	result, verifyErr := s.verifier.Verify(ctx, sub.SlipURL, expected)
	if verifyErr != nil {
		logger.Warn("Slip verifier failed, counting attempt as unreadable", "attempt", attempt, "error", verifyErr)
		result = verification.Result{Classification: verification.Unreadable}
		rec.Error = verifyErr.Error()
	}
	rec.Classification = result.Classification
	rec.DetectedAmount = result.DetectedAmount
	rec.Confidence = result.Confidence
	rec.Raw = result.Raw

	if err := s.verifications.Insert(ctx, rec); err != nil {
		logger.Error("Failed to store slip verification", "attempt", attempt, "error", err)
		return nil, collaboratorFailure("store slip verification", err)
	}

	ev := s.outcome(sub.Leg, result.Classification, attempt)
	r.RecordVerification(sub.Leg, string(result.Classification))
	if ev == final {
		r.VoidReason = fmt.Sprintf("%s slip %s on attempt %d of %d",
			legName(sub.Leg), result.Classification, attempt, s.maxAttempts)
	}

	logger.Info("Slip verified",
		"attempt", attempt,
		"classification", string(result.Classification),
		"expected", expected.String(),
		"event", string(ev))
	return s.resolveSlip(ctx, r, sub.Leg, ev, rec)
}

// outcome maps a classification to the leg's next event.
func (s *Service) outcome(leg action.Leg, c verification.Classification, attempt int) action.Event {
	accepted, rejected, final := leg.Events()
	switch {
	case c.Accepted():
		return accepted
	case attempt >= s.maxAttempts:
		return final
	default:
		return rejected
	}
}

func (s *Service) resolveSlip(ctx context.Context, r *action.Request, leg action.Leg, ev action.Event, rec *verification.Record) (*action.Request, error) {
	_, rejected, _ := leg.Events()
	if ev == rejected {
		r.DiscardSlip(leg)
	}

	now := s.calendar.Now()
	from := r.Status
	if err := r.Fire(ev, now); err != nil {
		return nil, err
	}
	r.Touch(now)

	details := map[string]string{"leg": string(leg)}
	if rec != nil {
		details["attempt"] = fmt.Sprint(rec.Attempt)
		details["classification"] = string(rec.Classification)
		details["verification_id"] = rec.ID.String()
	}
	if r.VoidReason != "" && r.IsTerminal() {
		details["void_reason"] = r.VoidReason
	}

	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.update(ctx, s.requests.WithTx(tx), r, action.Predecessors(ev), ev); err != nil {
			return err
		}
		t := transition{event: string(ev), from: from, to: r.Status, actor: systemActor, details: details}
		return s.enqueue(ctx, tx, r, t, nil, s.slipNotices(r, leg, ev))
	})
	if err != nil {
		s.logger.Error("Failed to record slip outcome",
			"request_id", r.ID.String(),
			"event", string(ev),
			"error", err)
		return nil, err
	}
	return r, nil
}

func legName(l action.Leg) string {
	return strings.ToLower(string(l))
}
