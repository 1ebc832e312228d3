// Package action models mid-contract action requests: the quote frozen at
// creation, the verification legs and the state machine that drives them.
package action

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pawnmarket-contract-engine/internal/domain/contract"
	"github.com/shopspring/decimal"
)

// Type is the kind of mid-contract action
type Type string

const (
	TypeInterestPayment    Type = "INTEREST_PAYMENT"
	TypePrincipalReduction Type = "PRINCIPAL_REDUCTION"
	TypePrincipalIncrease  Type = "PRINCIPAL_INCREASE"
)

// Leg identifies which counterparty a payment slip comes from
type Leg string

const (
	LegPawner   Leg = "PAWNER"
	LegInvestor Leg = "INVESTOR"
)

// Events returns the accepted, retryable-reject and final-reject events of the leg.
func (l Leg) Events() (accepted, rejected, final Event) {
	if l == LegInvestor {
		return EventInvestorSlipAccepted, EventInvestorSlipRejected, EventInvestorSlipRejectedFinal
	}
	return EventSlipAccepted, EventSlipRejected, EventSlipRejectedFinal
}

// Accepting lists the statuses in which the leg takes a new slip.
func (l Leg) Accepting() []Status {
	accepted, _, _ := l.Events()
	return Predecessors(accepted)
}

func (l Leg) Valid() bool {
	return l == LegPawner || l == LegInvestor
}

// Request is one mid-contract action and its progress through the workflow.
type Request struct {
	ID              uuid.UUID       `json:"id"`
	ContractID      uuid.UUID       `json:"contract_id"`
	PawnerID        uuid.UUID       `json:"pawner_id"`
	InvestorID      uuid.UUID       `json:"investor_id"`
	ActionType      Type            `json:"action_type"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	Quote           Quote           `json:"quote"`
	Status          Status          `json:"status"`

	PawnerAttempts       int    `json:"pawner_attempts"`
	InvestorAttempts     int    `json:"investor_attempts"`
	PawnerSlipURL        string `json:"pawner_slip_url,omitempty"`
	InvestorSlipURL      string `json:"investor_slip_url,omitempty"`
	SignatureURL         string `json:"signature_url,omitempty"`
	PawnerVerification   string `json:"pawner_verification,omitempty"`
	InvestorVerification string `json:"investor_verification,omitempty"`
	VoidReason           string `json:"void_reason,omitempty"`
	InvestorRejectReason string `json:"investor_reject_reason,omitempty"`

	PawnerVerifiedAt      *time.Time `json:"pawner_verified_at,omitempty"`
	InvestorDecidedAt     *time.Time `json:"investor_decided_at,omitempty"`
	InvestorTransferredAt *time.Time `json:"investor_transferred_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	VoidedAt              *time.Time `json:"voided_at,omitempty"`
	LedgerAppliedAt       *time.Time `json:"ledger_applied_at,omitempty"`

	Version   int       `json:"version"` // For optimistic locking
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRequest opens a request against c with a freshly computed quote.
func NewRequest(c *contract.Contract, q Quote, now time.Time) (*Request, error) {
	if !c.IsActive() {
		return nil, fmt.Errorf("%w: %s", contract.ErrContractNotActive, c.Status)
	}
	return &Request{
		ID:              uuid.New(),
		ContractID:      c.ID,
		PawnerID:        c.PawnerID,
		InvestorID:      c.InvestorID,
		ActionType:      q.ActionType,
		RequestedAmount: q.RequestedAmount,
		Quote:           q,
		Status:          StatusAwaitingPayment,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Kind resolves the action variant of the request.
func (r *Request) Kind() (Kind, error) {
	return KindOf(r.ActionType)
}

// Fire applies ev, then follows pass-through statuses until one that waits
// for a caller. Timestamps of entered statuses are stamped with now.
func (r *Request) Fire(ev Event, now time.Time) error {
	to, ok := Next(r.Status, ev)
	if !ok {
		return StateError{ID: r.ID, Current: r.Status, Event: ev}
	}
	r.enter(to, now)

	for {
		next, ok := passThrough[r.Status]
		if r.Status == StatusSlipVerified {
			kind, err := r.Kind()
			if err != nil {
				return err
			}
			next, ok = kind.AfterPawnerVerified(), true
		}
		if !ok {
			return nil
		}
		to, valid := Next(r.Status, next)
		if !valid {
			return StateError{ID: r.ID, Current: r.Status, Event: next}
		}
		r.enter(to, now)
	}
}

func (r *Request) enter(s Status, now time.Time) {
	r.Status = s
	switch s {
	case StatusSlipVerified:
		r.PawnerVerifiedAt = &now
	case StatusInvestorApproved, StatusInvestorRejected:
		r.InvestorDecidedAt = &now
	case StatusInvestorTransferred:
		r.InvestorTransferredAt = &now
	case StatusCompleted:
		r.CompletedAt = &now
	case StatusVoided, StatusInvestorSlipRejectedFinal:
		r.VoidedAt = &now
	}
}

// Touch bumps the version and modification time before a guarded update.
func (r *Request) Touch(now time.Time) {
	r.Version++
	r.UpdatedAt = now
}

// IsTerminal reports whether the request accepts no further events.
func (r *Request) IsTerminal() bool {
	return IsTerminal(r.Status)
}

// Attempts returns the slip attempt counter of the leg.
func (r *Request) Attempts(l Leg) int {
	if l == LegInvestor {
		return r.InvestorAttempts
	}
	return r.PawnerAttempts
}

// BeginAttempt consumes one slip attempt on the leg and records the evidence URL.
func (r *Request) BeginAttempt(l Leg, slipURL string) int {
	if l == LegInvestor {
		r.InvestorAttempts++
		r.InvestorSlipURL = slipURL
		return r.InvestorAttempts
	}
	r.PawnerAttempts++
	r.PawnerSlipURL = slipURL
	return r.PawnerAttempts
}

// RecordVerification stores the last classification of the leg.
func (r *Request) RecordVerification(l Leg, classification string) {
	if l == LegInvestor {
		r.InvestorVerification = classification
		return
	}
	r.PawnerVerification = classification
}

// DiscardSlip clears the leg's evidence after a retryable rejection.
func (r *Request) DiscardSlip(l Leg) {
	if l == LegInvestor {
		r.InvestorSlipURL = ""
		return
	}
	r.PawnerSlipURL = ""
}

// ExpectedAmount is what the leg's slip must show.
func (r *Request) ExpectedAmount(l Leg) decimal.Decimal {
	if l == LegInvestor {
		return r.Quote.InvestorTransferAmount
	}
	return r.Quote.AmountDue
}

// LegSettled reports whether the leg can never take a slip again: it was
// verified already or the request reached a terminal status.
func (r *Request) LegSettled(l Leg) bool {
	if r.IsTerminal() {
		return true
	}
	if l == LegInvestor {
		return r.InvestorTransferredAt != nil
	}
	return r.PawnerVerifiedAt != nil
}

// CheckSlipAllowed rejects a slip the leg cannot take in the current status.
func (r *Request) CheckSlipAllowed(l Leg) error {
	accepted, _, _ := l.Events()
	if _, ok := Next(r.Status, accepted); ok {
		return nil
	}
	return StateError{ID: r.ID, Current: r.Status, Event: accepted, AlreadyProcessed: r.LegSettled(l)}
}
