package action

import (
	"fmt"
	"time"

	"github.com/pawnmarket-contract-engine/internal/accrual"
	"github.com/pawnmarket-contract-engine/internal/domain/contract"
	"github.com/shopspring/decimal"
)

// Quote is the proposed financial outcome of an action. It is frozen on the
// request at creation and is the only input the ledger mutation reads.
type Quote struct {
	ActionType      Type            `json:"action_type"`
	Accrual         accrual.Accrual `json:"accrual"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`

	// AmountDue is what the pawner's slip must show.
	AmountDue decimal.Decimal `json:"amount_due"`
	// InvestorTransferAmount is what the investor's slip must show; zero
	// for borrower-funded actions.
	InvestorTransferAmount decimal.Decimal `json:"investor_transfer_amount"`

	FullPeriodInterest      decimal.Decimal `json:"full_period_interest"`
	NewEndDate              *time.Time      `json:"new_end_date,omitempty"`
	PrincipalAfter          decimal.Decimal `json:"principal_after"`
	OriginalPeriodInterest  decimal.Decimal `json:"original_period_interest"`
	RemodeledPeriodInterest decimal.Decimal `json:"remodeled_period_interest"`
	InterestSavings         decimal.Decimal `json:"interest_savings"`
	AdditionalInterest      decimal.Decimal `json:"additional_interest"`
	MonthlyInterestDelta    decimal.Decimal `json:"monthly_interest_delta"`
	MaxIncrease             decimal.Decimal `json:"max_increase"`
}

// Kind is one closed action variant. Quote is pure; Apply mutates the
// contract using only the frozen quote.
type Kind interface {
	Type() Type
	Quote(c *contract.Contract, amount decimal.Decimal, today time.Time) (Quote, error)
	// AfterPawnerVerified is the event fired once the pawner's slip is accepted.
	AfterPawnerVerified() Event
	// CompletionEvent is the event that triggers the ledger mutation.
	CompletionEvent() Event
	Apply(c *contract.Contract, q Quote) error
}

var kinds = map[Type]Kind{
	TypeInterestPayment:    interestPayment{},
	TypePrincipalReduction: principalReduction{},
	TypePrincipalIncrease:  principalIncrease{},
}

// KindOf returns the variant for t.
func KindOf(t Type) (Kind, error) {
	k, ok := kinds[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, t)
	}
	return k, nil
}

// ValuationFallbackFactor caps increases when the item has no estimated value.
var ValuationFallbackFactor = decimal.RequireFromString("1.5")

func baseQuote(t Type, c *contract.Contract, amount decimal.Decimal, today time.Time) (Quote, error) {
	a, err := accrual.Compute(c, today)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		ActionType:      t,
		Accrual:         a,
		RequestedAmount: accrual.Money(amount),
		PrincipalAfter:  a.Principal,
	}, nil
}

func periodInterest(principal decimal.Decimal, a accrual.Accrual) decimal.Decimal {
	return accrual.Interest(principal, a.DailyRate, a.DurationDays)
}

// interestPayment settles interest to date plus the period fee and renews the term.
type interestPayment struct{}

func (interestPayment) Type() Type { return TypeInterestPayment }

func (interestPayment) Quote(c *contract.Contract, _ decimal.Decimal, today time.Time) (Quote, error) {
	q, err := baseQuote(TypeInterestPayment, c, decimal.Zero, today)
	if err != nil {
		return Quote{}, err
	}
	a := q.Accrual
	newEnd := accrual.AddDays(today, a.DurationDays)

	q.FullPeriodInterest = periodInterest(a.Principal, a)
	q.OriginalPeriodInterest = q.FullPeriodInterest
	q.RemodeledPeriodInterest = q.FullPeriodInterest
	q.NewEndDate = &newEnd
	q.AmountDue = accrual.Money(a.InterestAccrued.Add(a.PlatformFee))
	return q, nil
}

func (interestPayment) AfterPawnerVerified() Event { return EventAwaitSignature }
func (interestPayment) CompletionEvent() Event     { return EventSign }

func (interestPayment) Apply(c *contract.Contract, q Quote) error {
	a := q.Accrual
	if a.DurationDays <= 0 {
		return accrual.ErrNoDuration
	}
	c.ContractEndDate = accrual.AddDays(c.ContractEndDate, a.DurationDays)
	c.ExtensionCount++
	c.TotalInterestPaid = c.TotalInterestPaid.Add(a.InterestAccrued)
	c.TotalFeePaid = c.TotalFeePaid.Add(a.PlatformFee)
	return nil
}

// principalReduction repays part of the principal together with interest to date.
type principalReduction struct{}

func (principalReduction) Type() Type { return TypePrincipalReduction }

func (principalReduction) Quote(c *contract.Contract, amount decimal.Decimal, today time.Time) (Quote, error) {
	q, err := baseQuote(TypePrincipalReduction, c, amount, today)
	if err != nil {
		return Quote{}, err
	}
	a := q.Accrual
	if !q.RequestedAmount.IsPositive() || q.RequestedAmount.GreaterThan(a.Principal) {
		return Quote{}, fmt.Errorf("%w: reduction %s must be in (0, %s]", ErrInvalidAmount, q.RequestedAmount, a.Principal)
	}

	q.PrincipalAfter = a.Principal.Sub(q.RequestedAmount)
	q.OriginalPeriodInterest = periodInterest(a.Principal, a)
	q.RemodeledPeriodInterest = periodInterest(q.PrincipalAfter, a)
	q.InterestSavings = q.OriginalPeriodInterest.Sub(q.RemodeledPeriodInterest)
	q.AmountDue = accrual.Money(q.RequestedAmount.Add(a.InterestAccrued))
	return q, nil
}

func (principalReduction) AfterPawnerVerified() Event { return EventAwaitSignature }
func (principalReduction) CompletionEvent() Event     { return EventSign }

func (principalReduction) Apply(c *contract.Contract, q Quote) error {
	newPrincipal := c.Principal().Sub(q.RequestedAmount)
	c.SetPrincipal(newPrincipal)
	c.TotalPrincipalReduced = c.TotalPrincipalReduced.Add(q.RequestedAmount)
	c.TotalInterestPaid = c.TotalInterestPaid.Add(q.Accrual.InterestAccrued)
	c.InterestAmount = accrual.Interest(newPrincipal, q.Accrual.DailyRate, q.Accrual.DaysRemaining)
	return nil
}

// principalIncrease borrows more against the item; the investor funds the increase.
type principalIncrease struct{}

func (principalIncrease) Type() Type { return TypePrincipalIncrease }

// MaxIncrease is the headroom between the item's valuation and the current principal.
func MaxIncrease(c *contract.Contract) decimal.Decimal {
	principal := c.Principal()
	valuation := principal.Mul(ValuationFallbackFactor)
	if c.ItemEstimatedValue.Valid && c.ItemEstimatedValue.Decimal.IsPositive() {
		valuation = c.ItemEstimatedValue.Decimal
	}
	headroom := accrual.Money(valuation.Sub(principal))
	if headroom.IsNegative() {
		return decimal.Zero
	}
	return headroom
}

func (principalIncrease) Quote(c *contract.Contract, amount decimal.Decimal, today time.Time) (Quote, error) {
	q, err := baseQuote(TypePrincipalIncrease, c, amount, today)
	if err != nil {
		return Quote{}, err
	}
	a := q.Accrual
	q.MaxIncrease = MaxIncrease(c)
	if !q.RequestedAmount.IsPositive() || q.RequestedAmount.GreaterThan(q.MaxIncrease) {
		return Quote{}, fmt.Errorf("%w: increase %s must be in (0, %s]", ErrInvalidAmount, q.RequestedAmount, q.MaxIncrease)
	}

	q.PrincipalAfter = a.Principal.Add(q.RequestedAmount)
	q.OriginalPeriodInterest = periodInterest(a.Principal, a)
	q.RemodeledPeriodInterest = periodInterest(q.PrincipalAfter, a)
	q.AdditionalInterest = q.RemodeledPeriodInterest.Sub(q.OriginalPeriodInterest)
	q.MonthlyInterestDelta = accrual.Money(q.RequestedAmount.Mul(a.MonthlyRate))
	q.AmountDue = a.InterestAccrued
	q.InvestorTransferAmount = q.RequestedAmount
	return q, nil
}

func (principalIncrease) AfterPawnerVerified() Event { return EventRequestInvestorApproval }
func (principalIncrease) CompletionEvent() Event     { return EventConfirm }

func (principalIncrease) Apply(c *contract.Contract, q Quote) error {
	newPrincipal := c.Principal().Add(q.RequestedAmount)
	c.SetPrincipal(newPrincipal)
	c.TotalPrincipalIncreased = c.TotalPrincipalIncreased.Add(q.RequestedAmount)
	c.TotalInterestPaid = c.TotalInterestPaid.Add(q.Accrual.InterestAccrued)
	c.InterestAmount = accrual.Interest(newPrincipal, q.Accrual.DailyRate, q.Accrual.DaysRemaining)
	return nil
}

// IsInvestorFunded reports whether the action has an investor payment leg.
func (t Type) IsInvestorFunded() bool {
	return t == TypePrincipalIncrease
}
