// Package contract holds the pawn loan aggregate that action requests mutate.
package contract

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a loan contract
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusRedeemed  Status = "REDEEMED"
	StatusDefaulted Status = "DEFAULTED"
)

var (
	ErrContractNotActive   = errors.New("contract is not active")
	ErrNegativePrincipal   = errors.New("current principal amount must not be negative")
	ErrEndBeforeStart      = errors.New("contract end date must not be before start date")
	ErrNotContractPawner   = errors.New("caller is not the pawner of this contract")
	ErrNotContractInvestor = errors.New("caller is not the investor of this contract")
)

// Contract is one active loan between a pawner and an investor.
// Rates are monthly and may be stored either as a fraction or as a whole percentage.
type Contract struct {
	ID          uuid.UUID `json:"id"`
	PawnerID    uuid.UUID `json:"pawner_id"`
	InvestorID  uuid.UUID `json:"investor_id"`
	DropPointID uuid.UUID `json:"drop_point_id"`
	Status      Status    `json:"status"`

	ItemEstimatedValue      decimal.NullDecimal `json:"item_estimated_value"`
	LoanPrincipalAmount     decimal.Decimal     `json:"loan_principal_amount"` // legacy mirror of CurrentPrincipalAmount
	OriginalPrincipalAmount decimal.NullDecimal `json:"original_principal_amount"`
	CurrentPrincipalAmount  decimal.Decimal     `json:"current_principal_amount"`
	InterestRate            decimal.Decimal     `json:"interest_rate"`
	PlatformFeeRate         decimal.Decimal     `json:"platform_fee_rate"`
	InterestAmount          decimal.Decimal     `json:"interest_amount"`

	ContractStartDate    time.Time `json:"contract_start_date"`
	ContractEndDate      time.Time `json:"contract_end_date"`
	ContractDurationDays int       `json:"contract_duration_days"` // 0 when unknown

	TotalInterestPaid       decimal.Decimal `json:"total_interest_paid"`
	TotalFeePaid            decimal.Decimal `json:"total_fee_paid"`
	TotalPrincipalReduced   decimal.Decimal `json:"total_principal_reduced"`
	TotalPrincipalIncreased decimal.Decimal `json:"total_principal_increased"`
	ExtensionCount          int             `json:"extension_count"`

	Version   int       `json:"version"` // For optimistic locking
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Principal returns the outstanding principal, falling back to the legacy field
// for contracts onboarded before the current/original split.
func (c *Contract) Principal() decimal.Decimal {
	if c.CurrentPrincipalAmount.IsZero() && !c.LoanPrincipalAmount.IsZero() {
		return c.LoanPrincipalAmount
	}
	return c.CurrentPrincipalAmount
}

// FeeBase is the principal the platform fee is charged on.
func (c *Contract) FeeBase() decimal.Decimal {
	if c.OriginalPrincipalAmount.Valid && c.OriginalPrincipalAmount.Decimal.IsPositive() {
		return c.OriginalPrincipalAmount.Decimal
	}
	return c.Principal()
}

// SetPrincipal updates the current principal and keeps the legacy mirror in step.
func (c *Contract) SetPrincipal(p decimal.Decimal) {
	c.CurrentPrincipalAmount = p
	c.LoanPrincipalAmount = p
}

// IsActive reports whether mid-contract actions may be requested.
func (c *Contract) IsActive() bool {
	return c.Status == StatusActive
}

// CheckInvariants validates the ledger invariants every persisted contract must hold.
func (c *Contract) CheckInvariants() error {
	if c.CurrentPrincipalAmount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrNegativePrincipal, c.CurrentPrincipalAmount)
	}
	if c.ContractEndDate.Before(c.ContractStartDate) {
		return fmt.Errorf("%w: start %s, end %s", ErrEndBeforeStart,
			c.ContractStartDate.Format(time.DateOnly), c.ContractEndDate.Format(time.DateOnly))
	}
	return nil
}

// Touch bumps the version and modification time before a guarded update.
func (c *Contract) Touch(now time.Time) {
	c.Version++
	c.UpdatedAt = now
}
