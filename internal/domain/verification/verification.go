// Package verification classifies payment slips against the amount a leg owes.
package verification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/shopspring/decimal"
)

// Classification is the outcome vocabulary of one slip check
type Classification string

const (
	Matched    Classification = "MATCHED"
	Overpaid   Classification = "OVERPAID"
	Underpaid  Classification = "UNDERPAID"
	Unreadable Classification = "UNREADABLE"
	Invalid    Classification = "INVALID"
)

// Accepted reports whether the slip moves the leg forward.
func (c Classification) Accepted() bool {
	return c == Matched || c == Overpaid
}

// Classify compares the detected amount with the expected one at zero tolerance.
func Classify(expected decimal.Decimal, detected decimal.NullDecimal, transferEvidence bool) Classification {
	if !transferEvidence {
		return Invalid
	}
	if !detected.Valid {
		return Unreadable
	}
	switch detected.Decimal.Cmp(expected) {
	case 0:
		return Matched
	case 1:
		return Overpaid
	default:
		return Underpaid
	}
}

// Result is what a verifier reports for one slip.
type Result struct {
	Classification Classification      `json:"classification"`
	DetectedAmount decimal.NullDecimal `json:"detected_amount"`
	Confidence     float64             `json:"confidence"`
	Raw            json.RawMessage     `json:"raw,omitempty"`
}

// Verifier reads a transfer slip image. It fails only on transport or
// collaborator errors, never on an amount mismatch.
type Verifier interface {
	Verify(ctx context.Context, imageURL string, expected decimal.Decimal) (Result, error)
}

// Record is the immutable trace of one verification attempt.
type Record struct {
	ID             uuid.UUID           `json:"id"`
	RequestID      uuid.UUID           `json:"request_id"`
	ContractID     uuid.UUID           `json:"contract_id"`
	Leg            action.Leg          `json:"leg"`
	Attempt        int                 `json:"attempt"`
	ImageURL       string              `json:"image_url"`
	ExpectedAmount decimal.Decimal     `json:"expected_amount"`
	DetectedAmount decimal.NullDecimal `json:"detected_amount"`
	Classification Classification      `json:"classification"`
	Confidence     float64             `json:"confidence"`
	Raw            json.RawMessage     `json:"raw,omitempty"`
	Error          string              `json:"error,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// Repository stores verification records; records are never updated.
type Repository interface {
	Insert(ctx context.Context, rec *Record) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*Record, error)
}
