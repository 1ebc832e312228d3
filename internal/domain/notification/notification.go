// Package notification describes the notices sent to contract counterparties.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Type categorizes a notice
type Type string

const (
	TypeSlipVerified           Type = "SLIP_VERIFIED"
	TypeSlipRejected           Type = "SLIP_REJECTED"
	TypeRequestVoided          Type = "REQUEST_VOIDED"
	TypeInvestorApprovalNeeded Type = "INVESTOR_APPROVAL_NEEDED"
	TypeInvestorApproved       Type = "INVESTOR_APPROVED"
	TypeInvestorRejected       Type = "INVESTOR_REJECTED"
	TypeInvestorTransferred    Type = "INVESTOR_TRANSFERRED"
	TypeActionCompleted        Type = "ACTION_COMPLETED"

	TypeDueIn3Days Type = "DUE_IN_3_DAYS"
	TypeDueIn1Day  Type = "DUE_IN_1_DAY"
	TypeDueToday   Type = "DUE_TODAY"
	TypeOverdue    Type = "OVERDUE"
)

// Message is one notice for one recipient.
type Message struct {
	ID          uuid.UUID         `json:"id"`
	RecipientID uuid.UUID         `json:"recipient_id"`
	Type        Type              `json:"type"`
	ContractID  uuid.UUID         `json:"contract_id"`
	RequestID   *uuid.UUID        `json:"request_id,omitempty"`
	Text        string            `json:"text"`
	Data        map[string]string `json:"data,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// New builds a message with a fresh id.
func New(recipient uuid.UUID, typ Type, contractID uuid.UUID, text string, now time.Time) *Message {
	return &Message{
		ID:          uuid.New(),
		RecipientID: recipient,
		Type:        typ,
		ContractID:  contractID,
		Text:        text,
		CreatedAt:   now,
	}
}

// Publisher pushes a notice to the messaging service.
type Publisher interface {
	Push(ctx context.Context, msg *Message) error
}

// LogRepository records sent reminders for per-day idempotency.
type LogRepository interface {
	// Reserve records (recipient, type, contract, day) and reports whether
	// the row is new. A false result means the notice was already sent.
	Reserve(ctx context.Context, recipient uuid.UUID, typ Type, contractID uuid.UUID, day time.Time) (bool, error)
	WithTx(tx pgx.Tx) LogRepository
}
