package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status defines message publishing states
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusProcessed       Status = "PROCESSED"
	StatusFailedToPublish Status = "FAILED_TO_PUBLISH"
)

// Kind routes a message to its delivery target
type Kind string

const (
	KindAudit        Kind = "AUDIT"
	KindNotification Kind = "NOTIFICATION"
)

// Message stores a side effect written in the same transaction as the state
// change that caused it, for delivery after commit
type Message struct {
	ID            int64           `json:"id"`
	Kind          Kind            `json:"kind"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload"`
	Status        Status          `json:"status"`
	Attempts      int             `json:"attempts"`
	CreatedAt     time.Time       `json:"created_at"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
	LastError     *string         `json:"last_error,omitempty"`
}

func NewMessage(kind Kind, aggregateID uuid.UUID, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		Kind:        kind,
		AggregateID: aggregateID,
		Payload:     data,
		Status:      StatusPending,
		Attempts:    0,
		CreatedAt:   time.Now(),
	}, nil
}

// RecordFailure counts a failed delivery. The message is given up on once
// attempts reach maxAttempts; the returned status is the one it now has.
func (m *Message) RecordFailure(reason string, maxAttempts int, at time.Time) Status {
	m.Attempts++
	m.LastAttemptAt = &at
	m.LastError = &reason
	if m.Attempts >= maxAttempts {
		m.Status = StatusFailedToPublish
	}
	return m.Status
}

// Decode unmarshals the payload into v
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Payload, v)
}
