package action

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SlipSubmitted is the Kafka message the gateway publishes for every accepted
// slip upload. The processor verifies it asynchronously.
type SlipSubmitted struct {
	SubmissionID   uuid.UUID `json:"submission_id"`
	RequestID      uuid.UUID `json:"request_id"`
	Leg            Leg       `json:"leg"`
	SlipURL        string    `json:"slip_url"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CorrelationID  string    `json:"correlation_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// Validate checks the message carries everything the processor needs.
func (m *SlipSubmitted) Validate() error {
	var errs []error
	if m.RequestID == uuid.Nil {
		errs = append(errs, errors.New("request_id is required"))
	}
	if !m.Leg.Valid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownLeg, m.Leg))
	}
	if m.SlipURL == "" {
		errs = append(errs, ErrMissingEvidence)
	}
	return errors.Join(errs...)
}
