package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pawnmarket-contract-engine/internal/action_processor/service"
	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/platform/messaging/producers"
)

// SlipEventHandler handles slip submissions from the evidence topic
type SlipEventHandler struct {
	processingService service.ProcessingService
	producer          producers.DeadLetterPublisher
	logger            *slog.Logger
}

func NewSlipEventHandler(
	logger *slog.Logger,
	processingService service.ProcessingService,
	producer producers.DeadLetterPublisher,
) *SlipEventHandler {
	return &SlipEventHandler{
		processingService: processingService,
		producer:          producer,
		logger:            logger,
	}
}

// HandleMessage processes one Kafka message. Messages that can never be
// processed are parked on the DLQ and acknowledged.
func (h *SlipEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var msg action.SlipSubmitted
	if err := json.Unmarshal(value, &msg); err != nil {
		return h.deadLetter(ctx, key, value, "Failed to unmarshal slip submission", err)
	}
	if err := msg.Validate(); err != nil {
		return h.deadLetter(ctx, key, value, "Invalid slip submission", err)
	}

	logger := h.logger
	if msg.CorrelationID != "" {
		logger = h.logger.With("correlation_id", msg.CorrelationID)
	}
	logger.Info("Received slip submission",
		"submission_id", msg.SubmissionID.String(),
		"request_id", msg.RequestID.String(),
		"leg", string(msg.Leg),
	)

	if err := h.processingService.ProcessSubmission(ctx, &msg); err != nil {
		if errors.Is(err, service.ErrWorkerPanic) {
			return h.deadLetter(ctx, key, value, "Slip submission crashed its worker", err)
		}
		return fmt.Errorf("slip submission %s failed: %w", msg.SubmissionID, err)
	}
	return nil
}

func (h *SlipEventHandler) deadLetter(ctx context.Context, key, value []byte, what string, cause error) error {
	h.logger.Error(what, "error", cause, "message_key", string(key))

	if h.producer != nil {
		reason := fmt.Sprintf("%s: %s", what, cause.Error())
		if dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, reason); dlqErr != nil {
			h.logger.Error("Failed to publish message to DLQ",
				"dlq_error", dlqErr,
				"original_error", cause,
				"message_key", string(key),
			)
		} else {
			return nil
		}
	}
	return fmt.Errorf("%s: %w", what, cause)
}
