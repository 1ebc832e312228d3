package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pawnmarket-contract-engine/internal/domain/audit"
	"github.com/pawnmarket-contract-engine/internal/domain/notification"
	"github.com/pawnmarket-contract-engine/internal/domain/outbox"
)

// ErrUndeliverable marks a message no retry can deliver. The dispatcher has
// already failed it; the poller must not count it again.
var ErrUndeliverable = errors.New("undeliverable outbox message")

// Dispatcher delivers one outbox message to its target
type Dispatcher interface {
	Dispatch(ctx context.Context, message *outbox.Message) error
}

// OutboxDispatcher writes AUDIT rows to the audit log and pushes
// NOTIFICATION rows to the messaging service.
type OutboxDispatcher struct {
	outboxRepo outbox.Repository
	audits     audit.Repository
	notifier   notification.Publisher
	logger     *slog.Logger
}

func NewOutboxDispatcher(
	outboxRepo outbox.Repository,
	audits audit.Repository,
	notifier notification.Publisher,
	logger *slog.Logger,
) *OutboxDispatcher {
	return &OutboxDispatcher{
		outboxRepo: outboxRepo,
		audits:     audits,
		notifier:   notifier,
		logger:     logger,
	}
}

// Dispatch delivers the message and marks it PROCESSED. Both targets are
// idempotent on the payload id, so a redelivery after a failed status update
// is harmless.
func (d *OutboxDispatcher) Dispatch(ctx context.Context, message *outbox.Message) error {
	logger := d.logger.With(
		"outbox_id", message.ID,
		"kind", string(message.Kind),
		"aggregate_id", message.AggregateID.String(),
	)

	var err error
	switch message.Kind {
	case outbox.KindAudit:
		var entry audit.Entry
		if err = message.Decode(&entry); err == nil {
			err = d.audits.Append(ctx, &entry)
		} else {
			err = d.fail(ctx, logger, message, err)
		}
	case outbox.KindNotification:
		var msg notification.Message
		if err = message.Decode(&msg); err == nil {
			err = d.notifier.Push(ctx, &msg)
		} else {
			err = d.fail(ctx, logger, message, err)
		}
	default:
		err = d.fail(ctx, logger, message, fmt.Errorf("unknown kind %q", message.Kind))
	}
	if err != nil {
		return err
	}

	if err := d.outboxRepo.MarkProcessed(ctx, message.ID); err != nil {
		logger.Error("Failed to update outbox message status to PROCESSED", "error", err)
		return fmt.Errorf("delivered outbox %d, but failed to mark it PROCESSED: %w", message.ID, err)
	}

	logger.Debug("Outbox message delivered")
	return nil
}

func (d *OutboxDispatcher) fail(ctx context.Context, logger *slog.Logger, message *outbox.Message, cause error) error {
	logger.Error("Failed to decode outbox message", "error", cause)
	if err := d.outboxRepo.MarkFailed(ctx, message.ID, cause.Error()); err != nil {
		logger.Error("Also failed to update outbox status to FAILED_TO_PUBLISH", "update_error", err)
	}
	return fmt.Errorf("%w %d: %v", ErrUndeliverable, message.ID, cause)
}
