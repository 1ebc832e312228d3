package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/pawnmarket-contract-engine/internal/domain/outbox"
	"github.com/pawnmarket-contract-engine/internal/platform/persistence"
)

// maxErrorLength bounds the delivery error kept on a row
const maxErrorLength = 1024

const outboxColumns = `id, kind, aggregate_id, payload, status, attempts, created_at, last_attempt_at, last_error`

type OutboxRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewOutboxRepository(logger *slog.Logger, db *persistence.PostgresDB) outbox.Repository {
	return &OutboxRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx binds the repository to tx so rows are written with the change they report.
func (r *OutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	return &OutboxRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func (r *OutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	err := r.querier.QueryRow(ctx, `
		INSERT INTO outbox_messages (kind, aggregate_id, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		message.Kind,
		message.AggregateID,
		message.Payload,
		message.Status,
		message.Attempts,
		message.CreatedAt,
	).Scan(&message.ID)
	if err != nil {
		r.logger.Error("Failed to create outbox message",
			"kind", string(message.Kind),
			"aggregate_id", message.AggregateID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create outbox message: %w", err)
	}
	return nil
}

// ListPending returns the oldest pending messages first.
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	rows, err := r.querier.Query(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`,
		outbox.StatusPending, limit,
	)
	if err != nil {
		r.logger.Error("Failed to list pending outbox messages", "error", err)
		return nil, fmt.Errorf("failed to list pending outbox messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*outbox.Message, error) {
		var m outbox.Message
		err := row.Scan(&m.ID, &m.Kind, &m.AggregateID, &m.Payload, &m.Status,
			&m.Attempts, &m.CreatedAt, &m.LastAttemptAt, &m.LastError)
		return &m, err
	})
	if err != nil {
		r.logger.Error("Failed to scan outbox messages", "error", err)
		return nil, fmt.Errorf("failed to scan outbox messages: %w", err)
	}
	return messages, nil
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, id int64) error {
	return r.setStatus(ctx, id, outbox.StatusProcessed, nil)
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	reason = truncateError(reason)
	return r.setStatus(ctx, id, outbox.StatusFailedToPublish, &reason)
}

func (r *OutboxRepository) setStatus(ctx context.Context, id int64, status outbox.Status, reason *string) error {
	result, err := r.querier.Exec(ctx, `
		UPDATE outbox_messages
		SET status = $1, last_attempt_at = NOW(), last_error = COALESCE($2, last_error)
		WHERE id = $3`,
		status, reason, id,
	)
	if err != nil {
		r.logger.Error("Failed to update outbox message status",
			"id", id,
			"status", string(status),
			"error", err,
		)
		return fmt.Errorf("failed to set outbox message %d to %s: %w", id, status, err)
	}
	if result.RowsAffected() == 0 {
		return outbox.ErrMessageNotFound{ID: id}
	}
	return nil
}

// RecordFailure only touches pending rows, so a message that another
// poller already settled reports ErrMessageNotFound.
func (r *OutboxRepository) RecordFailure(ctx context.Context, id int64, reason string, maxAttempts int) (outbox.Status, error) {
	var status outbox.Status
	err := r.querier.QueryRow(ctx, `
		UPDATE outbox_messages
		SET attempts = attempts + 1,
		    last_attempt_at = NOW(),
		    last_error = $2,
		    status = CASE WHEN attempts + 1 >= $3 THEN $4 ELSE status END
		WHERE id = $1 AND status = $5
		RETURNING status`,
		id, truncateError(reason), maxAttempts, outbox.StatusFailedToPublish, outbox.StatusPending,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", outbox.ErrMessageNotFound{ID: id}
	}
	if err != nil {
		r.logger.Error("Failed to record outbox delivery failure", "id", id, "error", err)
		return "", fmt.Errorf("failed to record failure for outbox message %d: %w", id, err)
	}
	return status, nil
}

func truncateError(reason string) string {
	if len(reason) <= maxErrorLength {
		return reason
	}
	return reason[:maxErrorLength]
}
