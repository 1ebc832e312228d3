package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pawnmarket-contract-engine/internal/domain/notification"
	"github.com/pawnmarket-contract-engine/internal/platform/persistence"
)

// NotificationLogRepository implements notification.LogRepository for PostgreSQL
type NotificationLogRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewNotificationLogRepository creates a new PostgreSQL notification log repository
func NewNotificationLogRepository(logger *slog.Logger, db *persistence.PostgresDB) notification.LogRepository {
	return &NotificationLogRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository that runs every statement on tx.
func (r *NotificationLogRepository) WithTx(tx pgx.Tx) notification.LogRepository {
	return &NotificationLogRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Reserve inserts the (recipient, type, contract, day) row and reports
// whether it was new. The unique constraint makes reruns on the same day no-ops.
func (r *NotificationLogRepository) Reserve(ctx context.Context, recipient uuid.UUID, typ notification.Type, contractID uuid.UUID, day time.Time) (bool, error) {
	query := `
		INSERT INTO notification_log (recipient_id, notification_type, contract_id, notify_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (recipient_id, notification_type, contract_id, notify_date) DO NOTHING
	`

	result, err := r.querier.Exec(ctx, query, recipient, typ, contractID, day)
	if err != nil {
		r.logger.Error("Failed to reserve notification log entry",
			"recipient_id", recipient.String(),
			"type", string(typ),
			"contract_id", contractID.String(),
			"error", err,
		)
		return false, fmt.Errorf("failed to reserve notification log entry: %w", err)
	}

	return result.RowsAffected() == 1, nil
}
