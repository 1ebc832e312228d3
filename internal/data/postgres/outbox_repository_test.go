package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/pawnmarket-contract-engine/internal/domain/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRepository_WithTx(t *testing.T) {
	repo := &OutboxRepository{
		querier: nil,
		logger:  newTestLogger(),
	}

	mockTx := pgx.Tx(nil)
	txRepo := repo.WithTx(mockTx)

	assert.NotNil(t, txRepo)
	outboxRepo, ok := txRepo.(*OutboxRepository)
	assert.True(t, ok)
	assert.Equal(t, mockTx, outboxRepo.querier)
}

func TestOutboxRepository_Create(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &OutboxRepository{querier: mock, logger: newTestLogger()}
	msg, err := outbox.NewMessage(outbox.KindAudit, uuid.New(), map[string]string{"event": "SIGN"})
	require.NoError(t, err)

	query := `INSERT INTO outbox_messages \(kind, aggregate_id, payload, status, attempts, created_at\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6\) RETURNING id`

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(msg.Kind, msg.AggregateID, msg.Payload, msg.Status, msg.Attempts, msg.CreatedAt).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

		require.NoError(t, repo.Create(ctx, msg))
		assert.Equal(t, int64(42), msg.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		dbErr := errors.New("insert failed")
		mock.ExpectQuery(query).WillReturnError(dbErr)

		err := repo.Create(ctx, msg)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOutboxRepository_ListPending(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &OutboxRepository{querier: mock, logger: newTestLogger()}
	now := time.Now()
	aggregateID := uuid.New()
	lastErr := "broker down"

	query := `SELECT id, kind, aggregate_id, payload, status, attempts, created_at, last_attempt_at, last_error\s+FROM outbox_messages\s+WHERE status = \$1`
	columns := []string{"id", "kind", "aggregate_id", "payload", "status", "attempts", "created_at", "last_attempt_at", "last_error"}

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows(columns).
			AddRow(int64(1), outbox.KindAudit, aggregateID, []byte(`{}`), outbox.StatusPending, 0, now, nil, nil).
			AddRow(int64(2), outbox.KindNotification, aggregateID, []byte(`{}`), outbox.StatusPending, 1, now, &now, &lastErr)
		mock.ExpectQuery(query).WithArgs(outbox.StatusPending, 10).WillReturnRows(rows)

		messages, err := repo.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, outbox.KindAudit, messages[0].Kind)
		assert.Nil(t, messages[0].LastAttemptAt)
		assert.Nil(t, messages[0].LastError)
		assert.Equal(t, 1, messages[1].Attempts)
		require.NotNil(t, messages[1].LastError)
		assert.Equal(t, lastErr, *messages[1].LastError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(outbox.StatusPending, 10).WillReturnRows(pgxmock.NewRows(columns))

		messages, err := repo.ListPending(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, messages)
	})

	t.Run("query error", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(outbox.StatusPending, 10).WillReturnError(errors.New("boom"))

		_, err := repo.ListPending(ctx, 10)
		assert.Contains(t, err.Error(), "failed to list pending outbox messages")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOutboxRepository_MarkStatus(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &OutboxRepository{querier: mock, logger: newTestLogger()}
	query := `UPDATE outbox_messages\s+SET status = \$1, last_attempt_at = NOW\(\), last_error = COALESCE\(\$2, last_error\)\s+WHERE id = \$3`

	t.Run("processed", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(outbox.StatusProcessed, (*string)(nil), int64(7)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.MarkProcessed(ctx, 7))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed keeps the reason", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(outbox.StatusFailedToPublish, pgxmock.AnyArg(), int64(9)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.MarkFailed(ctx, 9, "unknown kind"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(outbox.StatusProcessed, (*string)(nil), int64(8)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.MarkProcessed(ctx, 8)
		assert.ErrorAs(t, err, &outbox.ErrMessageNotFound{})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOutboxRepository_RecordFailure(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &OutboxRepository{querier: mock, logger: newTestLogger()}
	query := `UPDATE outbox_messages\s+SET attempts = attempts \+ 1`

	t.Run("still pending", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(int64(3), "broker down", 5, outbox.StatusFailedToPublish, outbox.StatusPending).
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(outbox.StatusPending))

		status, err := repo.RecordFailure(ctx, 3, "broker down", 5)
		require.NoError(t, err)
		assert.Equal(t, outbox.StatusPending, status)
	})

	t.Run("cap reached", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(int64(4), "broker down", 5, outbox.StatusFailedToPublish, outbox.StatusPending).
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(outbox.StatusFailedToPublish))

		status, err := repo.RecordFailure(ctx, 4, "broker down", 5)
		require.NoError(t, err)
		assert.Equal(t, outbox.StatusFailedToPublish, status)
	})

	t.Run("already settled", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(int64(5), "x", 5, outbox.StatusFailedToPublish, outbox.StatusPending).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.RecordFailure(ctx, 5, "x", 5)
		assert.ErrorAs(t, err, &outbox.ErrMessageNotFound{})
	})

	t.Run("long reasons are truncated", func(t *testing.T) {
		long := strings.Repeat("e", maxErrorLength+10)
		mock.ExpectQuery(query).
			WithArgs(int64(6), long[:maxErrorLength], 5, outbox.StatusFailedToPublish, outbox.StatusPending).
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(outbox.StatusPending))

		_, err := repo.RecordFailure(ctx, 6, long, 5)
		require.NoError(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
