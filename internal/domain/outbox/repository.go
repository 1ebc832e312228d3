package outbox

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
)

// Repository persists outbox messages. Create runs on the transaction of the
// state change; the rest is used by the poller after commit.
type Repository interface {
	Create(ctx context.Context, message *Message) error
	ListPending(ctx context.Context, limit int) ([]*Message, error)
	MarkProcessed(ctx context.Context, id int64) error
	// MarkFailed gives up on a message without counting an attempt.
	MarkFailed(ctx context.Context, id int64, reason string) error
	// RecordFailure counts an attempt and fails the message once it reaches
	// maxAttempts, in one statement.
	RecordFailure(ctx context.Context, id int64, reason string, maxAttempts int) (Status, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrMessageNotFound indicates missing outbox message
type ErrMessageNotFound struct {
	ID int64
}

func (e ErrMessageNotFound) Error() string {
	return "outbox message not found: " + strconv.FormatInt(e.ID, 10)
}
