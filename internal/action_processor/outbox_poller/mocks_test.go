package outbox_poller

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"

	"github.com/pawnmarket-contract-engine/internal/domain/audit"
	"github.com/pawnmarket-contract-engine/internal/domain/notification"
	"github.com/pawnmarket-contract-engine/internal/domain/outbox"
)

// MockOutboxRepo mocks outbox.Repository
type MockOutboxRepo struct {
	mock.Mock
}

func (m *MockOutboxRepo) Create(ctx context.Context, message *outbox.Message) error {
	return m.Called(ctx, message).Error(0)
}

func (m *MockOutboxRepo) ListPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if msgs := args.Get(0); msgs != nil {
		return msgs.([]*outbox.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOutboxRepo) MarkProcessed(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOutboxRepo) MarkFailed(ctx context.Context, id int64, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

func (m *MockOutboxRepo) RecordFailure(ctx context.Context, id int64, reason string, maxAttempts int) (outbox.Status, error) {
	args := m.Called(ctx, id, reason, maxAttempts)
	return args.Get(0).(outbox.Status), args.Error(1)
}

func (m *MockOutboxRepo) WithTx(tx pgx.Tx) outbox.Repository {
	return m
}

// MockAuditRepo mocks audit.Repository
type MockAuditRepo struct {
	mock.Mock
}

func (m *MockAuditRepo) Append(ctx context.Context, e *audit.Entry) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockAuditRepo) ListByRequest(ctx context.Context, requestID uuid.UUID, limit, offset int) ([]*audit.Entry, error) {
	args := m.Called(ctx, requestID, limit, offset)
	return args.Get(0).([]*audit.Entry), args.Error(1)
}

func (m *MockAuditRepo) CountByRequest(ctx context.Context, requestID uuid.UUID) (int64, error) {
	args := m.Called(ctx, requestID)
	return args.Get(0).(int64), args.Error(1)
}

// MockPublisher mocks notification.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Push(ctx context.Context, msg *notification.Message) error {
	return m.Called(ctx, msg).Error(0)
}

// MockDispatcher mocks Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, message *outbox.Message) error {
	return m.Called(ctx, message).Error(0)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
