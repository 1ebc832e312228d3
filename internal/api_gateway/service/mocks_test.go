package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/domain/audit"
	"github.com/pawnmarket-contract-engine/internal/domain/evidence"
	"github.com/pawnmarket-contract-engine/internal/domain/verification"
	"github.com/pawnmarket-contract-engine/internal/workflow"
)

func newTestLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockWorkflow struct {
	mock.Mock
}

func (m *MockWorkflow) request(args mock.Arguments) (*action.Request, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*action.Request), args.Error(1)
}

func (m *MockWorkflow) Preview(ctx context.Context, contractID uuid.UUID, typ action.Type, amount decimal.Decimal) (*action.Quote, error) {
	args := m.Called(ctx, contractID, typ, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*action.Quote), args.Error(1)
}

func (m *MockWorkflow) CreateRequest(ctx context.Context, in workflow.CreateRequestInput) (*action.Request, error) {
	return m.request(m.Called(ctx, in))
}

func (m *MockWorkflow) GetRequest(ctx context.Context, id uuid.UUID) (*action.Request, error) {
	return m.request(m.Called(ctx, id))
}

func (m *MockWorkflow) ListRequests(ctx context.Context, contractID uuid.UUID, limit, offset int) ([]*action.Request, int64, error) {
	args := m.Called(ctx, contractID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*action.Request), args.Get(1).(int64), args.Error(2)
}

func (m *MockWorkflow) CheckSlip(ctx context.Context, requestID uuid.UUID, leg action.Leg) (*action.Request, error) {
	return m.request(m.Called(ctx, requestID, leg))
}

func (m *MockWorkflow) DecideInvestor(ctx context.Context, d workflow.InvestorDecision) (*action.Request, error) {
	return m.request(m.Called(ctx, d))
}

func (m *MockWorkflow) Sign(ctx context.Context, requestID, pawnerID uuid.UUID, signatureURL string) (*action.Request, error) {
	return m.request(m.Called(ctx, requestID, pawnerID, signatureURL))
}

func (m *MockWorkflow) ConfirmReceipt(ctx context.Context, requestID, pawnerID uuid.UUID) (*action.Request, error) {
	return m.request(m.Called(ctx, requestID, pawnerID))
}

func (m *MockWorkflow) Cancel(ctx context.Context, requestID, pawnerID uuid.UUID, reason string) (*action.Request, error) {
	return m.request(m.Called(ctx, requestID, pawnerID, reason))
}

func (m *MockWorkflow) ListVerifications(ctx context.Context, requestID uuid.UUID) ([]*verification.Record, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*verification.Record), args.Error(1)
}

func (m *MockWorkflow) ListAudit(ctx context.Context, requestID uuid.UUID, limit, offset int) ([]*audit.Entry, int64, error) {
	args := m.Called(ctx, requestID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*audit.Entry), args.Get(1).(int64), args.Error(2)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Upload(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, filename, contentType, data)
	return args.String(0), args.Error(1)
}

func (m *MockStore) Open(ctx context.Context, id string) (*evidence.Object, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*evidence.Object), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}
