package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pawnmarket-contract-engine/internal/api_gateway/middleware"
	"github.com/pawnmarket-contract-engine/internal/api_gateway/service"
	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/domain/audit"
	"github.com/pawnmarket-contract-engine/internal/domain/evidence"
	"github.com/pawnmarket-contract-engine/internal/domain/verification"
	"github.com/pawnmarket-contract-engine/internal/workflow"
)

// PaginatedResponse is a generic version of Response for testing paginated data
type PaginatedResponse[T any] struct {
	Data          []T        `json:"data"`
	Error         *ErrorInfo `json:"error,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	Meta          *MetaInfo  `json:"meta,omitempty"`
}

// DataResponse is a generic version of Response for testing single objects
type DataResponse[T any] struct {
	Data          T          `json:"data"`
	Error         *ErrorInfo `json:"error,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
}

func newTestLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.CorrelationID())
	return r
}

// multipartBody builds a single-file multipart body under the upload field.
func multipartBody(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(uploadField, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

// pngBytes is the smallest prefix http.DetectContentType recognises as PNG.
var pngBytes = []byte("\x89PNG\r\n\x1a\n0000IHDR")

func withActor(req *http.Request, id uuid.UUID) *http.Request {
	req.Header.Set(middleware.ActorIDHeader, id.String())
	return req
}

type MockActionService struct {
	mock.Mock
}

func (m *MockActionService) request(args mock.Arguments) (*action.Request, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*action.Request), args.Error(1)
}

func (m *MockActionService) Preview(ctx context.Context, contractID uuid.UUID, typ action.Type, amount decimal.Decimal) (*action.Quote, error) {
	args := m.Called(ctx, contractID, typ, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*action.Quote), args.Error(1)
}

func (m *MockActionService) CreateRequest(ctx context.Context, in workflow.CreateRequestInput) (*action.Request, error) {
	return m.request(m.Called(ctx, in))
}

func (m *MockActionService) GetRequest(ctx context.Context, id uuid.UUID) (*action.Request, error) {
	return m.request(m.Called(ctx, id))
}

func (m *MockActionService) ListRequests(ctx context.Context, contractID uuid.UUID, page, perPage int) ([]*action.Request, int64, error) {
	args := m.Called(ctx, contractID, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*action.Request), args.Get(1).(int64), args.Error(2)
}

func (m *MockActionService) DecideInvestor(ctx context.Context, d workflow.InvestorDecision) (*action.Request, error) {
	return m.request(m.Called(ctx, d))
}

func (m *MockActionService) Sign(ctx context.Context, requestID, pawnerID uuid.UUID, signature service.Upload) (*action.Request, error) {
	return m.request(m.Called(ctx, requestID, pawnerID, signature))
}

func (m *MockActionService) ConfirmReceipt(ctx context.Context, requestID, pawnerID uuid.UUID) (*action.Request, error) {
	return m.request(m.Called(ctx, requestID, pawnerID))
}

func (m *MockActionService) Cancel(ctx context.Context, requestID, pawnerID uuid.UUID, reason string) (*action.Request, error) {
	return m.request(m.Called(ctx, requestID, pawnerID, reason))
}

func (m *MockActionService) ListVerifications(ctx context.Context, requestID uuid.UUID) ([]*verification.Record, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*verification.Record), args.Error(1)
}

func (m *MockActionService) ListAudit(ctx context.Context, requestID uuid.UUID, page, perPage int) ([]*audit.Entry, int64, error) {
	args := m.Called(ctx, requestID, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*audit.Entry), args.Get(1).(int64), args.Error(2)
}

type MockEvidenceService struct {
	mock.Mock
}

func (m *MockEvidenceService) SubmitSlip(ctx context.Context, upload service.SlipUpload) (*action.SlipSubmitted, error) {
	args := m.Called(ctx, upload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*action.SlipSubmitted), args.Error(1)
}

func (m *MockEvidenceService) Open(ctx context.Context, id string) (*evidence.Object, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*evidence.Object), args.Error(1)
}
