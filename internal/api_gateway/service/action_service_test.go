package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/domain/audit"
	"github.com/pawnmarket-contract-engine/internal/domain/contract"
)

func TestActionService_ListRequests_ConvertsPage(t *testing.T) {
	wf := new(MockWorkflow)
	svc := NewActionService(newTestLogger(t), wf, new(MockStore))
	ctx := context.Background()
	contractID := uuid.New()

	requests := []*action.Request{{ID: uuid.New()}}
	wf.On("ListRequests", ctx, contractID, 20, 40).Return(requests, int64(41), nil)

	got, total, err := svc.ListRequests(ctx, contractID, 3, 20)
	require.NoError(t, err)
	assert.Equal(t, requests, got)
	assert.Equal(t, int64(41), total)
	wf.AssertExpectations(t)
}

func TestActionService_ListAudit_ConvertsPage(t *testing.T) {
	wf := new(MockWorkflow)
	svc := NewActionService(newTestLogger(t), wf, new(MockStore))
	ctx := context.Background()
	requestID := uuid.New()

	wf.On("ListAudit", ctx, requestID, 10, 0).Return([]*audit.Entry{}, int64(0), nil)

	_, _, err := svc.ListAudit(ctx, requestID, 1, 10)
	require.NoError(t, err)
	wf.AssertExpectations(t)
}

func TestActionService_Sign(t *testing.T) {
	ctx := context.Background()
	pawnerID := uuid.New()
	signature := Upload{Filename: "sig.png", ContentType: "image/png", Data: []byte("png")}

	t.Run("Success", func(t *testing.T) {
		wf := new(MockWorkflow)
		store := new(MockStore)
		svc := NewActionService(newTestLogger(t), wf, store)

		r := &action.Request{ID: uuid.New(), PawnerID: pawnerID, Status: action.StatusAwaitingSignature}
		done := &action.Request{ID: r.ID, PawnerID: pawnerID, Status: action.StatusCompleted}
		wf.On("GetRequest", ctx, r.ID).Return(r, nil)
		store.On("Upload", ctx, "sig.png", "image/png", signature.Data).Return("http://evidence/abc", nil)
		wf.On("Sign", ctx, r.ID, pawnerID, "http://evidence/abc").Return(done, nil)

		got, err := svc.Sign(ctx, r.ID, pawnerID, signature)
		require.NoError(t, err)
		assert.Equal(t, action.StatusCompleted, got.Status)
		wf.AssertExpectations(t)
		store.AssertExpectations(t)
	})

	t.Run("StrangerStoresNothing", func(t *testing.T) {
		wf := new(MockWorkflow)
		store := new(MockStore)
		svc := NewActionService(newTestLogger(t), wf, store)

		r := &action.Request{ID: uuid.New(), PawnerID: uuid.New()}
		wf.On("GetRequest", ctx, r.ID).Return(r, nil)

		_, err := svc.Sign(ctx, r.ID, pawnerID, signature)
		assert.ErrorIs(t, err, contract.ErrNotContractPawner)
		store.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		wf.AssertNotCalled(t, "Sign", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("StoreFailure", func(t *testing.T) {
		wf := new(MockWorkflow)
		store := new(MockStore)
		svc := NewActionService(newTestLogger(t), wf, store)

		r := &action.Request{ID: uuid.New(), PawnerID: pawnerID}
		wf.On("GetRequest", ctx, r.ID).Return(r, nil)
		store.On("Upload", ctx, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("gridfs down"))

		_, err := svc.Sign(ctx, r.ID, pawnerID, signature)
		assert.EqualError(t, err, "gridfs down")
		wf.AssertNotCalled(t, "Sign", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("RequestNotFound", func(t *testing.T) {
		wf := new(MockWorkflow)
		svc := NewActionService(newTestLogger(t), wf, new(MockStore))

		id := uuid.New()
		wf.On("GetRequest", ctx, id).Return(nil, action.ErrRequestNotFound{ID: id})

		_, err := svc.Sign(ctx, id, pawnerID, signature)
		assert.ErrorIs(t, err, action.ErrRequestNotFound{})
	})
}
