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
	"github.com/pawnmarket-contract-engine/internal/domain/contract"
	"github.com/pawnmarket-contract-engine/internal/domain/evidence"
	"github.com/pawnmarket-contract-engine/internal/workflow"
)

func slipUpload(requestID, actorID uuid.UUID, leg action.Leg) SlipUpload {
	return SlipUpload{
		RequestID:      requestID,
		Leg:            leg,
		ActorID:        actorID,
		File:           Upload{Filename: "slip.jpg", ContentType: "image/jpeg", Data: []byte("jpeg")},
		IdempotencyKey: "key-1",
		CorrelationID:  "corr-1",
	}
}

func TestEvidenceService_SubmitSlip(t *testing.T) {
	ctx := context.Background()
	pawnerID := uuid.New()
	investorID := uuid.New()

	newRequest := func() *action.Request {
		return &action.Request{
			ID:         uuid.New(),
			PawnerID:   pawnerID,
			InvestorID: investorID,
			Status:     action.StatusAwaitingPayment,
		}
	}

	t.Run("PawnerSlipQueued", func(t *testing.T) {
		wf, store, producer := new(MockWorkflow), new(MockStore), new(MockPublisher)
		svc := NewEvidenceService(newTestLogger(t), wf, store, producer)

		r := newRequest()
		wf.On("CheckSlip", ctx, r.ID, action.LegPawner).Return(r, nil)
		store.On("Upload", ctx, "slip.jpg", "image/jpeg", []byte("jpeg")).Return("http://evidence/1", nil)
		producer.On("Publish", ctx, r.ID.String(), mock.MatchedBy(func(m *action.SlipSubmitted) bool {
			return m.RequestID == r.ID &&
				m.Leg == action.LegPawner &&
				m.SlipURL == "http://evidence/1" &&
				m.IdempotencyKey == "key-1" &&
				m.CorrelationID == "corr-1" &&
				m.SubmissionID != uuid.Nil
		})).Return(nil)

		msg, err := svc.SubmitSlip(ctx, slipUpload(r.ID, pawnerID, action.LegPawner))
		require.NoError(t, err)
		assert.NoError(t, msg.Validate())
		wf.AssertExpectations(t)
		store.AssertExpectations(t)
		producer.AssertExpectations(t)
	})

	t.Run("InvestorSlipQueued", func(t *testing.T) {
		wf, store, producer := new(MockWorkflow), new(MockStore), new(MockPublisher)
		svc := NewEvidenceService(newTestLogger(t), wf, store, producer)

		r := newRequest()
		wf.On("CheckSlip", ctx, r.ID, action.LegInvestor).Return(r, nil)
		store.On("Upload", ctx, mock.Anything, mock.Anything, mock.Anything).Return("http://evidence/2", nil)
		producer.On("Publish", ctx, r.ID.String(), mock.Anything).Return(nil)

		msg, err := svc.SubmitSlip(ctx, slipUpload(r.ID, investorID, action.LegInvestor))
		require.NoError(t, err)
		assert.Equal(t, action.LegInvestor, msg.Leg)
	})

	t.Run("WrongActorForLeg", func(t *testing.T) {
		tests := []struct {
			name    string
			leg     action.Leg
			actor   uuid.UUID
			wantErr error
		}{
			{"InvestorOnPawnerLeg", action.LegPawner, investorID, contract.ErrNotContractPawner},
			{"PawnerOnInvestorLeg", action.LegInvestor, pawnerID, contract.ErrNotContractInvestor},
			{"Stranger", action.LegPawner, uuid.New(), contract.ErrNotContractPawner},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				wf, store, producer := new(MockWorkflow), new(MockStore), new(MockPublisher)
				svc := NewEvidenceService(newTestLogger(t), wf, store, producer)

				r := newRequest()
				wf.On("CheckSlip", ctx, r.ID, tt.leg).Return(r, nil)

				_, err := svc.SubmitSlip(ctx, slipUpload(r.ID, tt.actor, tt.leg))
				assert.ErrorIs(t, err, tt.wantErr)
				store.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
				producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("RejectedUploadSkipsEverything", func(t *testing.T) {
		wf, store, producer := new(MockWorkflow), new(MockStore), new(MockPublisher)
		svc := NewEvidenceService(newTestLogger(t), wf, store, producer)

		up := slipUpload(uuid.New(), pawnerID, action.LegPawner)
		up.File.ContentType = "application/pdf"

		_, err := svc.SubmitSlip(ctx, up)
		assert.ErrorIs(t, err, evidence.ErrUnsupportedType)
		wf.AssertNotCalled(t, "CheckSlip", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("RequestNotAcceptingSlips", func(t *testing.T) {
		wf, store, producer := new(MockWorkflow), new(MockStore), new(MockPublisher)
		svc := NewEvidenceService(newTestLogger(t), wf, store, producer)

		id := uuid.New()
		stateErr := action.StateError{ID: id, Current: action.StatusCompleted, Event: action.EventSlipAccepted}
		wf.On("CheckSlip", ctx, id, action.LegPawner).Return(nil, stateErr)

		_, err := svc.SubmitSlip(ctx, slipUpload(id, pawnerID, action.LegPawner))
		assert.ErrorIs(t, err, action.ErrInvalidState)
		store.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("PublishFailure", func(t *testing.T) {
		wf, store, producer := new(MockWorkflow), new(MockStore), new(MockPublisher)
		svc := NewEvidenceService(newTestLogger(t), wf, store, producer)

		r := newRequest()
		wf.On("CheckSlip", ctx, r.ID, action.LegPawner).Return(r, nil)
		store.On("Upload", ctx, mock.Anything, mock.Anything, mock.Anything).Return("http://evidence/3", nil)
		producer.On("Publish", ctx, r.ID.String(), mock.Anything).Return(errors.New("broker unreachable"))

		_, err := svc.SubmitSlip(ctx, slipUpload(r.ID, pawnerID, action.LegPawner))
		var collab *workflow.CollaboratorError
		require.ErrorAs(t, err, &collab)
		assert.Equal(t, "publish slip submission", collab.Op)
		assert.EqualError(t, err, "publish slip submission: broker unreachable")
	})

	t.Run("StoreFailure", func(t *testing.T) {
		wf, store, producer := new(MockWorkflow), new(MockStore), new(MockPublisher)
		svc := NewEvidenceService(newTestLogger(t), wf, store, producer)

		r := newRequest()
		cause := errors.New("gridfs write timeout")
		wf.On("CheckSlip", ctx, r.ID, action.LegPawner).Return(r, nil)
		store.On("Upload", ctx, mock.Anything, mock.Anything, mock.Anything).Return("", cause)

		_, err := svc.SubmitSlip(ctx, slipUpload(r.ID, pawnerID, action.LegPawner))
		var collab *workflow.CollaboratorError
		require.ErrorAs(t, err, &collab)
		assert.Equal(t, "store slip", collab.Op)
		assert.ErrorIs(t, err, cause)
		producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestEvidenceService_Open(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	svc := NewEvidenceService(newTestLogger(t), new(MockWorkflow), store, new(MockPublisher))

	store.On("Open", ctx, "missing").Return(nil, evidence.ErrNotFound)

	_, err := svc.Open(ctx, "missing")
	assert.ErrorIs(t, err, evidence.ErrNotFound)
	var collab *workflow.CollaboratorError
	assert.False(t, errors.As(err, &collab), "a missing object is not a transport failure")

	store.On("Open", ctx, "broken").Return(nil, errors.New("connection refused"))
	_, err = svc.Open(ctx, "broken")
	require.ErrorAs(t, err, &collab)
	assert.Equal(t, "open evidence", collab.Op)
}
