package mongo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/domain/verification"
)

type verificationDocument struct {
	ID             uuid.UUID             `bson:"_id"`
	RequestID      uuid.UUID             `bson:"request_id"`
	ContractID     uuid.UUID             `bson:"contract_id"`
	Leg            string                `bson:"leg"`
	Attempt        int                   `bson:"attempt"`
	ImageURL       string                `bson:"image_url"`
	ExpectedAmount primitive.Decimal128  `bson:"expected_amount"`
	DetectedAmount *primitive.Decimal128 `bson:"detected_amount,omitempty"`
	Classification string                `bson:"classification"`
	Confidence     float64               `bson:"confidence"`
	Raw            string                `bson:"raw,omitempty"`
	Error          string                `bson:"error,omitempty"`
	CreatedAt      time.Time             `bson:"created_at"`
}

func newVerificationDocument(rec *verification.Record) verificationDocument {
	return verificationDocument{
		ID:             rec.ID,
		RequestID:      rec.RequestID,
		ContractID:     rec.ContractID,
		Leg:            string(rec.Leg),
		Attempt:        rec.Attempt,
		ImageURL:       rec.ImageURL,
		ExpectedAmount: toDecimal128(rec.ExpectedAmount),
		DetectedAmount: toNullDecimal128(rec.DetectedAmount),
		Classification: string(rec.Classification),
		Confidence:     rec.Confidence,
		Raw:            string(rec.Raw),
		Error:          rec.Error,
		CreatedAt:      rec.CreatedAt,
	}
}

func (d verificationDocument) record() (*verification.Record, error) {
	expected, err := fromDecimal128(d.ExpectedAmount)
	if err != nil {
		return nil, err
	}
	detected, err := fromNullDecimal128(d.DetectedAmount)
	if err != nil {
		return nil, err
	}
	rec := &verification.Record{
		ID:             d.ID,
		RequestID:      d.RequestID,
		ContractID:     d.ContractID,
		Leg:            action.Leg(d.Leg),
		Attempt:        d.Attempt,
		ImageURL:       d.ImageURL,
		ExpectedAmount: expected,
		DetectedAmount: detected,
		Classification: verification.Classification(d.Classification),
		Confidence:     d.Confidence,
		Error:          d.Error,
		CreatedAt:      d.CreatedAt,
	}
	if d.Raw != "" {
		rec.Raw = json.RawMessage(d.Raw)
	}
	return rec, nil
}

var _ verification.Repository = (*VerificationRepository)(nil)

// VerificationRepository implements verification.Repository for MongoDB
type VerificationRepository struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewVerificationRepository creates a new MongoDB slip verification repository
func NewVerificationRepository(logger *slog.Logger, db *mongo.Database, collection string) *VerificationRepository {
	return &VerificationRepository{
		collection: db.Collection(collection),
		logger:     logger,
	}
}

// EnsureIndexes creates the per-attempt unique index and the lookup index.
func (r *VerificationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "request_id", Value: 1}, {Key: "leg", Value: 1}, {Key: "attempt", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "contract_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create verification indexes: %w", err)
	}
	return nil
}

// Insert appends one verification record. Re-inserting the same attempt
// after a crash is accepted as a no-op.
func (r *VerificationRepository) Insert(ctx context.Context, rec *verification.Record) error {
	_, err := r.collection.InsertOne(ctx, newVerificationDocument(rec))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			r.logger.Warn("Verification record already stored",
				"request_id", rec.RequestID.String(),
				"leg", string(rec.Leg),
				"attempt", rec.Attempt)
			return nil
		}
		r.logger.Error("Failed to insert verification record",
			"request_id", rec.RequestID.String(),
			"error", err)
		return fmt.Errorf("failed to insert verification record: %w", err)
	}

	return nil
}

// ListByRequest returns every attempt of a request in the order they were made
func (r *VerificationRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*verification.Record, error) {
	filter := bson.M{"request_id": requestID}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "attempt", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list verification records",
			"request_id", requestID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to list verification records: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []verificationDocument
	if err := cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode verification records",
			"request_id", requestID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode verification records: %w", err)
	}

	records := make([]*verification.Record, 0, len(docs))
	for _, d := range docs {
		rec, err := d.record()
		if err != nil {
			return nil, fmt.Errorf("failed to decode verification record %s: %w", d.ID, err)
		}
		records = append(records, rec)
	}

	return records, nil
}
