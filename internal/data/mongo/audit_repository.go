package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pawnmarket-contract-engine/internal/domain/audit"
)

type auditDocument struct {
	ID              uuid.UUID             `bson:"_id"`
	RequestID       uuid.UUID             `bson:"request_id"`
	ContractID      uuid.UUID             `bson:"contract_id"`
	Event           string                `bson:"event"`
	FromStatus      string                `bson:"from_status"`
	ToStatus        string                `bson:"to_status"`
	Actor           string                `bson:"actor"`
	PrincipalBefore *primitive.Decimal128 `bson:"principal_before,omitempty"`
	PrincipalAfter  *primitive.Decimal128 `bson:"principal_after,omitempty"`
	EndDateBefore   *time.Time            `bson:"end_date_before,omitempty"`
	EndDateAfter    *time.Time            `bson:"end_date_after,omitempty"`
	Details         map[string]string     `bson:"details,omitempty"`
	CreatedAt       time.Time             `bson:"created_at"`
}

func newAuditDocument(e *audit.Entry) auditDocument {
	return auditDocument{
		ID:              e.ID,
		RequestID:       e.RequestID,
		ContractID:      e.ContractID,
		Event:           e.Event,
		FromStatus:      e.FromStatus,
		ToStatus:        e.ToStatus,
		Actor:           e.Actor,
		PrincipalBefore: toNullDecimal128(e.PrincipalBefore),
		PrincipalAfter:  toNullDecimal128(e.PrincipalAfter),
		EndDateBefore:   e.EndDateBefore,
		EndDateAfter:    e.EndDateAfter,
		Details:         e.Details,
		CreatedAt:       e.CreatedAt,
	}
}

func (d auditDocument) entry() (*audit.Entry, error) {
	before, err := fromNullDecimal128(d.PrincipalBefore)
	if err != nil {
		return nil, err
	}
	after, err := fromNullDecimal128(d.PrincipalAfter)
	if err != nil {
		return nil, err
	}
	return &audit.Entry{
		ID:              d.ID,
		RequestID:       d.RequestID,
		ContractID:      d.ContractID,
		Event:           d.Event,
		FromStatus:      d.FromStatus,
		ToStatus:        d.ToStatus,
		Actor:           d.Actor,
		PrincipalBefore: before,
		PrincipalAfter:  after,
		EndDateBefore:   d.EndDateBefore,
		EndDateAfter:    d.EndDateAfter,
		Details:         d.Details,
		CreatedAt:       d.CreatedAt,
	}, nil
}

var _ audit.Repository = (*AuditRepository)(nil)

// AuditRepository implements audit.Repository for MongoDB
type AuditRepository struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewAuditRepository creates a new MongoDB audit log repository
func NewAuditRepository(logger *slog.Logger, db *mongo.Database, collection string) *AuditRepository {
	return &AuditRepository{
		collection: db.Collection(collection),
		logger:     logger,
	}
}

// EnsureIndexes creates the request lookup index
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "request_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create audit indexes: %w", err)
	}
	return nil
}

// Append inserts an entry keyed by its ID. The outbox may deliver the same
// entry more than once, so a duplicate key is success.
func (r *AuditRepository) Append(ctx context.Context, e *audit.Entry) error {
	_, err := r.collection.InsertOne(ctx, newAuditDocument(e))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			r.logger.Info("Audit entry already appended", "audit_id", e.ID.String())
			return nil
		}
		r.logger.Error("Failed to append audit entry",
			"audit_id", e.ID.String(),
			"request_id", e.RequestID.String(),
			"error", err)
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// ListByRequest retrieves paginated audit entries for a request, oldest first
func (r *AuditRepository) ListByRequest(ctx context.Context, requestID uuid.UUID, limit, offset int) ([]*audit.Entry, error) {
	filter := bson.M{"request_id": requestID}
	opts := options.Find().
		SetSort(bson.M{"created_at": 1}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get audit entries",
			"request_id", requestID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []auditDocument
	if err := cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode audit entries",
			"request_id", requestID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode audit entries: %w", err)
	}

	entries := make([]*audit.Entry, 0, len(docs))
	for _, d := range docs {
		e, err := d.entry()
		if err != nil {
			return nil, fmt.Errorf("failed to decode audit entry %s: %w", d.ID, err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// CountByRequest counts the audit entries of a request
func (r *AuditRepository) CountByRequest(ctx context.Context, requestID uuid.UUID) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"request_id": requestID})
	if err != nil {
		r.logger.Error("Failed to count audit entries",
			"request_id", requestID.String(),
			"error", err)
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	return count, nil
}
