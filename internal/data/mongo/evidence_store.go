package mongo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pawnmarket-contract-engine/internal/config"
	"github.com/pawnmarket-contract-engine/internal/domain/evidence"
)

const evidencePath = "/api/v1/evidence/"

// EvidenceStore keeps slip and signature images in GridFS and serves them
// back through the gateway under a stable URL.
type EvidenceStore struct {
	db            *mongo.Database
	logger        *slog.Logger
	bucketName    string
	chunkSize     int32
	timeout       time.Duration
	publicBaseURL string
}

// NewEvidenceStore creates a GridFS backed evidence store
func NewEvidenceStore(logger *slog.Logger, db *mongo.Database, cfg *config.MongoDBConfig, publicBaseURL string) *EvidenceStore {
	return &EvidenceStore{
		db:            db,
		logger:        logger,
		bucketName:    cfg.EvidenceBucket,
		chunkSize:     cfg.EvidenceChunkSizeBytes,
		timeout:       cfg.Timeout,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// gridfs buckets carry their deadlines as state, so each call gets its own
func (s *EvidenceStore) bucket(ctx context.Context) (*gridfs.Bucket, error) {
	opts := options.GridFSBucket().SetName(s.bucketName)
	if s.chunkSize > 0 {
		opts.SetChunkSizeBytes(s.chunkSize)
	}
	b, err := gridfs.NewBucket(s.db, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open evidence bucket: %w", err)
	}

	deadline, ok := ctx.Deadline()
	if !ok && s.timeout > 0 {
		deadline, ok = time.Now().Add(s.timeout), true
	}
	if ok {
		if err := b.SetWriteDeadline(deadline); err != nil {
			return nil, fmt.Errorf("failed to set evidence write deadline: %w", err)
		}
		if err := b.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("failed to set evidence read deadline: %w", err)
		}
	}
	return b, nil
}

// Upload stores the image and returns the URL it is served from
func (s *EvidenceStore) Upload(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	if err := evidence.CheckUpload(contentType, data); err != nil {
		return "", err
	}

	b, err := s.bucket(ctx)
	if err != nil {
		return "", err
	}

	uploadOpts := options.GridFSUpload().SetMetadata(bson.D{
		{Key: "content_type", Value: contentType},
		{Key: "uploaded_at", Value: time.Now().UTC()},
	})
	id, err := b.UploadFromStream(filename, bytes.NewReader(data), uploadOpts)
	if err != nil {
		s.logger.Error("Failed to upload evidence",
			"filename", filename,
			"size", len(data),
			"error", err)
		return "", fmt.Errorf("failed to upload evidence: %w", err)
	}

	s.logger.Info("Evidence uploaded", "evidence_id", id.Hex(), "size", len(data))
	return s.URLFor(id.Hex()), nil
}

// URLFor builds the public URL of a stored evidence file
func (s *EvidenceStore) URLFor(id string) string {
	return s.publicBaseURL + evidencePath + id
}

// Open streams a stored evidence file. The caller closes Body.
func (s *EvidenceStore) Open(ctx context.Context, id string) (*evidence.Object, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, evidence.ErrNotFound
	}

	b, err := s.bucket(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := b.OpenDownloadStream(oid)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, evidence.ErrNotFound
		}
		s.logger.Error("Failed to open evidence", "evidence_id", id, "error", err)
		return nil, fmt.Errorf("failed to open evidence: %w", err)
	}

	file := stream.GetFile()
	obj := &evidence.Object{
		ID:          id,
		Filename:    file.Name,
		ContentType: "application/octet-stream",
		Length:      file.Length,
		Body:        stream,
	}
	if file.Metadata != nil {
		if ct, ok := file.Metadata.Lookup("content_type").StringValueOK(); ok {
			obj.ContentType = ct
		}
	}
	return obj, nil
}
