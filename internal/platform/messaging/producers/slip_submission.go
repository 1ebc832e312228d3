package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pawnmarket-contract-engine/internal/config"
	"github.com/segmentio/kafka-go"
)

// SlipSubmissionProducer publishes accepted slip uploads to the evidence topic.
type SlipSubmissionProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// NewSlipSubmissionProducer creates the gateway producer and ensures the topic exists
func NewSlipSubmissionProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*SlipSubmissionProducer, error) {
	if cfg.EvidenceTopic == "" {
		return nil, fmt.Errorf("kafka evidence topic is not configured")
	}

	if err := ensureTopic(ctx, logger, cfg, cfg.EvidenceTopic); err != nil {
		return nil, fmt.Errorf("failed to ensure evidence topic %s exists: %w", cfg.EvidenceTopic, err)
	}

	// The upload is answered 202 only once the submission is durably queued.
	writer := newTopicWriter(cfg, cfg.EvidenceTopic, &kafka.Hash{})

	return &SlipSubmissionProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.EvidenceTopic,
	}, nil
}

// Publish writes value under key. Keying by request id keeps the slips of one
// request on one partition, in upload order.
func (p *SlipSubmissionProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal slip submission: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish slip submission",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish slip submission to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published slip submission",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *SlipSubmissionProducer) Close() error {
	p.logger.Info("Closing slip submission producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
