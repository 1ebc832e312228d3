package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pawnmarket-contract-engine/internal/config"
	"github.com/pawnmarket-contract-engine/internal/domain/notification"
	"github.com/segmentio/kafka-go"
)

// NotificationPublisher hands notices to the messaging service through the
// notification topic.
type NotificationPublisher struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

func NewNotificationPublisher(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*NotificationPublisher, error) {
	if cfg.NotificationTopic == "" {
		return nil, fmt.Errorf("kafka notification topic is not configured")
	}

	if err := ensureTopic(ctx, logger, cfg, cfg.NotificationTopic); err != nil {
		return nil, fmt.Errorf("failed to ensure notification topic %s exists: %w", cfg.NotificationTopic, err)
	}

	writer := newTopicWriter(cfg, cfg.NotificationTopic, &kafka.Hash{})

	return &NotificationPublisher{
		logger: logger,
		writer: writer,
		topic:  cfg.NotificationTopic,
	}, nil
}

// Push publishes one notice keyed by recipient. The notice id travels as a
// header so the messaging service can drop redeliveries.
func (p *NotificationPublisher) Push(ctx context.Context, msg *notification.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.RecipientID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "notification-id", Value: []byte(msg.ID.String())},
			{Key: "notification-type", Value: []byte(msg.Type)},
		},
	})
	if err != nil {
		p.logger.Error("Failed to push notification",
			"topic", p.topic,
			"notification_id", msg.ID.String(),
			"type", string(msg.Type),
			"error", err,
		)
		return fmt.Errorf("failed to push notification %s: %w", msg.ID, err)
	}

	p.logger.Debug("Pushed notification",
		"notification_id", msg.ID.String(),
		"type", string(msg.Type),
		"recipient_id", msg.RecipientID.String(),
	)
	return nil
}

func (p *NotificationPublisher) Close() error {
	p.logger.Info("Closing notification publisher", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
