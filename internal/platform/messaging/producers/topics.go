package producers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pawnmarket-contract-engine/internal/config"
	"github.com/segmentio/kafka-go"
)

const (
	partitionReadAttempts = 5
	partitionReadBackoff  = 2 * time.Second
)

// KafkaWriter is the part of kafka.Writer the producers use
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ KafkaWriter = (*kafka.Writer)(nil)

// topicSettings fills in broker defaults for a topic the services create on first start.
func topicSettings(cfg *config.KafkaConfig, topic string) kafka.TopicConfig {
	topicCfg := kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
	if topicCfg.NumPartitions <= 0 {
		topicCfg.NumPartitions = 1
	}
	if topicCfg.ReplicationFactor <= 0 {
		topicCfg.ReplicationFactor = 1
	}
	return topicCfg
}

// ensureTopic creates topic unless the broker already reports partitions for it.
// Partition reads are retried since a broker that just started may not answer yet.
func ensureTopic(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig, topic string) error {
	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers)
	if err != nil {
		return fmt.Errorf("failed to dial kafka: %w", err)
	}
	defer conn.Close()

	var readErr error
	for attempt := 1; attempt <= partitionReadAttempts; attempt++ {
		var partitions []kafka.Partition
		partitions, readErr = conn.ReadPartitions(topic)
		if readErr == nil && len(partitions) > 0 {
			logger.Debug("Kafka topic exists", "topic", topic, "partitions", len(partitions))
			return nil
		}
		if errors.Is(readErr, kafka.UnknownTopicOrPartition) {
			break
		}
		logger.Warn("Failed to read topic partitions, retrying", "topic", topic, "attempt", attempt, "error", readErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(partitionReadBackoff):
		}
	}

	topicCfg := topicSettings(cfg, topic)
	if err := conn.CreateTopics(topicCfg); err != nil {
		return fmt.Errorf("failed to create kafka topic %s: %w", topic, err)
	}
	logger.Info("Created Kafka topic",
		"topic", topic,
		"partitions", topicCfg.NumPartitions,
		"replication_factor", topicCfg.ReplicationFactor,
		"last_read_error", readErr,
	)
	return nil
}

// newTopicWriter builds a synchronous writer that waits for all in-sync replicas.
func newTopicWriter(cfg *config.KafkaConfig, topic string, balancer kafka.Balancer) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        topic,
		Balancer:     balancer,
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.MaxWait,
	}
}
