package consumers

import (
	"context"
	"log/slog"
	"time"

	"github.com/pawnmarket-contract-engine/internal/config"
	"github.com/segmentio/kafka-go"
)

const (
	defaultRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
)

// MessageHandler processes one record. Returning nil commits it.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer defines the message queue consumer interface
type Consumer interface {
	Subscribe(ctx context.Context, topic string, groupID string, handler MessageHandler) error
	Close() error
}

// messageReader is the subset of kafka.Reader the consumer drives
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads slip submissions with manual commits
type KafkaConsumer struct {
	reader     messageReader
	logger     *slog.Logger
	retryDelay time.Duration
	done       chan struct{}
}

var _ Consumer = (*KafkaConsumer)(nil)

func NewKafkaConsumer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig) *KafkaConsumer {
	startOffset := kafka.FirstOffset
	if cfg.StartOffset != 0 {
		startOffset = cfg.StartOffset
	}
	return &KafkaConsumer{
		logger:     logger,
		retryDelay: defaultRetryDelay,
		done:       make(chan struct{}),
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     []string{cfg.Brokers},
			Topic:       cfg.EvidenceTopic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			MaxWait:     cfg.MaxWait,
			StartOffset: startOffset,
		}),
	}
}

// Subscribe starts the fetch loop in the background and returns at once.
// A failed record is retried in place with capped backoff until handler
// returns nil or ctx ends; the loop never fetches past an uncommitted record.
func (c *KafkaConsumer) Subscribe(ctx context.Context, topic string, groupID string, handler MessageHandler) error {
	logger := c.logger.With("topic", topic, "group_id", groupID)
	logger.Info("Subscribed to Kafka topic")

	go func() {
		defer close(c.done)
		c.run(ctx, logger, handler)
		logger.Info("Kafka consumer stopped")
	}()
	return nil
}

func (c *KafkaConsumer) run(ctx context.Context, logger *slog.Logger, handler MessageHandler) {
	delay := c.retryDelay
	for ctx.Err() == nil {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("Failed to fetch message from Kafka", "error", err, "retry_in", delay.String())
			if !sleep(ctx, delay) {
				return
			}
			delay = min(delay*2, maxRetryDelay)
			continue
		}
		delay = c.retryDelay

		c.handle(ctx, logger, msg, handler)
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, logger *slog.Logger, msg kafka.Message, handler MessageHandler) {
	logger = logger.With(
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
	)
	logger.Debug("Received message from Kafka")

	delay := c.retryDelay
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg.Key, msg.Value)
		if err == nil {
			break
		}
		logger.Error("Failed to process message, retrying", "error", err, "attempt", attempt, "retry_in", delay.String())
		if !sleep(ctx, delay) {
			logger.Warn("Stopped retrying message, offset left uncommitted")
			return
		}
		delay = min(delay*2, maxRetryDelay)
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		logger.Error("Failed to commit message after successful processing", "error", err)
		return
	}
	logger.Debug("Message committed")
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Done is closed once the fetch loop has stopped.
func (c *KafkaConsumer) Done() <-chan struct{} {
	return c.done
}

func (c *KafkaConsumer) Close() error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
