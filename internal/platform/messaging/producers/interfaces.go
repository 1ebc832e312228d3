package producers

import (
	"context"

	"github.com/pawnmarket-contract-engine/internal/domain/notification"
)

// MessagePublisher is used by the gateway to queue slip submissions
type MessagePublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	Close() error
}

// DeadLetterPublisher parks a consumed message together with the reason it was rejected
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

var (
	_ MessagePublisher       = (*SlipSubmissionProducer)(nil)
	_ DeadLetterPublisher    = (*DLQProducer)(nil)
	_ notification.Publisher = (*NotificationPublisher)(nil)
)
