package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pawnmarket-contract-engine/internal/config"
	"github.com/pawnmarket-contract-engine/internal/domain/outbox"
)

// Poller processes pending outbox messages
type Poller struct {
	outboxRepo       outbox.Repository
	dispatcher       Dispatcher
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	cfg *config.OutboxConfig,
	outboxRepo outbox.Repository,
	dispatcher Dispatcher,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		outboxRepo:       outboxRepo,
		dispatcher:       dispatcher,
		logger:           logger,
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Start begins polling until context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting Outbox Poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox Poller stopping due to context cancellation.")
			return
		case <-ticker.C:
			if _, err := p.ProcessPending(ctx); err != nil {
				p.logger.Error("Error during batch processing of pending outbox messages", "error", err)
			}
		}
	}
}

// Drain processes batches until none is left or a batch makes no progress.
func (p *Poller) Drain(ctx context.Context) error {
	for {
		delivered, err := p.ProcessPending(ctx)
		if err != nil {
			return err
		}
		if delivered == 0 {
			return nil
		}
	}
}

// ProcessPending delivers one batch and returns how many messages were
// delivered. Each failed delivery counts an attempt; the repository fails the
// message for good once it reaches the retry cap.
func (p *Poller) ProcessPending(ctx context.Context) (int, error) {
	messages, err := p.outboxRepo.ListPending(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending outbox messages: %w", err)
	}
	if len(messages) == 0 {
		return 0, nil
	}
	p.logger.Debug("Fetched pending outbox messages", "count", len(messages))

	delivered := 0
	for _, msg := range messages {
		err := p.dispatcher.Dispatch(ctx, msg)
		switch {
		case err == nil:
			delivered++
			continue
		case errors.Is(err, ErrUndeliverable):
			continue
		}

		status, recErr := p.outboxRepo.RecordFailure(ctx, msg.ID, err.Error(), p.maxRetryAttempts)
		if recErr != nil {
			p.logger.Error("Failed to record outbox delivery failure", "outbox_id", msg.ID, "error", recErr)
			continue
		}
		if status == outbox.StatusFailedToPublish {
			p.logger.Error("Outbox message gave up after max retry attempts",
				"outbox_id", msg.ID,
				"kind", string(msg.Kind),
				"aggregate_id", msg.AggregateID.String(),
				"error", err,
			)
			continue
		}
		p.logger.Warn("Failed to deliver outbox message, will retry",
			"outbox_id", msg.ID,
			"kind", string(msg.Kind),
			"attempts_before", msg.Attempts,
			"error", err,
		)
	}
	return delivered, nil
}
