package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/pawnmarket-contract-engine/internal/domain/action"
)

// ErrWorkerPanic wraps a panic raised while a slip was being processed.
var ErrWorkerPanic = errors.New("slip processing panicked")

const defaultWorkerExpiry = time.Minute

// WorkerPoolProcessingService bounds how many slips are verified at once.
type WorkerPoolProcessingService struct {
	baseService ProcessingService
	pool        *ants.Pool
	logger      *slog.Logger
}

type WorkerPoolConfig struct {
	Size int
	// IdleExpiry is how long an idle worker goroutine is kept around.
	IdleExpiry time.Duration
}

func NewWorkerPoolProcessingService(
	baseService ProcessingService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolProcessingService, error) {
	if config.Size <= 0 {
		return nil, fmt.Errorf("worker pool size must be positive, got %d", config.Size)
	}
	expiry := config.IdleExpiry
	if expiry <= 0 {
		expiry = defaultWorkerExpiry
	}

	pool, err := ants.NewPool(config.Size, ants.WithExpiryDuration(expiry))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool of size %d: %w", config.Size, err)
	}

	return &WorkerPoolProcessingService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
	}, nil
}

// ProcessSubmission runs the submission on a pooled worker and waits for it.
// A panic in the worker comes back as ErrWorkerPanic so the consumer can
// dead-letter the message instead of losing the process.
func (s *WorkerPoolProcessingService) ProcessSubmission(ctx context.Context, msg *action.SlipSubmitted) error {
	logger := s.logger.With(
		"submission_id", msg.SubmissionID.String(),
		"request_id", msg.RequestID.String(),
	)
	if msg.CorrelationID != "" {
		logger = logger.With("correlation_id", msg.CorrelationID)
	}

	result := make(chan error, 1)
	submission := *msg

	err := s.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Recovered panic in slip worker", "panic", r)
				result <- fmt.Errorf("%w: %v", ErrWorkerPanic, r)
			}
		}()
		result <- s.baseService.ProcessSubmission(ctx, &submission)
	})
	if err != nil {
		logger.Error("Failed to submit slip to worker pool", "error", err)
		return fmt.Errorf("failed to submit slip to worker pool: %w", err)
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting work and waits up to timeout for running slips.
func (s *WorkerPoolProcessingService) Shutdown(timeout time.Duration) error {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	if err := s.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("worker pool did not drain within %s: %w", timeout, err)
	}
	return nil
}

func (s *WorkerPoolProcessingService) Running() int {
	return s.pool.Running()
}

func (s *WorkerPoolProcessingService) Capacity() int {
	return s.pool.Cap()
}
