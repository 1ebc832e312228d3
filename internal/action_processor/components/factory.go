package components

import (
	"log/slog"

	"github.com/pawnmarket-contract-engine/internal/action_processor/service"
	"github.com/pawnmarket-contract-engine/internal/config"
)

// CreateProcessingService builds the slip processing service behind a worker
// pool. It falls back to the unpooled service if the pool cannot be created.
func CreateProcessingService(
	wf service.SlipWorkflow,
	logger *slog.Logger,
	cfg *config.Config,
) service.ProcessingService {
	baseService := service.NewProcessingService(wf, logger)

	pooled, err := service.NewWorkerPoolProcessingService(baseService,
		service.WorkerPoolConfig{Size: cfg.WorkerPool.Size},
		logger.With("component", "slip_worker_pool"),
	)
	if err != nil {
		// Slips are still verified, one at a time on the consumer goroutine.
		logger.Warn("Worker pool unavailable, verifying slips inline", "error", err)
		return baseService
	}

	logger.Info("Slip verification runs on a worker pool", "pool_size", pooled.Capacity())
	return pooled
}
