// Package components assembles the payment worker's processing pipeline.
package components

import (
	"log/slog"

	"github.com/escrow-payments/internal/config"
	"github.com/escrow-payments/internal/escrow"
	"github.com/escrow-payments/internal/payment_worker/service"
)

// CreateCompletionProcessor wraps the capture coordinator in a bounded worker pool.
// The returned stop func releases the pool; it is a no-op for the unpooled fallback.
func CreateCompletionProcessor(
	captures escrow.CaptureService,
	logger *slog.Logger,
	cfg *config.Config,
) (service.CompletionProcessor, func()) {
	baseService := service.NewCompletionService(captures, logger)

	if cfg.WorkerPool.Size <= 0 {
		logger.Warn("Worker pool disabled, processing completions inline", "pool_size", cfg.WorkerPool.Size)
		return baseService, func() {}
	}

	workerPoolService, err := service.NewWorkerPoolCompletionService(
		baseService,
		service.WorkerPoolConfig{Size: cfg.WorkerPool.Size},
		logger.With("component", "worker_pool"),
	)
	if err != nil {
		logger.Error("Failed to create worker pool service, falling back to base service", "error", err)
		return baseService, func() {}
	}

	logger.Info("Created worker pool completion service", "pool_size", cfg.WorkerPool.Size)
	return workerPoolService, func() {
		if err := workerPoolService.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
			logger.Warn("Worker pool did not drain before timeout", "error", err)
		}
	}
}
