package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/escrow-payments/internal/domain/shared"
	"github.com/panjf2000/ants/v2"
)

// WorkerPoolCompletionService bounds how many captures run against the processor at once
type WorkerPoolCompletionService struct {
	baseService CompletionProcessor
	pool        *ants.Pool
	logger      *slog.Logger
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolCompletionService(
	baseService CompletionProcessor,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolCompletionService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolCompletionService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
	}, nil
}

// ProcessCompletion runs the completion on a pooled worker and waits for its result.
func (s *WorkerPoolCompletionService) ProcessCompletion(ctx context.Context, event *shared.BookingCompletedEvent) error {
	eventCopy := *event
	resultChan := make(chan error, 1)

	err := s.pool.Submit(func() {
		resultChan <- s.baseService.ProcessCompletion(ctx, &eventCopy)
	})
	if err != nil {
		s.logger.Error("Failed to submit completion to worker pool",
			"booking_id", event.BookingID.String(),
			"error", err,
		)
		return err
	}

	select {
	case err := <-resultChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown waits up to timeout for running captures, then releases the pool.
func (s *WorkerPoolCompletionService) Shutdown(timeout time.Duration) error {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	return s.pool.ReleaseTimeout(timeout)
}

func (s *WorkerPoolCompletionService) Running() int {
	return s.pool.Running()
}

func (s *WorkerPoolCompletionService) Capacity() int {
	return s.pool.Cap()
}
