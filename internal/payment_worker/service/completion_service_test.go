package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/escrow-payments/internal/domain/payment"
	"github.com/escrow-payments/internal/domain/shared"
	"github.com/escrow-payments/internal/escrow"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockCaptureService struct {
	mock.Mock
}

func (m *MockCaptureService) CaptureAndTransfer(ctx context.Context, req escrow.CaptureRequest) (*escrow.CaptureResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.CaptureResult), args.Error(1)
}

func TestCompletionService_ProcessCompletion(t *testing.T) {
	logger := slog.Default()
	event := &shared.BookingCompletedEvent{BookingID: uuid.New(), CorrelationID: "corr-1"}

	t.Run("captures with the event correlation", func(t *testing.T) {
		captures := &MockCaptureService{}
		captures.On("CaptureAndTransfer", mock.Anything, escrow.CaptureRequest{
			BookingID:     event.BookingID,
			CorrelationID: "corr-1",
		}).Return(&escrow.CaptureResult{ChargeID: "ch_1", TransferID: "tr_1"}, nil).Once()

		err := NewCompletionService(captures, logger).ProcessCompletion(context.Background(), event)

		assert.NoError(t, err)
		captures.AssertExpectations(t)
	})

	acked := []error{
		payment.ErrTransferFailed{BookingID: event.BookingID, Amount: 10200, Currency: "EUR"},
		payment.ErrInvalidStatus,
		payment.ErrAlreadyProcessed,
		payment.ErrNoPayment,
	}
	for _, outcome := range acked {
		t.Run("acknowledges "+outcome.Error(), func(t *testing.T) {
			captures := &MockCaptureService{}
			captures.On("CaptureAndTransfer", mock.Anything, mock.Anything).Return(nil, outcome).Once()

			err := NewCompletionService(captures, logger).ProcessCompletion(context.Background(), event)

			assert.NoError(t, err)
		})
	}

	t.Run("returns retryable failures", func(t *testing.T) {
		captures := &MockCaptureService{}
		cause := fmt.Errorf("%w: api_connection_error", payment.ErrProcessorError)
		captures.On("CaptureAndTransfer", mock.Anything, mock.Anything).Return(nil, cause).Once()

		err := NewCompletionService(captures, logger).ProcessCompletion(context.Background(), event)

		assert.ErrorIs(t, err, payment.ErrProcessorError)
		assert.False(t, errors.Is(err, payment.ErrInvalidStatus))
	})
}
