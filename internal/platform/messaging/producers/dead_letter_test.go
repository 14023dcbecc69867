package producers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDLQProducer_PublishToDLQ(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	dlqTopic := "test-dlq-topic"
	ctx := context.Background()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("SuccessfulPublishToDLQ", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &DLQProducer{
			logger:   logger,
			writer:   mockWriter,
			dlqTopic: dlqTopic,
			now:      func() time.Time { return fixed },
		}

		key := "booking-key"
		originalMessageValue := []byte(`{"booking_id":"b-1"}`)
		reason := "max_retries_exceeded"

		mockWriter.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 {
				return false
			}
			msg := msgs[0]
			if string(msg.Key) != key || len(msg.Headers) != 1 || string(msg.Headers[0].Value) != reason {
				return false
			}
			var payload map[string]string
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				return false
			}
			return payload["original_key"] == key &&
				payload["original_value"] == string(originalMessageValue) &&
				payload["dlq_reason"] == reason &&
				payload["timestamp"] == "2024-03-01T12:00:00Z"
		})).Return(nil).Once()

		err := producer.PublishToDLQ(ctx, key, originalMessageValue, reason)
		require.NoError(t, err)
		mockWriter.AssertExpectations(t)
	})

	t.Run("PublishToDLQReturnsErrorOnWriterError", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &DLQProducer{logger: logger, writer: mockWriter, dlqTopic: dlqTopic}
		writerError := errors.New("kafka DLQ write error")

		mockWriter.On("WriteMessages", ctx, mock.AnythingOfType("[]kafka.Message")).Return(writerError).Once()

		err := producer.PublishToDLQ(ctx, "fail-key", []byte("fail_payload"), "writer_error")
		assert.ErrorIs(t, err, writerError)
		mockWriter.AssertExpectations(t)
	})

	t.Run("DisabledProducer", func(t *testing.T) {
		var nilProducer *DLQProducer
		assert.ErrorIs(t, nilProducer.PublishToDLQ(ctx, "k", nil, "r"), ErrDLQDisabled)

		withoutWriter := &DLQProducer{logger: logger, dlqTopic: dlqTopic}
		assert.ErrorIs(t, withoutWriter.PublishToDLQ(ctx, "k", nil, "r"), ErrDLQDisabled)
	})
}

func TestDLQProducer_Close(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	dlqTopic := "test-dlq-topic-close"

	t.Run("SuccessfulClose", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &DLQProducer{logger: logger, writer: mockWriter, dlqTopic: dlqTopic}
		mockWriter.On("Close").Return(nil).Once()

		require.NoError(t, producer.Close())
		mockWriter.AssertExpectations(t)
	})

	t.Run("CloseReturnsErrorOnWriterError", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &DLQProducer{logger: logger, writer: mockWriter, dlqTopic: dlqTopic}
		closeError := errors.New("kafka DLQ close error")
		mockWriter.On("Close").Return(closeError).Once()

		assert.ErrorIs(t, producer.Close(), closeError)
		mockWriter.AssertExpectations(t)
	})

	t.Run("CloseWhenDisabled", func(t *testing.T) {
		var nilProducer *DLQProducer
		require.NoError(t, nilProducer.Close())
		require.NoError(t, (&DLQProducer{logger: logger}).Close())
	})
}

var _ DeadLetterPublisher = (*DLQProducer)(nil)
