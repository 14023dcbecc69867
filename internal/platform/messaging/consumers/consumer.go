package consumers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/escrow-payments/internal/config"
	"github.com/escrow-payments/internal/platform/messaging/producers"
	"github.com/segmentio/kafka-go"
)

type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer defines the message queue consumer interface
type Consumer interface {
	Subscribe(ctx context.Context, handler MessageHandler) error
	Close() error
}

// KafkaReader wraps the kafka.Reader methods the consumer relies on
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer implements Consumer for a single topic and consumer group.
// A failing message is retried in place with exponential backoff; after
// maxAttempts it is parked on the DLQ and committed. Without a working DLQ
// the message keeps being retried and the partition does not advance.
type KafkaConsumer struct {
	reader        KafkaReader
	dlq           producers.DeadLetterPublisher
	logger        *slog.Logger
	topic         string
	groupID       string
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	maxAttempts   int
}

// NewKafkaConsumer creates a consumer; dlq may be nil
func NewKafkaConsumer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig, topic string, dlq producers.DeadLetterPublisher) *KafkaConsumer {
	startOffset := kafka.FirstOffset
	if cfg.StartOffset == kafka.LastOffset {
		startOffset = kafka.LastOffset
	}

	return &KafkaConsumer{
		dlq:           dlq,
		logger:        logger,
		topic:         topic,
		groupID:       cfg.ConsumerGroup,
		retryDelay:    cfg.RetryBackoff,
		maxRetryDelay: cfg.MaxRetryBackoff,
		maxAttempts:   cfg.MaxDeliveryAttempts,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     []string{cfg.Brokers},
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			MaxWait:     cfg.MaxWait,
			StartOffset: startOffset,
		}),
	}
}

// Subscribe starts consuming in the background.
// Offsets are committed only after the handler succeeds.
func (c *KafkaConsumer) Subscribe(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Subscribed to Kafka topic",
		"topic", c.topic,
		"group_id", c.groupID,
	)

	go c.consume(ctx, handler)

	return nil
}

func (c *KafkaConsumer) consume(ctx context.Context, handler MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Context canceled, stopping consumer",
				"topic", c.topic,
				"group_id", c.groupID,
			)
			return
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to fetch message from Kafka",
				"topic", c.topic,
				"group_id", c.groupID,
				"error", err,
			)
			time.Sleep(c.retryDelay)
			continue
		}

		c.logger.Debug("Received message from Kafka",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)

		if !c.handle(ctx, msg, handler) {
			return
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit message after successful processing",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
			continue
		}

		c.logger.Debug("Message committed successfully",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)
	}
}

// handle runs handler until it succeeds or the message is parked on the DLQ.
// It returns false only when ctx ends first, leaving the offset uncommitted.
func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message, handler MessageHandler) bool {
	delay := c.retryDelay
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg.Key, msg.Value)
		if err == nil {
			return true
		}

		c.logger.Error("Failed to process message",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"attempt", attempt,
			"error", err,
		)

		if attempt >= c.maxAttempts && c.deadLetter(ctx, msg, attempt, err) {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay = min(delay*2, c.maxRetryDelay)
	}
}

func (c *KafkaConsumer) deadLetter(ctx context.Context, msg kafka.Message, attempts int, cause error) bool {
	if c.dlq == nil {
		if attempts == c.maxAttempts {
			c.logger.Error("Message retries exhausted and no DLQ configured, retrying indefinitely",
				"topic", msg.Topic,
				"offset", msg.Offset,
				"key", string(msg.Key),
			)
		}
		return false
	}

	reason := fmt.Sprintf("processing failed after %d attempts: %s", attempts, cause.Error())
	if err := c.dlq.PublishToDLQ(ctx, string(msg.Key), msg.Value, reason); err != nil {
		c.logger.Error("Failed to park message on DLQ, will keep retrying",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"error", err,
		)
		return false
	}
	return true
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
