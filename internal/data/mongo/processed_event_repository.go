package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// ProcessedEventCollectionName stores ids of webhook events already applied
	ProcessedEventCollectionName = "processed_webhook_events"
)

type processedEvent struct {
	ID          string    `bson:"_id"`
	ProcessedAt time.Time `bson:"processed_at"`
}

// ProcessedEventRepository is the durable webhook deduplication store
type ProcessedEventRepository struct {
	db        *mongo.Database
	logger    *slog.Logger
	retention time.Duration
	now       func() time.Time
}

func NewProcessedEventRepository(logger *slog.Logger, db *mongo.Database, retention time.Duration) *ProcessedEventRepository {
	return &ProcessedEventRepository{
		db:        db,
		logger:    logger,
		retention: retention,
		now:       time.Now,
	}
}

// EnsureIndexes creates the TTL index that expires entries after the retention window
func (r *ProcessedEventRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(ProcessedEventCollectionName)

	model := mongo.IndexModel{
		Keys:    bson.D{{Key: "processed_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(r.retention.Seconds())),
	}
	if _, err := collection.Indexes().CreateOne(ctx, model); err != nil {
		r.logger.Error("Failed to create processed event TTL index", "error", err)
		return fmt.Errorf("failed to create processed event TTL index: %w", err)
	}
	return nil
}

func (r *ProcessedEventRepository) Seen(ctx context.Context, eventID string) (bool, error) {
	collection := r.db.Collection(ProcessedEventCollectionName)

	var existing processedEvent
	err := collection.FindOne(ctx, bson.M{"_id": eventID}).Decode(&existing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		r.logger.Error("Failed to look up processed event", "event_id", eventID, "error", err)
		return false, fmt.Errorf("failed to look up processed event: %w", err)
	}
	return true, nil
}

// Mark records the event as processed. Marking twice is not an error.
func (r *ProcessedEventRepository) Mark(ctx context.Context, eventID string) error {
	collection := r.db.Collection(ProcessedEventCollectionName)

	_, err := collection.InsertOne(ctx, processedEvent{ID: eventID, ProcessedAt: r.now().UTC()})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		r.logger.Error("Failed to mark event as processed", "event_id", eventID, "error", err)
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}
	return nil
}
