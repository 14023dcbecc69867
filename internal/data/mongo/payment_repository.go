// Package mongo provides MongoDB implementations of the payment ledger and
// the processed webhook event store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/escrow-payments/internal/domain/payment"
)

const (
	// PaymentCollectionName is the name of the payment ledger collection in MongoDB
	PaymentCollectionName = "payment_records"
)

// PaymentRepository implements the payment.Repository interface for MongoDB
type PaymentRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewPaymentRepository creates a new MongoDB payment ledger repository
func NewPaymentRepository(logger *slog.Logger, db *mongo.Database) *PaymentRepository {
	return &PaymentRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the unique booking index and the processor id lookup indexes
func (r *PaymentRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(PaymentCollectionName)

	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "booking_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "authorization_id", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "charge_id", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "transfer_id", Value: 1}}, Options: options.Index().SetSparse(true)},
	}

	if _, err := collection.Indexes().CreateMany(ctx, models); err != nil {
		r.logger.Error("Failed to create payment record indexes", "error", err)
		return fmt.Errorf("failed to create payment record indexes: %w", err)
	}
	return nil
}

// GetByBookingID retrieves the ledger record of a booking.
// Returns ErrRecordNotFound if the booking has no payment yet.
func (r *PaymentRepository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*payment.Record, error) {
	return r.findOne(ctx, bson.M{"booking_id": bookingID}, bookingID.String())
}

func (r *PaymentRepository) FindByAuthorizationID(ctx context.Context, authorizationID string) (*payment.Record, error) {
	return r.findOne(ctx, bson.M{"authorization_id": authorizationID}, authorizationID)
}

func (r *PaymentRepository) FindByChargeID(ctx context.Context, chargeID string) (*payment.Record, error) {
	return r.findOne(ctx, bson.M{"charge_id": chargeID}, chargeID)
}

func (r *PaymentRepository) FindByTransferID(ctx context.Context, transferID string) (*payment.Record, error) {
	return r.findOne(ctx, bson.M{"transfer_id": transferID}, transferID)
}

func (r *PaymentRepository) findOne(ctx context.Context, filter bson.M, key string) (*payment.Record, error) {
	if key == "" {
		return nil, payment.ErrRecordNotFound{Key: key}
	}

	collection := r.db.Collection(PaymentCollectionName)

	var record payment.Record
	err := collection.FindOne(ctx, filter).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, payment.ErrRecordNotFound{Key: key}
		}
		r.logger.Error("Failed to get payment record", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get payment record: %w", err)
	}

	return &record, nil
}

// Save writes the record if the stored version still equals record.Version,
// then bumps the version. A record with version 0 is inserted; losing the
// insert race to another writer is reported as ErrConcurrentModification.
func (r *PaymentRepository) Save(ctx context.Context, record *payment.Record) error {
	collection := r.db.Collection(PaymentCollectionName)

	expected := record.Version
	record.Version = expected + 1

	filter := bson.M{"booking_id": record.BookingID, "version": expected}
	opts := options.Replace().SetUpsert(expected == 0)

	result, err := collection.ReplaceOne(ctx, filter, record, opts)
	if err != nil {
		record.Version = expected
		if mongo.IsDuplicateKeyError(err) {
			return payment.ErrConcurrentModification{BookingID: record.BookingID}
		}
		r.logger.Error("Failed to save payment record",
			"booking_id", record.BookingID.String(),
			"version", expected,
			"error", err)
		return fmt.Errorf("failed to save payment record: %w", err)
	}

	if result.MatchedCount == 0 && result.UpsertedCount == 0 {
		record.Version = expected
		return payment.ErrConcurrentModification{BookingID: record.BookingID}
	}

	return nil
}
