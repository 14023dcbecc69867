package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestProcessedEventRepository_Seen(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ns := "escrow." + ProcessedEventCollectionName

	mt.Run("seen", func(mt *mtest.T) {
		repo := NewProcessedEventRepository(newTestLogger(), mt.DB, time.Hour)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "evt_1"},
			{Key: "processed_at", Value: time.Now().UTC()},
		}))

		seen, err := repo.Seen(context.Background(), "evt_1")
		require.NoError(mt, err)
		assert.True(mt, seen)
	})

	mt.Run("unseen", func(mt *mtest.T) {
		repo := NewProcessedEventRepository(newTestLogger(), mt.DB, time.Hour)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		seen, err := repo.Seen(context.Background(), "evt_2")
		require.NoError(mt, err)
		assert.False(mt, seen)
	})

	mt.Run("error", func(mt *mtest.T) {
		repo := NewProcessedEventRepository(newTestLogger(), mt.DB, time.Hour)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 13, Message: "unauthorized"}))

		seen, err := repo.Seen(context.Background(), "evt_3")
		assert.Error(mt, err)
		assert.False(mt, seen)
	})
}

func TestProcessedEventRepository_Mark(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("inserted", func(mt *mtest.T) {
		repo := NewProcessedEventRepository(newTestLogger(), mt.DB, time.Hour)
		fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		repo.now = func() time.Time { return fixed }
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		require.NoError(mt, repo.Mark(context.Background(), "evt_1"))

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "insert", started.CommandName)
		docs := started.Command.Lookup("documents").Array()
		values, err := docs.Values()
		require.NoError(mt, err)
		require.Len(mt, values, 1)
		assert.Equal(mt, "evt_1", values[0].Document().Lookup("_id").StringValue())
	})

	mt.Run("already marked", func(mt *mtest.T) {
		repo := NewProcessedEventRepository(newTestLogger(), mt.DB, time.Hour)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Code: 11000, Message: "E11000 duplicate key"}))

		assert.NoError(mt, repo.Mark(context.Background(), "evt_1"))
	})

	mt.Run("error", func(mt *mtest.T) {
		repo := NewProcessedEventRepository(newTestLogger(), mt.DB, time.Hour)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "invalid document"}))

		err := repo.Mark(context.Background(), "evt_1")
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "failed to mark event as processed")
	})
}

func TestProcessedEventRepository_EnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("creates ttl index", func(mt *mtest.T) {
		repo := NewProcessedEventRepository(newTestLogger(), mt.DB, 720*time.Hour)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		require.NoError(mt, repo.EnsureIndexes(context.Background()))

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "createIndexes", started.CommandName)
		index := started.Command.Lookup("indexes").Array().Index(0).Value().Document()
		assert.Equal(mt, int32(720*3600), index.Lookup("expireAfterSeconds").Int32())
	})
}
