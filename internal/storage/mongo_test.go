package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/chat-gateway/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap"
)

func newMockMongo(mt *mtest.T) *MongoStorage {
	return newMongoStorage(mt.Client, mt.DB, zap.NewNop())
}

func emptyCursor(ns string) bson.D {
	return mtest.CreateCursorResponse(0, ns, mtest.FirstBatch)
}

func TestMongoStorage_UpsertUser(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("creates missing user", func(mt *mtest.T) {
		s := newMockMongo(mt)
		mt.AddMockResponses(
			emptyCursor("test.users"),
			mtest.CreateSuccessResponse(),
		)

		user, err := s.UpsertUser(ctx, models.Profile{ID: 9, FirstName: "Ann", Username: "ann"})
		require.NoError(mt, err)
		assert.Equal(mt, int64(9), user.ID)
		assert.Equal(mt, "Ann", user.FirstName)
		assert.True(mt, user.IsActive)
		assert.Equal(mt, user.CreatedAt, user.UpdatedAt)

		started := mt.GetAllStartedEvents()
		require.Len(mt, started, 2)
		assert.Equal(mt, "find", started[0].CommandName)
		assert.Equal(mt, "insert", started[1].CommandName)
	})

	mt.Run("duplicate key reads back the winner", func(mt *mtest.T) {
		s := newMockMongo(mt)
		created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		mt.AddMockResponses(
			emptyCursor("test.users"),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Code: 11000, Message: "E11000 duplicate key error"}),
			mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: int64(9)},
				{Key: "first_name", Value: "Ann"},
				{Key: "is_active", Value: true},
				{Key: "created_at", Value: created},
				{Key: "updated_at", Value: created},
			}),
		)

		user, err := s.UpsertUser(ctx, models.Profile{ID: 9, FirstName: "Ann"})
		require.NoError(mt, err)
		assert.True(mt, created.Equal(user.CreatedAt))
		assert.True(mt, created.Equal(user.UpdatedAt))

		// find, insert, find; an unchanged profile issues no update.
		assert.Len(mt, mt.GetAllStartedEvents(), 3)
	})
}

func TestMongoStorage_RecentEntries(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("newest window oldest first", func(mt *mtest.T) {
		s := newMockMongo(mt)
		base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		entry := func(id, content string, role models.Role, at time.Time) bson.D {
			return bson.D{
				{Key: "_id", Value: primitive.NewObjectID()},
				{Key: "entry_id", Value: id},
				{Key: "user_id", Value: int64(5)},
				{Key: "role", Value: string(role)},
				{Key: "content", Value: content},
				{Key: "created_at", Value: at},
			}
		}
		// The server answers in the requested descending order.
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.conversations", mtest.FirstBatch,
			entry("e3", "third", models.RoleUser, base.Add(2*time.Second)),
			entry("e2", "second", models.RoleAssistant, base.Add(time.Second)),
			entry("e1", "first", models.RoleUser, base),
		))

		entries, err := s.RecentEntries(context.Background(), 5, 3)
		require.NoError(mt, err)
		require.Len(mt, entries, 3)
		assert.Equal(mt, "first", entries[0].Content)
		assert.Equal(mt, "second", entries[1].Content)
		assert.Equal(mt, models.RoleAssistant, entries[1].Role)
		assert.Equal(mt, "third", entries[2].Content)
		assert.Equal(mt, "e3", entries[2].ID)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "find", evt.CommandName)
		assert.Equal(mt, int64(3), evt.Command.Lookup("limit").AsInt64())

		sortDoc := evt.Command.Lookup("sort").Document()
		elems, err := sortDoc.Elements()
		require.NoError(mt, err)
		require.Len(mt, elems, 2)
		assert.Equal(mt, "created_at", elems[0].Key())
		assert.Equal(mt, int64(-1), elems[0].Value().AsInt64())
		assert.Equal(mt, "_id", elems[1].Key())
		assert.Equal(mt, int64(-1), elems[1].Value().AsInt64())
	})
}

func TestMongoStorage_ClearEntries(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("returns deleted count", func(mt *mtest.T) {
		s := newMockMongo(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 5}))

		count, err := s.ClearEntries(context.Background(), 5)
		require.NoError(mt, err)
		assert.Equal(mt, int64(5), count)
	})
}

func TestMongoStorage_MarkMediaProcessed(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	record := bson.D{
		{Key: "record_id", Value: "r1"},
		{Key: "user_id", Value: int64(5)},
		{Key: "file_id", Value: "f1"},
		{Key: "kind", Value: string(models.PhotoMedia)},
		{Key: "processed", Value: true},
		{Key: "analysis_result", Value: "a cat"},
	}

	mt.Run("first call flips the flag", func(mt *mtest.T) {
		s := newMockMongo(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		require.NoError(mt, s.MarkMediaProcessed(ctx, "r1", "a cat"))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)
		filter := evt.Command.Lookup("updates").Array().Index(0).Value().Document().Lookup("q").Document()
		assert.Equal(mt, "r1", filter.Lookup("record_id").StringValue())
		assert.False(mt, filter.Lookup("processed").Boolean())
	})

	mt.Run("second call reports already processed", func(mt *mtest.T) {
		s := newMockMongo(mt)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, "test.media_records", mtest.FirstBatch, record),
		)

		err := s.MarkMediaProcessed(ctx, "r1", "a dog")
		assert.ErrorIs(mt, err, ErrAlreadyProcessed)
	})

	mt.Run("missing record", func(mt *mtest.T) {
		s := newMockMongo(mt)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			emptyCursor("test.media_records"),
		)

		err := s.MarkMediaProcessed(ctx, "missing", "x")
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestMongoStorage_CommandErrorIsNotUnavailable(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("validation failure", func(mt *mtest.T) {
		s := newMockMongo(mt)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    121,
			Message: "Document failed validation",
			Name:    "DocumentValidationFailure",
		}))

		err := s.AppendEntry(context.Background(), NewEntry(5, models.RoleUser, "hi", nil))
		require.Error(mt, err)
		assert.False(mt, errors.Is(err, ErrUnavailable))
	})
}
