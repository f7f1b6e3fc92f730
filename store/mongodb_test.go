package store

import (
	"context"
	"testing"
	"time"

	"github.com/kevinaaaquil/bookreviews/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func mockDB(mt *mtest.T) *DB {
	return &DB{Client: mt.Client, Database: mt.DB}
}

func startedCommand(mt *mtest.T, name string) *event.CommandStartedEvent {
	mt.Helper()
	for _, evt := range mt.GetAllStartedEvents() {
		if evt.CommandName == name {
			return evt
		}
	}
	mt.Fatalf("no %s command was sent", name)
	return nil
}

func duplicateKey(index string) bson.D {
	return mtest.CreateWriteErrorsResponse(mtest.WriteError{
		Index:   0,
		Code:    11000,
		Message: "E11000 duplicate key error index: " + index,
	})
}

func TestDB_UniqueWrites(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("review insert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		id, err := mockDB(mt).InsertReview(ctx, &models.Review{BookID: primitive.NewObjectID(), UserID: primitive.NewObjectID(), Rating: 4})
		require.NoError(mt, err)
		assert.False(mt, id.IsZero())
	})

	mt.Run("second review for the same pair", func(mt *mtest.T) {
		mt.AddMockResponses(duplicateKey("bookId_1_userId_1"))
		_, err := mockDB(mt).InsertReview(ctx, &models.Review{BookID: primitive.NewObjectID(), UserID: primitive.NewObjectID(), Rating: 4})
		assert.ErrorIs(mt, err, ErrDuplicate)
	})

	mt.Run("taken email", func(mt *mtest.T) {
		mt.AddMockResponses(duplicateKey("email_1"))
		_, err := mockDB(mt).CreateUser(ctx, &models.User{Name: "Ada", Email: "ada@example.com"})
		assert.ErrorIs(mt, err, ErrDuplicate)
	})
}

func TestDB_EnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	mt.Run("unique indexes", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse())
		require.NoError(mt, mockDB(mt).EnsureIndexes(context.Background()))

		byCollection := map[string]bson.Raw{}
		for _, evt := range mt.GetAllStartedEvents() {
			if evt.CommandName == "createIndexes" {
				byCollection[evt.Command.Lookup("createIndexes").StringValue()] = evt.Command
			}
		}
		require.Len(mt, byCollection, 3)

		users := byCollection["users"]
		assert.Equal(mt, int64(1), users.Lookup("indexes", "0", "key", "email").AsInt64())
		assert.True(mt, users.Lookup("indexes", "0", "unique").Boolean())

		reviews := byCollection["reviews"]
		assert.Equal(mt, int64(1), reviews.Lookup("indexes", "0", "key", "bookId").AsInt64())
		assert.Equal(mt, int64(1), reviews.Lookup("indexes", "0", "key", "userId").AsInt64())
		assert.True(mt, reviews.Lookup("indexes", "0", "unique").Boolean())
	})
}

func TestDB_FindBooks(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("window and filter", func(mt *mtest.T) {
		ns := mt.DB.Name() + ".books"
		id := primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(11)}}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
				{Key: "_id", Value: id},
				{Key: "title", Value: "The Hobbit"},
				{Key: "genre", Value: "Fantasy"},
				{Key: "createdAt", Value: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
			}),
		)

		books, total, err := mockDB(mt).FindBooks(ctx, BookQuery{Search: "hob", Genre: "Fantasy", Skip: 10, Limit: 5})
		require.NoError(mt, err)
		assert.Equal(mt, int64(11), total)
		require.Len(mt, books, 1)
		assert.Equal(mt, id, books[0].ID)
		assert.Equal(mt, "The Hobbit", books[0].Title)

		find := startedCommand(mt, "find").Command
		assert.Equal(mt, int64(10), find.Lookup("skip").AsInt64())
		assert.Equal(mt, int64(5), find.Lookup("limit").AsInt64())
		assert.Equal(mt, int64(-1), find.Lookup("sort", "createdAt").AsInt64())
		assert.Equal(mt, int64(-1), find.Lookup("sort", "_id").AsInt64())
		assert.Equal(mt, "Fantasy", find.Lookup("filter", "genre").StringValue())
		pattern, options := find.Lookup("filter", "$or", "0", "title").Regex()
		assert.Equal(mt, "hob", pattern)
		assert.Equal(mt, "i", options)
	})

	mt.Run("negative skip is rejected before any command", func(mt *mtest.T) {
		_, _, err := mockDB(mt).FindBooks(ctx, BookQuery{Skip: -10, Limit: 10})
		assert.Error(mt, err)
		assert.Empty(mt, mt.GetAllStartedEvents())
	})
}

func TestDB_ReviewsAndBooks(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("ratings of a book", func(mt *mtest.T) {
		ns := mt.DB.Name() + ".reviews"
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "rating", Value: int32(4)}},
			bson.D{{Key: "rating", Value: int32(2)}},
		))
		ratings, err := mockDB(mt).RatingsForBook(ctx, primitive.NewObjectID())
		require.NoError(mt, err)
		assert.Equal(mt, []int{4, 2}, ratings)

		find := startedCommand(mt, "find").Command
		assert.Equal(mt, int64(1), find.Lookup("projection", "rating").AsInt64())
	})

	mt.Run("missing review", func(mt *mtest.T) {
		ns := mt.DB.Name() + ".reviews"
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		_, err := mockDB(mt).ReviewByBookAndUser(ctx, primitive.NewObjectID(), primitive.NewObjectID())
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("update of a missing book", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: int32(0)},
			bson.E{Key: "nModified", Value: int32(0)},
		))
		err := mockDB(mt).UpdateBook(ctx, primitive.NewObjectID(), &models.Book{Title: "Gone"})
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("average rating is a single $set", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: int32(1)},
			bson.E{Key: "nModified", Value: int32(1)},
		))
		require.NoError(mt, mockDB(mt).SetAverageRating(ctx, primitive.NewObjectID(), 3.5))

		update := startedCommand(mt, "update").Command
		assert.Equal(mt, 3.5, update.Lookup("updates", "0", "u", "$set", "averageRating").Double())
	})
}
