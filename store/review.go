package store

import (
	"context"
	"time"

	"github.com/kevinaaaquil/bookreviews/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var newestFirst = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}

// InsertReview returns ErrDuplicate when the user already reviewed the book.
func (db *DB) InsertReview(ctx context.Context, review *models.Review) (primitive.ObjectID, error) {
	res, err := db.Reviews().InsertOne(ctx, review, options.InsertOne())
	if err != nil {
		return primitive.NilObjectID, translate(err)
	}
	return res.InsertedID.(primitive.ObjectID), nil
}

func (db *DB) ReviewByID(ctx context.Context, id primitive.ObjectID) (*models.Review, error) {
	var r models.Review
	if err := db.Reviews().FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (db *DB) ReviewByBookAndUser(ctx context.Context, bookID, userID primitive.ObjectID) (*models.Review, error) {
	var r models.Review
	if err := db.Reviews().FindOne(ctx, bson.M{"bookId": bookID, "userId": userID}).Decode(&r); err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (db *DB) ReviewsByBook(ctx context.Context, bookID primitive.ObjectID) ([]models.Review, error) {
	return db.findReviews(ctx, bson.M{"bookId": bookID})
}

func (db *DB) ReviewsByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Review, error) {
	return db.findReviews(ctx, bson.M{"userId": userID})
}

func (db *DB) findReviews(ctx context.Context, filter bson.M) ([]models.Review, error) {
	cur, err := db.Reviews().Find(ctx, filter, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	reviews := []models.Review{}
	if err := cur.All(ctx, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

// RatingsForBook reads the rating of every current review of a book.
func (db *DB) RatingsForBook(ctx context.Context, bookID primitive.ObjectID) ([]int, error) {
	opts := options.Find().SetProjection(bson.M{"rating": 1})
	cur, err := db.Reviews().Find(ctx, bson.M{"bookId": bookID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var ratings []int
	for cur.Next(ctx) {
		var doc struct {
			Rating int `bson:"rating"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ratings = append(ratings, doc.Rating)
	}
	return ratings, cur.Err()
}

func (db *DB) UpdateReview(ctx context.Context, id primitive.ObjectID, rating int, comment string, updatedAt time.Time) error {
	set := bson.M{"rating": rating, "comment": comment, "updatedAt": updatedAt}
	res, err := db.Reviews().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) DeleteReview(ctx context.Context, id primitive.ObjectID) error {
	res, err := db.Reviews().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteReviewsByBook removes every review of a book and reports how many went.
func (db *DB) DeleteReviewsByBook(ctx context.Context, bookID primitive.ObjectID) (int64, error) {
	res, err := db.Reviews().DeleteMany(ctx, bson.M{"bookId": bookID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
