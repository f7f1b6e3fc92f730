package store

import (
	"context"
	"fmt"
	"regexp"

	"github.com/kevinaaaquil/bookreviews/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BookQuery filters and windows a book listing. Zero values mean "no filter";
// Limit 0 returns every match.
type BookQuery struct {
	Search    string
	Genre     string
	CreatedBy primitive.ObjectID
	Skip      int64
	Limit     int64
}

func (q BookQuery) check() error {
	if q.Skip < 0 || q.Limit < 0 {
		return fmt.Errorf("book query: negative skip %d or limit %d", q.Skip, q.Limit)
	}
	return nil
}

func (q BookQuery) filter() bson.M {
	f := bson.M{}
	if q.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(q.Search), Options: "i"}
		f["$or"] = bson.A{
			bson.M{"title": re},
			bson.M{"author": re},
			bson.M{"description": re},
		}
	}
	if q.Genre != "" {
		f["genre"] = q.Genre
	}
	if !q.CreatedBy.IsZero() {
		f["createdBy"] = q.CreatedBy
	}
	return f
}

func (db *DB) InsertBook(ctx context.Context, book *models.Book) (primitive.ObjectID, error) {
	res, err := db.Books().InsertOne(ctx, book, options.InsertOne())
	if err != nil {
		return primitive.NilObjectID, err
	}
	return res.InsertedID.(primitive.ObjectID), nil
}

// FindBooks returns one window of matching books, newest first, and the total match count.
func (db *DB) FindBooks(ctx context.Context, q BookQuery) ([]models.Book, int64, error) {
	if err := q.check(); err != nil {
		return nil, 0, err
	}
	filter := q.filter()
	total, err := db.Books().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if q.Skip > 0 {
		opts.SetSkip(q.Skip)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	cur, err := db.Books().Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)
	books := []models.Book{}
	if err := cur.All(ctx, &books); err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

// BooksByIDs returns the books found among ids, in no particular order.
func (db *DB) BooksByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Book, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := db.Books().Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var books []models.Book
	if err := cur.All(ctx, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (db *DB) BookByID(ctx context.Context, id primitive.ObjectID) (*models.Book, error) {
	var book models.Book
	err := db.Books().FindOne(ctx, bson.M{"_id": id}).Decode(&book)
	if err != nil {
		return nil, translate(err)
	}
	return &book, nil
}

// UpdateBook overwrites the editable fields of a book. averageRating is left alone.
func (db *DB) UpdateBook(ctx context.Context, id primitive.ObjectID, book *models.Book) error {
	update := bson.M{
		"title":       book.Title,
		"author":      book.Author,
		"description": book.Description,
		"genre":       book.Genre,
		"year":        book.Year,
		"coverImage":  book.CoverImage,
		"coverKey":    book.CoverKey,
		"updatedAt":   book.UpdatedAt,
	}
	res, err := db.Books().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAverageRating stores a freshly computed average. A missing book is not an error:
// the book may have been deleted between the review write and the recompute.
func (db *DB) SetAverageRating(ctx context.Context, id primitive.ObjectID, avg float64) error {
	_, err := db.Books().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"averageRating": avg}})
	return err
}

func (db *DB) DeleteBook(ctx context.Context, id primitive.ObjectID) error {
	res, err := db.Books().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
