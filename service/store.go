package service

import (
	"context"
	"io"
	"time"

	"github.com/kevinaaaquil/bookreviews/models"
	"github.com/kevinaaaquil/bookreviews/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserStore is implemented by *store.DB and *store.Memory. Lookups return nil, nil
// when no user matches.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) (primitive.ObjectID, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	UsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
}

// BookStore lookups return store.ErrNotFound when nothing matches.
type BookStore interface {
	InsertBook(ctx context.Context, book *models.Book) (primitive.ObjectID, error)
	BookByID(ctx context.Context, id primitive.ObjectID) (*models.Book, error)
	BooksByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Book, error)
	FindBooks(ctx context.Context, q store.BookQuery) ([]models.Book, int64, error)
	UpdateBook(ctx context.Context, id primitive.ObjectID, book *models.Book) error
	SetAverageRating(ctx context.Context, id primitive.ObjectID, avg float64) error
	DeleteBook(ctx context.Context, id primitive.ObjectID) error
}

// ReviewStore must reject a second review for the same (book, user) pair with
// store.ErrDuplicate, independently of any check done before the insert.
type ReviewStore interface {
	InsertReview(ctx context.Context, review *models.Review) (primitive.ObjectID, error)
	ReviewByID(ctx context.Context, id primitive.ObjectID) (*models.Review, error)
	ReviewByBookAndUser(ctx context.Context, bookID, userID primitive.ObjectID) (*models.Review, error)
	ReviewsByBook(ctx context.Context, bookID primitive.ObjectID) ([]models.Review, error)
	ReviewsByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Review, error)
	RatingsForBook(ctx context.Context, bookID primitive.ObjectID) ([]int, error)
	UpdateReview(ctx context.Context, id primitive.ObjectID, rating int, comment string, updatedAt time.Time) error
	DeleteReview(ctx context.Context, id primitive.ObjectID) error
	DeleteReviewsByBook(ctx context.Context, bookID primitive.ObjectID) (int64, error)
}

// CoverStorage holds uploaded cover images. *S3Covers implements it.
type CoverStorage interface {
	Upload(ctx context.Context, prefix, originalFilename string, body io.Reader, contentType string) (string, error)
	GetObject(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

// parseID turns a hex id from a URL into an ObjectID. Malformed ids can never
// match a record, so they are reported as not found.
func parseID(hex, what string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, notFound(what)
	}
	return id, nil
}
