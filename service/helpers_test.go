package service

import (
	"context"
	"testing"

	"github.com/kevinaaaquil/bookreviews/models"
	"github.com/kevinaaaquil/bookreviews/store"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	mem     *store.Memory
	auth    *AuthService
	books   *BookService
	reviews *ReviewService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	auth, err := NewAuthService(mem, "test-secret", 0, bcrypt.MinCost)
	require.NoError(t, err)
	return &fixture{
		mem:     mem,
		auth:    auth,
		books:   NewBookService(mem, mem, mem, nil, 10),
		reviews: NewReviewService(mem, mem, mem),
	}
}

func (f *fixture) user(t *testing.T, name string) primitive.ObjectID {
	t.Helper()
	s, err := f.auth.Register(context.Background(), RegisterInput{
		Name:     name,
		Email:    name + "@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	return s.User.ID
}

func (f *fixture) book(t *testing.T, owner primitive.ObjectID, title string) *models.Book {
	t.Helper()
	b, err := f.books.Create(context.Background(), owner, BookInput{
		Title:       title,
		Author:      "Frank Herbert",
		Description: "A desert planet and its spice.",
		Genre:       "Science Fiction",
		Year:        1965,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) review(t *testing.T, author primitive.ObjectID, bookID primitive.ObjectID, rating int) *models.Review {
	t.Helper()
	r, err := f.reviews.Create(context.Background(), author, ReviewInput{
		BookID:  bookID.Hex(),
		Rating:  rating,
		Comment: "A thoughtful and long enough review.",
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) average(t *testing.T, bookID primitive.ObjectID) float64 {
	t.Helper()
	b, err := f.mem.BookByID(context.Background(), bookID)
	require.NoError(t, err)
	return b.AverageRating
}
