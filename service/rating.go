package service

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Mean is the arithmetic mean of ratings, 0 for none.
func Mean(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return float64(sum) / float64(len(ratings))
}

// RatingAggregator keeps Book.AverageRating equal to the mean of the book's
// current reviews. It always reads the full review set, so a recompute that
// races another mutation still converges on the last writer's view.
type RatingAggregator struct {
	books   BookStore
	reviews ReviewStore
}

func NewRatingAggregator(books BookStore, reviews ReviewStore) *RatingAggregator {
	return &RatingAggregator{books: books, reviews: reviews}
}

// Recompute stores and returns the current average rating of a book.
func (a *RatingAggregator) Recompute(ctx context.Context, bookID primitive.ObjectID) (float64, error) {
	ratings, err := a.reviews.RatingsForBook(ctx, bookID)
	if err != nil {
		return 0, fmt.Errorf("read ratings: %w", err)
	}
	avg := Mean(ratings)
	if err := a.books.SetAverageRating(ctx, bookID, avg); err != nil {
		return 0, fmt.Errorf("store average rating: %w", err)
	}
	return avg, nil
}
