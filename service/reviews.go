package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kevinaaaquil/bookreviews/models"
	"github.com/kevinaaaquil/bookreviews/store"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReviewInput struct {
	BookID  string `json:"bookId" validate:"required"`
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"required,min=10,max=1000"`
}

// ReviewPatch is a partial update; nil fields keep their stored value.
type ReviewPatch struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

type ReviewService struct {
	books   BookStore
	reviews ReviewStore
	users   UserStore
	ratings *RatingAggregator
	now     func() time.Time
}

func NewReviewService(books BookStore, reviews ReviewStore, users UserStore) *ReviewService {
	return &ReviewService{
		books:   books,
		reviews: reviews,
		users:   users,
		ratings: NewRatingAggregator(books, reviews),
		now:     time.Now,
	}
}

var errAlreadyReviewed = newError(ErrConflict, "you have already reviewed this book")

// Create posts the actor's review of a book and refreshes the book's average.
// The lookup before the insert only produces a friendly error; the store's unique
// index on (bookId, userId) decides.
func (s *ReviewService) Create(ctx context.Context, actor primitive.ObjectID, in ReviewInput) (*models.Review, error) {
	if actor.IsZero() {
		return nil, newError(ErrUnauthenticated, "not authorized, no token")
	}
	in.BookID = strings.TrimSpace(in.BookID)
	in.Comment = strings.TrimSpace(in.Comment)
	if err := checkInput(in); err != nil {
		return nil, err
	}
	bookID, err := primitive.ObjectIDFromHex(in.BookID)
	if err != nil {
		return nil, invalid("invalid book id")
	}
	if _, err := s.books.BookByID(ctx, bookID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("book")
		}
		return nil, fmt.Errorf("load book: %w", err)
	}

	_, err = s.reviews.ReviewByBookAndUser(ctx, bookID, actor)
	switch {
	case err == nil:
		return nil, errAlreadyReviewed
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("lookup existing review: %w", err)
	}

	now := s.now().UTC()
	review := &models.Review{
		BookID:    bookID,
		UserID:    actor,
		Rating:    in.Rating,
		Comment:   in.Comment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := s.reviews.InsertReview(ctx, review)
	if errors.Is(err, store.ErrDuplicate) {
		logrus.WithFields(logrus.Fields{"book": bookID.Hex(), "user": actor.Hex()}).
			Warn("duplicate review rejected by unique index")
		return nil, errAlreadyReviewed
	}
	if err != nil {
		return nil, fmt.Errorf("insert review: %w", err)
	}
	review.ID = id
	s.refreshAverage(ctx, bookID)
	s.attachUserNames(ctx, []*models.Review{review})
	return review, nil
}

func (s *ReviewService) Update(ctx context.Context, actor primitive.ObjectID, id string, patch ReviewPatch) (*models.Review, error) {
	review, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	in := ReviewInput{
		BookID:  review.BookID.Hex(),
		Rating:  pick(patch.Rating, review.Rating),
		Comment: strings.TrimSpace(pick(patch.Comment, review.Comment)),
	}
	if err := checkInput(in); err != nil {
		return nil, err
	}
	review.Rating = in.Rating
	review.Comment = in.Comment
	review.UpdatedAt = s.now().UTC()
	if err := s.reviews.UpdateReview(ctx, review.ID, review.Rating, review.Comment, review.UpdatedAt); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("review")
		}
		return nil, fmt.Errorf("update review: %w", err)
	}
	s.refreshAverage(ctx, review.BookID)
	s.attachUserNames(ctx, []*models.Review{review})
	return review, nil
}

func (s *ReviewService) Delete(ctx context.Context, actor primitive.ObjectID, id string) error {
	review, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.reviews.DeleteReview(ctx, review.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("review")
		}
		return fmt.Errorf("delete review: %w", err)
	}
	s.refreshAverage(ctx, review.BookID)
	return nil
}

// refreshAverage recomputes a book's average after the review write has
// happened. A failure is logged; the next review change recomputes from scratch.
func (s *ReviewService) refreshAverage(ctx context.Context, bookID primitive.ObjectID) {
	if _, err := s.ratings.Recompute(ctx, bookID); err != nil {
		logrus.WithError(err).WithField("book", bookID.Hex()).Error("recompute average rating")
	}
}

// owned loads a review and checks that actor wrote it.
func (s *ReviewService) owned(ctx context.Context, actor primitive.ObjectID, id string) (*models.Review, error) {
	reviewID, err := parseID(id, "review")
	if err != nil {
		return nil, err
	}
	review, err := s.reviews.ReviewByID(ctx, reviewID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("review")
	}
	if err != nil {
		return nil, fmt.Errorf("load review: %w", err)
	}
	if err := CheckOwner(actor, review.UserID, "review"); err != nil {
		return nil, err
	}
	return review, nil
}

// ListByBook returns a book's reviews, newest first, with reviewer names.
func (s *ReviewService) ListByBook(ctx context.Context, bookID string) ([]models.Review, error) {
	id, err := parseID(bookID, "book")
	if err != nil {
		return nil, err
	}
	reviews, err := s.reviews.ReviewsByBook(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list reviews of book: %w", err)
	}
	s.attachUserNames(ctx, refs(reviews))
	return reviews, nil
}

// ListByUser returns a user's reviews, newest first, with book title and author.
func (s *ReviewService) ListByUser(ctx context.Context, userID string) ([]models.Review, error) {
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return []models.Review{}, nil
	}
	reviews, err := s.reviews.ReviewsByUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list reviews of user: %w", err)
	}
	s.attachUserNames(ctx, refs(reviews))
	s.attachBooks(ctx, refs(reviews))
	return reviews, nil
}

func refs(reviews []models.Review) []*models.Review {
	out := make([]*models.Review, len(reviews))
	for i := range reviews {
		out[i] = &reviews[i]
	}
	return out
}

// attachUserNames is best effort: a failed lookup leaves names empty.
func (s *ReviewService) attachUserNames(ctx context.Context, reviews []*models.Review) {
	if len(reviews) == 0 {
		return
	}
	seen := map[primitive.ObjectID]bool{}
	var ids []primitive.ObjectID
	for _, r := range reviews {
		if !seen[r.UserID] {
			seen[r.UserID] = true
			ids = append(ids, r.UserID)
		}
	}
	users, err := s.users.UsersByIDs(ctx, ids)
	if err != nil {
		logrus.WithError(err).Warn("load reviewer names")
		return
	}
	names := make(map[primitive.ObjectID]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	for _, r := range reviews {
		r.UserName = names[r.UserID]
	}
}

func (s *ReviewService) attachBooks(ctx context.Context, reviews []*models.Review) {
	if len(reviews) == 0 {
		return
	}
	seen := map[primitive.ObjectID]bool{}
	var ids []primitive.ObjectID
	for _, r := range reviews {
		if !seen[r.BookID] {
			seen[r.BookID] = true
			ids = append(ids, r.BookID)
		}
	}
	books, err := s.books.BooksByIDs(ctx, ids)
	if err != nil {
		logrus.WithError(err).Warn("load reviewed books")
		return
	}
	byID := make(map[primitive.ObjectID]*models.Book, len(books))
	for i := range books {
		byID[books[i].ID] = &books[i]
	}
	for _, r := range reviews {
		if b, ok := byID[r.BookID]; ok {
			r.BookTitle = b.Title
			r.BookAuthor = b.Author
		}
	}
}
