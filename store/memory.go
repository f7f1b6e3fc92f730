package store

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kevinaaaquil/bookreviews/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type reviewKey struct {
	book primitive.ObjectID
	user primitive.ObjectID
}

// Memory keeps users, books and reviews in process. It enforces the same unique
// constraints as the Mongo indexes (user email, review book+user).
type Memory struct {
	mu      sync.RWMutex
	users   map[primitive.ObjectID]models.User
	emails  map[string]primitive.ObjectID
	books   map[primitive.ObjectID]models.Book
	reviews map[primitive.ObjectID]models.Review
	pairs   map[reviewKey]primitive.ObjectID
}

func NewMemory() *Memory {
	return &Memory{
		users:   make(map[primitive.ObjectID]models.User),
		emails:  make(map[string]primitive.ObjectID),
		books:   make(map[primitive.ObjectID]models.Book),
		reviews: make(map[primitive.ObjectID]models.Review),
		pairs:   make(map[reviewKey]primitive.ObjectID),
	}
}

func newer(aAt, bAt time.Time, aID, bID primitive.ObjectID) bool {
	if !aAt.Equal(bAt) {
		return aAt.After(bAt)
	}
	return bytes.Compare(aID[:], bID[:]) > 0
}

func (m *Memory) CreateUser(_ context.Context, user *models.User) (primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.emails[user.Email]; taken {
		return primitive.NilObjectID, ErrDuplicate
	}
	u := *user
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	m.users[u.ID] = u
	m.emails[u.Email] = u.ID
	return u.ID, nil
}

func (m *Memory) UserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[email]
	if !ok {
		return nil, nil
	}
	u := m.users[id]
	return &u, nil
}

func (m *Memory) UserByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) UsersByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			u.Password = ""
			out = append(out, u)
		}
	}
	return out, nil
}

// DeleteUser removes a user; tokens issued to it stop verifying. The service
// has no user removal endpoint; in Mongo deployments users are removed from
// the users collection directly.
func (m *Memory) DeleteUser(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.emails, u.Email)
	delete(m.users, id)
	return nil
}

func (m *Memory) InsertBook(_ context.Context, book *models.Book) (primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := *book
	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	m.books[b.ID] = b
	return b.ID, nil
}

func matchesQuery(b *models.Book, q BookQuery) bool {
	if q.Genre != "" && b.Genre != q.Genre {
		return false
	}
	if !q.CreatedBy.IsZero() && b.CreatedBy != q.CreatedBy {
		return false
	}
	if q.Search != "" {
		s := strings.ToLower(q.Search)
		return strings.Contains(strings.ToLower(b.Title), s) ||
			strings.Contains(strings.ToLower(b.Author), s) ||
			strings.Contains(strings.ToLower(b.Description), s)
	}
	return true
}

func (m *Memory) FindBooks(_ context.Context, q BookQuery) ([]models.Book, int64, error) {
	if err := q.check(); err != nil {
		return nil, 0, err
	}
	m.mu.RLock()
	var matched []models.Book
	for _, b := range m.books {
		if matchesQuery(&b, q) {
			matched = append(matched, b)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return newer(matched[i].CreatedAt, matched[j].CreatedAt, matched[i].ID, matched[j].ID)
	})
	total := int64(len(matched))
	start := q.Skip
	if start > total {
		start = total
	}
	end := total
	if q.Limit > 0 && q.Limit < end-start {
		end = start + q.Limit
	}
	page := make([]models.Book, 0, end-start)
	page = append(page, matched[start:end]...)
	return page, total, nil
}

func (m *Memory) BooksByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Book
	for _, id := range ids {
		if b, ok := m.books[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *Memory) BookByID(_ context.Context, id primitive.ObjectID) (*models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *Memory) UpdateBook(_ context.Context, id primitive.ObjectID, book *models.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.books[id]
	if !ok {
		return ErrNotFound
	}
	cur.Title = book.Title
	cur.Author = book.Author
	cur.Description = book.Description
	cur.Genre = book.Genre
	cur.Year = book.Year
	cur.CoverImage = book.CoverImage
	cur.CoverKey = book.CoverKey
	cur.UpdatedAt = book.UpdatedAt
	m.books[id] = cur
	return nil
}

func (m *Memory) SetAverageRating(_ context.Context, id primitive.ObjectID, avg float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.books[id]; ok {
		b.AverageRating = avg
		m.books[id] = b
	}
	return nil
}

func (m *Memory) DeleteBook(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return ErrNotFound
	}
	delete(m.books, id)
	return nil
}

func (m *Memory) InsertReview(_ context.Context, review *models.Review) (primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := reviewKey{book: review.BookID, user: review.UserID}
	if _, taken := m.pairs[key]; taken {
		return primitive.NilObjectID, ErrDuplicate
	}
	r := *review
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	m.reviews[r.ID] = r
	m.pairs[key] = r.ID
	return r.ID, nil
}

func (m *Memory) ReviewByID(_ context.Context, id primitive.ObjectID) (*models.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *Memory) ReviewByBookAndUser(_ context.Context, bookID, userID primitive.ObjectID) (*models.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.pairs[reviewKey{book: bookID, user: userID}]
	if !ok {
		return nil, ErrNotFound
	}
	r := m.reviews[id]
	return &r, nil
}

func (m *Memory) ReviewsByBook(_ context.Context, bookID primitive.ObjectID) ([]models.Review, error) {
	return m.collectReviews(func(r *models.Review) bool { return r.BookID == bookID }), nil
}

func (m *Memory) ReviewsByUser(_ context.Context, userID primitive.ObjectID) ([]models.Review, error) {
	return m.collectReviews(func(r *models.Review) bool { return r.UserID == userID }), nil
}

func (m *Memory) collectReviews(keep func(*models.Review) bool) []models.Review {
	m.mu.RLock()
	out := []models.Review{}
	for _, r := range m.reviews {
		if keep(&r) {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out
}

func (m *Memory) RatingsForBook(_ context.Context, bookID primitive.ObjectID) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ratings []int
	for _, r := range m.reviews {
		if r.BookID == bookID {
			ratings = append(ratings, r.Rating)
		}
	}
	return ratings, nil
}

func (m *Memory) UpdateReview(_ context.Context, id primitive.ObjectID, rating int, comment string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return ErrNotFound
	}
	r.Rating = rating
	r.Comment = comment
	r.UpdatedAt = updatedAt
	m.reviews[id] = r
	return nil
}

func (m *Memory) DeleteReview(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.reviews, id)
	delete(m.pairs, reviewKey{book: r.BookID, user: r.UserID})
	return nil
}

func (m *Memory) DeleteReviewsByBook(_ context.Context, bookID primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.reviews {
		if r.BookID == bookID {
			delete(m.reviews, id)
			delete(m.pairs, reviewKey{book: r.BookID, user: r.UserID})
			n++
		}
	}
	return n, nil
}
