package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/kevinaaaquil/bookreviews/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func validBook() BookInput {
	return BookInput{
		Title:       "Dune",
		Author:      "Frank Herbert",
		Description: "A desert planet and its spice.",
		Genre:       "Science Fiction",
		Year:        1965,
	}
}

func TestBookService_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BookInput)
		msg    string
	}{
		{"missing title", func(in *BookInput) { in.Title = "   " }, "title is required"},
		{"long author", func(in *BookInput) { in.Author = strings.Repeat("a", 101) }, "author cannot exceed 100 characters"},
		{"unknown genre", func(in *BookInput) { in.Genre = "Cookbook" }, "genre must be one of: "},
		{"year too old", func(in *BookInput) { in.Year = 999 }, "year must be between 1000 and "},
		{"year too far ahead", func(in *BookInput) { in.Year = 3000 }, "year must be between 1000 and "},
		{"missing year", func(in *BookInput) { in.Year = 0 }, "year is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := validBook()
			tt.mutate(&in)
			_, err := f.books.Create(context.Background(), f.user(t, "owner"), in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			assert.True(t, strings.HasPrefix(err.Error(), tt.msg), err.Error())
		})
	}
}

func TestBookService_CreateRequiresActor(t *testing.T) {
	f := newFixture(t)
	_, err := f.books.Create(context.Background(), primitive.NilObjectID, validBook())
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}

func TestBookService_CreateRecordsCreator(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner")
	book, err := f.books.Create(context.Background(), owner, validBook())
	require.NoError(t, err)
	assert.Equal(t, owner, book.CreatedBy)
	assert.Equal(t, 0.0, book.AverageRating)
	assert.False(t, book.CreatedAt.IsZero())

	got, err := f.books.Get(context.Background(), book.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
}

func TestBookService_GetNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.books.Get(context.Background(), primitive.NewObjectID().Hex())
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = f.books.Get(context.Background(), "not-an-id")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBookService_OnlyCreatorMutates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	other := f.user(t, "other")
	book := f.book(t, owner, "Dune")
	title := "Dune Messiah"

	_, err := f.books.Update(ctx, other, book.ID.Hex(), BookPatch{Title: &title})
	assert.True(t, errors.Is(err, ErrForbidden))
	err = f.books.Delete(ctx, other, book.ID.Hex())
	assert.True(t, errors.Is(err, ErrForbidden))

	_, err = f.books.Update(ctx, primitive.NilObjectID, book.ID.Hex(), BookPatch{Title: &title})
	assert.True(t, errors.Is(err, ErrUnauthenticated))

	stored, err := f.books.Get(ctx, book.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "Dune", stored.Title, "rejected update must not write")
}

func TestBookService_UpdateIsPartial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	book := f.book(t, owner, "Dune")
	title := "  Dune Messiah "
	year := 1969

	updated, err := f.books.Update(ctx, owner, book.ID.Hex(), BookPatch{Title: &title, Year: &year})
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", updated.Title)
	assert.Equal(t, 1969, updated.Year)
	assert.Equal(t, "Frank Herbert", updated.Author)
	assert.Equal(t, "Science Fiction", updated.Genre)

	empty := ""
	_, err = f.books.Update(ctx, owner, book.ID.Hex(), BookPatch{Author: &empty})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestBookService_DeleteRemovesReviews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	reader := f.user(t, "reader")
	book := f.book(t, owner, "Dune")
	f.review(t, reader, book.ID, 4)

	require.NoError(t, f.books.Delete(ctx, owner, book.ID.Hex()))

	_, err := f.books.Get(ctx, book.ID.Hex())
	assert.True(t, errors.Is(err, ErrNotFound))
	left, err := f.mem.ReviewsByBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Empty(t, left)

	err = f.books.Delete(ctx, owner, book.ID.Hex())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBookService_ListPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	for i := 0; i < 23; i++ {
		f.book(t, owner, fmt.Sprintf("Book %02d", i))
	}

	tests := []struct {
		page     int
		wantLen  int
		wantPage int
	}{
		{page: 0, wantLen: 10, wantPage: 1},
		{page: 1, wantLen: 10, wantPage: 1},
		{page: 3, wantLen: 3, wantPage: 3},
		{page: 4, wantLen: 0, wantPage: 4},
		{page: -2, wantLen: 10, wantPage: 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page %d", tt.page), func(t *testing.T) {
			res, err := f.books.List(ctx, ListParams{Page: tt.page})
			require.NoError(t, err)
			assert.Len(t, res.Books, tt.wantLen)
			assert.NotNil(t, res.Books)
			assert.Equal(t, tt.wantPage, res.Page)
			assert.Equal(t, 3, res.Pages)
			assert.Equal(t, int64(23), res.Total)
		})
	}

	first, err := f.books.List(ctx, ListParams{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, "Book 22", first.Books[0].Title, "newest first")
}

func TestBookService_ListSearchAndGenre(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	f.book(t, owner, "Dune")
	in := validBook()
	in.Title = "Gone Girl"
	in.Author = "Gillian Flynn"
	in.Description = "A marriage gone wrong (dark)."
	in.Genre = "Thriller"
	in.Year = 2012
	_, err := f.books.Create(ctx, owner, in)
	require.NoError(t, err)

	res, err := f.books.List(ctx, ListParams{Search: "HERBERT"})
	require.NoError(t, err)
	require.Len(t, res.Books, 1)
	assert.Equal(t, "Dune", res.Books[0].Title)

	res, err = f.books.List(ctx, ListParams{Search: "(dark)"})
	require.NoError(t, err)
	require.Len(t, res.Books, 1)
	assert.Equal(t, "Gone Girl", res.Books[0].Title)

	res, err = f.books.List(ctx, ListParams{Genre: "Thriller", Search: "dune"})
	require.NoError(t, err)
	assert.Empty(t, res.Books)
	assert.Equal(t, 0, res.Pages)
	assert.Equal(t, int64(0), res.Total)
}

func TestBookService_ListByCreator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	other := f.user(t, "other")
	f.book(t, owner, "Dune")
	f.book(t, other, "Emma")

	books, err := f.books.ListByCreator(ctx, owner.Hex())
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Dune", books[0].Title)

	books, err = f.books.ListByCreator(ctx, "bogus")
	require.NoError(t, err)
	assert.Empty(t, books)
}

type storedCover struct {
	data        []byte
	contentType string
}

type memCovers struct {
	mu      sync.Mutex
	objects map[string]storedCover
	n       int
}

func newMemCovers() *memCovers {
	return &memCovers{objects: map[string]storedCover{}}
}

func (m *memCovers) Upload(_ context.Context, prefix, name string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	key := fmt.Sprintf("%s%d-%s", prefix, m.n, name)
	m.objects[key] = storedCover{data: data, contentType: contentType}
	return key, nil
}

func (m *memCovers) GetObject(_ context.Context, key string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, "", errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.contentType, nil
}

func (m *memCovers) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

const pngMagic = "\x89PNG\r\n\x1a\n"

func pngCover(payload string) io.Reader {
	return strings.NewReader(pngMagic + payload)
}

func TestBookService_CoverLifecycle(t *testing.T) {
	f := newFixture(t)
	covers := newMemCovers()
	f.books = NewBookService(f.mem, f.mem, f.mem, covers, 10)

	ctx := context.Background()
	owner := f.user(t, "owner")
	other := f.user(t, "other")
	book := f.book(t, owner, "Dune")

	_, err := f.books.UploadCover(ctx, other, book.ID.Hex(), "c.png", "image/png", pngCover("x"))
	assert.True(t, errors.Is(err, ErrForbidden))

	updated, err := f.books.UploadCover(ctx, owner, book.ID.Hex(), "c.png", "image/png", pngCover("one"))
	require.NoError(t, err)
	assert.Equal(t, "/api/books/"+book.ID.Hex()+"/cover", updated.CoverImage)
	assert.Equal(t, "owner", updated.CreatorName)
	firstKey := updated.CoverKey

	_, err = f.books.UploadCover(ctx, owner, book.ID.Hex(), "c.PNG", "", pngCover("two"))
	require.NoError(t, err)
	assert.NotContains(t, covers.objects, firstKey, "replaced cover is deleted")

	body, ct, err := f.books.Cover(ctx, book.ID.Hex())
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	body.Close()
	assert.Equal(t, pngMagic+"two", string(data), "sniffed bytes are stored with the rest")
	assert.Equal(t, "image/png", ct)

	require.NoError(t, f.books.Delete(ctx, owner, book.ID.Hex()))
	assert.Empty(t, covers.objects)
}

func TestBookService_CoverRejectsNonImages(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		body        io.Reader
	}{
		{"html named png", "evil.png", "text/html", strings.NewReader("<script>alert(1)</script>")},
		{"html declared as png", "evil.png", "image/png", strings.NewReader("<html><script>alert(1)</script>")},
		{"png bytes declared as html", "cover.png", "text/html", pngCover("x")},
		{"png bytes declared as jpeg", "cover.png", "image/jpeg", pngCover("x")},
		{"png bytes with svg name", "cover.svg", "image/png", pngCover("x")},
		{"text file", "notes.txt", "text/plain", strings.NewReader("plain text")},
		{"empty", "cover.png", "image/png", strings.NewReader("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			covers := newMemCovers()
			f.books = NewBookService(f.mem, f.mem, f.mem, covers, 10)
			owner := f.user(t, "owner")
			book := f.book(t, owner, "Dune")

			_, err := f.books.UploadCover(context.Background(), owner, book.ID.Hex(), tt.filename, tt.contentType, tt.body)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			assert.Empty(t, covers.objects, "nothing reaches storage")
		})
	}
}

func TestBookService_CoverAcceptsJPGAlias(t *testing.T) {
	f := newFixture(t)
	covers := newMemCovers()
	f.books = NewBookService(f.mem, f.mem, f.mem, covers, 10)
	owner := f.user(t, "owner")
	book := f.book(t, owner, "Dune")

	jpeg := "\xff\xd8\xff\xe0" + "jfif"
	_, err := f.books.UploadCover(context.Background(), owner, book.ID.Hex(), "c.jpg", "image/jpg", strings.NewReader(jpeg))
	require.NoError(t, err)
	for _, obj := range covers.objects {
		assert.Equal(t, "image/jpeg", obj.contentType)
	}
}

func TestBookService_CoverWithoutStorage(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner")
	book := f.book(t, owner, "Dune")
	_, err := f.books.UploadCover(context.Background(), owner, book.ID.Hex(), "c.png", "image/png", pngCover("x"))
	assert.True(t, errors.Is(err, ErrUnavailable))

	_, _, err = f.books.Cover(context.Background(), book.ID.Hex())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBookService_ListHugePage(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner")
	f.book(t, owner, "Dune")

	for _, page := range []int{math.MaxInt, math.MaxInt / 10, math.MaxInt/10 + 2} {
		res, err := f.books.List(context.Background(), ListParams{Page: page})
		require.NoError(t, err)
		assert.Empty(t, res.Books)
		assert.NotNil(t, res.Books)
		assert.Equal(t, page, res.Page)
		assert.Equal(t, 1, res.Pages)
		assert.Equal(t, int64(1), res.Total)
	}
}

func TestBookService_CreatorName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	book := f.book(t, owner, "Dune")

	got, err := f.books.Get(ctx, book.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "owner", got.CreatorName)

	page, err := f.books.List(ctx, ListParams{})
	require.NoError(t, err)
	require.Len(t, page.Books, 1)
	assert.Equal(t, "owner", page.Books[0].CreatorName)

	mine, err := f.books.ListByCreator(ctx, owner.Hex())
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "owner", mine[0].CreatorName)
}

// failingReviewWipe cannot delete a book's reviews.
type failingReviewWipe struct {
	*store.Memory
}

func (failingReviewWipe) DeleteReviewsByBook(context.Context, primitive.ObjectID) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestBookService_DeleteKeepsBookWhenReviewsRemain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	reader := f.user(t, "reader")
	book := f.book(t, owner, "Dune")
	f.review(t, reader, book.ID, 4)

	f.books = NewBookService(f.mem, failingReviewWipe{f.mem}, f.mem, nil, 10)
	err := f.books.Delete(ctx, owner, book.ID.Hex())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))

	_, err = f.mem.BookByID(ctx, book.ID)
	assert.NoError(t, err, "book stays so the delete can be retried")
	reviews, err := f.mem.ReviewsByBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Len(t, reviews, 1)
}
