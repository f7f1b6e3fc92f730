package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/kevinaaaquil/bookreviews/models"
	"github.com/kevinaaaquil/bookreviews/store"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultPageSize is the listing page size when none is configured.
const DefaultPageSize = 10

const coverPath = "/api/books/%s/cover"

var coverExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true}

// coverTypes are the sniffed content types accepted as covers.
var coverTypes = map[string]bool{"image/jpeg": true, "image/png": true, "image/webp": true, "image/gif": true}

type BookInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Author      string `json:"author" validate:"required,max=100"`
	Description string `json:"description" validate:"required,max=2000"`
	Genre       string `json:"genre" validate:"required,genre"`
	Year        int    `json:"year" validate:"required,pubyear"`
	CoverImage  string `json:"coverImage" validate:"max=2048"`
}

func (in *BookInput) trim() {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Description = strings.TrimSpace(in.Description)
	in.Genre = strings.TrimSpace(in.Genre)
	in.CoverImage = strings.TrimSpace(in.CoverImage)
}

// BookPatch is a partial update; nil fields keep their stored value.
type BookPatch struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Description *string `json:"description"`
	Genre       *string `json:"genre"`
	Year        *int    `json:"year"`
	CoverImage  *string `json:"coverImage"`
}

type ListParams struct {
	Page   int
	Search string
	Genre  string
}

type BookPage struct {
	Books []models.Book `json:"books"`
	Page  int           `json:"page"`
	Pages int           `json:"pages"`
	Total int64         `json:"total"`
}

type BookService struct {
	books    BookStore
	reviews  ReviewStore
	users    UserStore
	covers   CoverStorage
	pageSize int
	now      func() time.Time
}

// NewBookService wires the book operations. covers may be nil, in which case
// cover uploads report ErrUnavailable.
func NewBookService(books BookStore, reviews ReviewStore, users UserStore, covers CoverStorage, pageSize int) *BookService {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &BookService{
		books:    books,
		reviews:  reviews,
		users:    users,
		covers:   covers,
		pageSize: pageSize,
		now:      time.Now,
	}
}

func (s *BookService) Create(ctx context.Context, actor primitive.ObjectID, in BookInput) (*models.Book, error) {
	if actor.IsZero() {
		return nil, newError(ErrUnauthenticated, "not authorized, no token")
	}
	in.trim()
	if err := checkInput(in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	book := &models.Book{
		Title:       in.Title,
		Author:      in.Author,
		Description: in.Description,
		Genre:       in.Genre,
		Year:        in.Year,
		CoverImage:  in.CoverImage,
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := s.books.InsertBook(ctx, book)
	if err != nil {
		return nil, fmt.Errorf("insert book: %w", err)
	}
	book.ID = id
	s.attachCreators(ctx, []*models.Book{book})
	return book, nil
}

func (s *BookService) Get(ctx context.Context, id string) (*models.Book, error) {
	bookID, err := parseID(id, "book")
	if err != nil {
		return nil, err
	}
	book, err := s.load(ctx, bookID)
	if err != nil {
		return nil, err
	}
	s.attachCreators(ctx, []*models.Book{book})
	return book, nil
}

func (s *BookService) load(ctx context.Context, id primitive.ObjectID) (*models.Book, error) {
	book, err := s.books.BookByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("book")
	}
	if err != nil {
		return nil, fmt.Errorf("load book: %w", err)
	}
	return book, nil
}

// List returns one page of books, newest first. Pages past the end are empty.
func (s *BookService) List(ctx context.Context, p ListParams) (*BookPage, error) {
	page := p.Page
	if page < 1 {
		page = 1
	}
	size := int64(s.pageSize)
	// A page whose offset overflows is past any result set.
	skip := int64(math.MaxInt64)
	if int64(page-1) <= math.MaxInt64/size {
		skip = int64(page-1) * size
	}
	books, total, err := s.books.FindBooks(ctx, store.BookQuery{
		Search: strings.TrimSpace(p.Search),
		Genre:  strings.TrimSpace(p.Genre),
		Skip:   skip,
		Limit:  size,
	})
	if err != nil {
		return nil, fmt.Errorf("find books: %w", err)
	}
	if books == nil {
		books = []models.Book{}
	}
	s.attachCreators(ctx, bookRefs(books))
	return &BookPage{
		Books: books,
		Page:  page,
		Pages: int((total + size - 1) / size),
		Total: total,
	}, nil
}

// ListByCreator returns every book a user added, newest first.
func (s *BookService) ListByCreator(ctx context.Context, userID string) ([]models.Book, error) {
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return []models.Book{}, nil
	}
	books, _, err := s.books.FindBooks(ctx, store.BookQuery{CreatedBy: id})
	if err != nil {
		return nil, fmt.Errorf("find books by creator: %w", err)
	}
	if books == nil {
		books = []models.Book{}
	}
	s.attachCreators(ctx, bookRefs(books))
	return books, nil
}

func (s *BookService) Update(ctx context.Context, actor primitive.ObjectID, id string, patch BookPatch) (*models.Book, error) {
	bookID, err := parseID(id, "book")
	if err != nil {
		return nil, err
	}
	book, err := s.load(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if err := CheckOwner(actor, book.CreatedBy, "book"); err != nil {
		return nil, err
	}
	in := BookInput{
		Title:       pick(patch.Title, book.Title),
		Author:      pick(patch.Author, book.Author),
		Description: pick(patch.Description, book.Description),
		Genre:       pick(patch.Genre, book.Genre),
		Year:        pick(patch.Year, book.Year),
		CoverImage:  pick(patch.CoverImage, book.CoverImage),
	}
	in.trim()
	if err := checkInput(in); err != nil {
		return nil, err
	}
	book.Title = in.Title
	book.Author = in.Author
	book.Description = in.Description
	book.Genre = in.Genre
	book.Year = in.Year
	if in.CoverImage != book.CoverImage {
		// An explicit cover URL replaces an uploaded cover.
		book.CoverImage = in.CoverImage
		s.dropCover(ctx, book.CoverKey)
		book.CoverKey = ""
	}
	book.UpdatedAt = s.now().UTC()
	if err := s.save(ctx, book); err != nil {
		return nil, err
	}
	s.attachCreators(ctx, []*models.Book{book})
	return book, nil
}

func (s *BookService) save(ctx context.Context, book *models.Book) error {
	err := s.books.UpdateBook(ctx, book.ID, book)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("book")
	}
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

func pick[T any](v *T, fallback T) T {
	if v == nil {
		return fallback
	}
	return *v
}

// Delete removes a book together with its reviews and uploaded cover.
func (s *BookService) Delete(ctx context.Context, actor primitive.ObjectID, id string) error {
	bookID, err := parseID(id, "book")
	if err != nil {
		return err
	}
	book, err := s.load(ctx, bookID)
	if err != nil {
		return err
	}
	if err := CheckOwner(actor, book.CreatedBy, "book"); err != nil {
		return err
	}
	// Reviews go first: a failure here leaves the book in place to retry.
	n, err := s.reviews.DeleteReviewsByBook(ctx, bookID)
	if err != nil {
		return fmt.Errorf("delete reviews of book: %w", err)
	}
	if err := s.books.DeleteBook(ctx, bookID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("book")
		}
		return fmt.Errorf("delete book: %w", err)
	}
	logrus.WithFields(logrus.Fields{"book": bookID.Hex(), "reviews": n}).Info("book deleted")
	s.dropCover(ctx, book.CoverKey)
	return nil
}

// UploadCover stores an image as the book's cover and points CoverImage at it.
func (s *BookService) UploadCover(ctx context.Context, actor primitive.ObjectID, id, filename, contentType string, body io.Reader) (*models.Book, error) {
	bookID, err := parseID(id, "book")
	if err != nil {
		return nil, err
	}
	book, err := s.load(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if err := CheckOwner(actor, book.CreatedBy, "book"); err != nil {
		return nil, err
	}
	if s.covers == nil {
		return nil, newError(ErrUnavailable, "cover upload not configured")
	}
	body, contentType, err = sniffCover(filename, contentType, body)
	if err != nil {
		return nil, err
	}
	key, err := s.covers.Upload(ctx, "covers/"+bookID.Hex()+"/", filename, body, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload cover: %w", err)
	}
	old := book.CoverKey
	book.CoverKey = key
	book.CoverImage = fmt.Sprintf(coverPath, bookID.Hex())
	book.UpdatedAt = s.now().UTC()
	if err := s.save(ctx, book); err != nil {
		s.dropCover(ctx, key)
		return nil, err
	}
	s.dropCover(ctx, old)
	s.attachCreators(ctx, []*models.Book{book})
	return book, nil
}

// sniffCover accepts an upload only when its extension, declared type and
// content all agree on a supported image format. The sniffed type is the one stored.
func sniffCover(filename, declared string, body io.Reader) (io.Reader, string, error) {
	errType := invalid("cover must be a jpg, png, webp or gif image")
	if !coverExtensions[strings.ToLower(filepath.Ext(filename))] {
		return nil, "", errType
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, "", fmt.Errorf("read cover: %w", err)
	}
	head = head[:n]
	sniffed := http.DetectContentType(head)
	if !coverTypes[sniffed] {
		return nil, "", errType
	}
	declared = strings.ToLower(strings.TrimSpace(strings.SplitN(declared, ";", 2)[0]))
	if declared == "image/jpg" {
		declared = "image/jpeg"
	}
	if declared != "" && declared != sniffed {
		return nil, "", errType
	}
	return io.MultiReader(bytes.NewReader(head), body), sniffed, nil
}

// Cover opens the uploaded cover of a book. The caller closes the reader.
func (s *BookService) Cover(ctx context.Context, id string) (io.ReadCloser, string, error) {
	bookID, err := parseID(id, "book")
	if err != nil {
		return nil, "", err
	}
	book, err := s.load(ctx, bookID)
	if err != nil {
		return nil, "", err
	}
	if book.CoverKey == "" || s.covers == nil {
		return nil, "", notFound("cover")
	}
	body, contentType, err := s.covers.GetObject(ctx, book.CoverKey)
	if errors.Is(err, ErrNotFound) {
		return nil, "", err
	}
	if err != nil {
		return nil, "", fmt.Errorf("load cover: %w", err)
	}
	return body, contentType, nil
}

// dropCover deletes an uploaded cover object. Failures only leave an orphaned
// object behind, so they are logged and not returned.
func (s *BookService) dropCover(ctx context.Context, key string) {
	if key == "" || s.covers == nil {
		return
	}
	if err := s.covers.Delete(ctx, key); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("delete cover object")
	}
}

func bookRefs(books []models.Book) []*models.Book {
	out := make([]*models.Book, len(books))
	for i := range books {
		out[i] = &books[i]
	}
	return out
}

// attachCreators fills CreatorName. A failed lookup leaves names empty.
func (s *BookService) attachCreators(ctx context.Context, books []*models.Book) {
	if len(books) == 0 || s.users == nil {
		return
	}
	seen := map[primitive.ObjectID]bool{}
	var ids []primitive.ObjectID
	for _, b := range books {
		if !seen[b.CreatedBy] {
			seen[b.CreatedBy] = true
			ids = append(ids, b.CreatedBy)
		}
	}
	users, err := s.users.UsersByIDs(ctx, ids)
	if err != nil {
		logrus.WithError(err).Warn("load book creators")
		return
	}
	names := make(map[primitive.ObjectID]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	for _, b := range books {
		b.CreatorName = names[b.CreatedBy]
	}
}
