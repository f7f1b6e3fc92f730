package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kevinaaaquil/bookreviews/middleware"
	"github.com/kevinaaaquil/bookreviews/service"
	"github.com/sirupsen/logrus"
)

// Deps is everything the router needs. Metrics and Logger are optional.
type Deps struct {
	Auth          *service.AuthService
	Books         *service.BookService
	Reviews       *service.ReviewService
	Metrics       *middleware.Metrics
	Logger        logrus.FieldLogger
	CORSOrigins   []string
	MaxCoverBytes int64
}

func NewRouter(d Deps) http.Handler {
	authHandler := &AuthHandler{Auth: d.Auth}
	booksHandler := &BooksHandler{Books: d.Books, MaxCoverBytes: d.MaxCoverBytes}
	reviewsHandler := &ReviewsHandler{Reviews: d.Reviews}
	requireAuth := middleware.Auth(d.Auth)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	if d.Logger != nil {
		r.Use(middleware.RequestLogger(d.Logger))
	}
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(d.CORSOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		r.Get("/books", booksHandler.List)
		r.Get("/books/{id}", booksHandler.Get)
		r.Get("/books/{id}/cover", booksHandler.Cover)
		r.Get("/books/user/{userId}", booksHandler.ListByUser)

		r.Get("/reviews/book/{bookId}", reviewsHandler.ListByBook)
		r.Get("/reviews/user/{userId}", reviewsHandler.ListByUser)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/auth/me", authHandler.Me)

			r.Post("/books", booksHandler.Create)
			r.Put("/books/{id}", booksHandler.Update)
			r.Delete("/books/{id}", booksHandler.Delete)
			r.Post("/books/{id}/cover", booksHandler.UploadCover)

			r.Post("/reviews", reviewsHandler.Create)
			r.Put("/reviews/{id}", reviewsHandler.Update)
			r.Delete("/reviews/{id}", reviewsHandler.Delete)
		})
	})
	return r
}
