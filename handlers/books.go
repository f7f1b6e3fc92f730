package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kevinaaaquil/bookreviews/service"
	"github.com/sirupsen/logrus"
)

type BooksHandler struct {
	Books         *service.BookService
	MaxCoverBytes int64
}

// List serves GET /books?page&search&genre. A non-numeric page is page 1.
func (h *BooksHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	result, err := h.Books.List(r.Context(), service.ListParams{
		Page:   page,
		Search: q.Get("search"),
		Genre:  q.Get("genre"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *BooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	book, err := h.Books.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BooksHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	books, err := h.Books.ListByCreator(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (h *BooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.BookInput
	if !decodeJSON(w, r, &req) {
		return
	}
	book, err := h.Books.Create(r.Context(), actor(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (h *BooksHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.BookPatch
	if !decodeJSON(w, r, &req) {
		return
	}
	book, err := h.Books.Update(r.Context(), actor(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Books.Delete(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "book removed")
}

// UploadCover accepts a multipart form with the image in "file".
func (h *BooksHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	if h.MaxCoverBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxCoverBytes)
	}
	if err := r.ParseMultipartForm(h.MaxCoverBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "cover image too large")
			return
		}
		writeMessage(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	book, err := h.Books.UploadCover(r.Context(), actor(r), chi.URLParam(r, "id"),
		header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// Cover streams an uploaded cover image. Public so it works as an img src.
func (h *BooksHandler) Cover(w http.ResponseWriter, r *http.Request) {
	body, contentType, err := h.Books.Cover(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := io.Copy(w, body); err != nil {
		logrus.WithError(err).Warn("stream cover")
	}
}
