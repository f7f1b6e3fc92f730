package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kevinaaaquil/bookreviews/service"
)

type ReviewsHandler struct {
	Reviews *service.ReviewService
}

func (h *ReviewsHandler) ListByBook(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.Reviews.ListByBook(r.Context(), chi.URLParam(r, "bookId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (h *ReviewsHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.Reviews.ListByUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (h *ReviewsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.ReviewInput
	if !decodeJSON(w, r, &req) {
		return
	}
	review, err := h.Reviews.Create(r.Context(), actor(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func (h *ReviewsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.ReviewPatch
	if !decodeJSON(w, r, &req) {
		return
	}
	review, err := h.Reviews.Update(r.Context(), actor(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (h *ReviewsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Reviews.Delete(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "review removed")
}
