package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/bookclub/internal/service"
)

// BookHandler serves the book-of-the-month catalogue and its reviews.
type BookHandler struct {
	books  *service.BookService
	logger *slog.Logger
}

func NewBookHandler(books *service.BookService, logger *slog.Logger) *BookHandler {
	return &BookHandler{books: books, logger: logger}
}

// HandleCreate adds a book (admin).
//
// HTTP: POST /books → 201
func (h *BookHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.BookInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	book, err := h.books.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

// HandleList returns one page of books, newest first.
//
// HTTP: GET /books?page=1&limit=10&search=tolstoy
func (h *BookHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	p, err := parsePagination(r)
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := h.books.List(r.Context(), r.URL.Query().Get("search"), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleCurrent returns the book of the month.
//
// HTTP: GET /books/current
func (h *BookHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	book, err := h.books.Current(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// HandleGet returns a book with its rating.
//
// HTTP: GET /books/{id}
func (h *BookHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	book, err := h.books.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// HandleUpdate replaces a book's editable fields (admin).
//
// HTTP: PUT /books/{id}
func (h *BookHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.BookInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	book, err := h.books.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// HandleSetCurrent makes a book the book of the month (admin).
//
// HTTP: PUT /books/{id}/current
func (h *BookHandler) HandleSetCurrent(w http.ResponseWriter, r *http.Request) {
	book, err := h.books.SetCurrent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// HandleDelete removes a book (admin).
//
// HTTP: DELETE /books/{id} → 204
func (h *BookHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.books.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddReview rates a book.
//
// HTTP: POST /books/{id}/reviews {"rating": 5, "comment": "..."} → 201
func (h *BookHandler) HandleAddReview(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in service.ReviewInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	review, err := h.books.AddReview(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

// HandleListReviews returns one page of a book's reviews.
//
// HTTP: GET /books/{id}/reviews?page=1&limit=10
func (h *BookHandler) HandleListReviews(w http.ResponseWriter, r *http.Request) {
	p, err := parsePagination(r)
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := h.books.ListReviews(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
