package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/bookclub/internal/model"
	"github.com/sakif/bookclub/internal/service"
)

// FavoriteHandler serves the caller's favorite books.
type FavoriteHandler struct {
	favorites *service.FavoriteService
	logger    *slog.Logger
}

func NewFavoriteHandler(favorites *service.FavoriteService, logger *slog.Logger) *FavoriteHandler {
	return &FavoriteHandler{favorites: favorites, logger: logger}
}

type favoriteRequest struct {
	BookID string `json:"book_id"`
}

type favoriteResponse struct {
	Message string `json:"message"`
	*model.Favorite
}

// HandleAdd marks a book as favorite.
//
// HTTP: POST /favorites {"book_id"} → 201
func (h *FavoriteHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req favoriteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	fav, err := h.favorites.Add(r.Context(), userID, req.BookID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, favoriteResponse{Message: "book added to favorites", Favorite: fav})
}

// HandleList returns one page of favorites with their books.
//
// HTTP: GET /favorites?page=1&limit=10
func (h *FavoriteHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := parsePagination(r)
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := h.favorites.List(r.Context(), userID, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleRemove un-favorites a book.
//
// HTTP: DELETE /favorites/{book_id} → 204
func (h *FavoriteHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.favorites.Remove(r.Context(), userID, chi.URLParam(r, "book_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MeetingHandler serves meeting registrations.
type MeetingHandler struct {
	meetings *service.MeetingService
	logger   *slog.Logger
}

func NewMeetingHandler(meetings *service.MeetingService, logger *slog.Logger) *MeetingHandler {
	return &MeetingHandler{meetings: meetings, logger: logger}
}

type registrationResponse struct {
	Message string `json:"message"`
	*model.MeetingRegistration
}

type registrationList struct {
	Items []model.MeetingRegistration `json:"items"`
}

// HandleRegister signs the caller up for a book's meeting.
//
// HTTP: POST /meetings/register/{book_id} → 201
func (h *MeetingHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	reg, err := h.meetings.Register(r.Context(), userID, chi.URLParam(r, "book_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registrationResponse{
		Message:             "registered for the meeting",
		MeetingRegistration: reg,
	})
}

// HandleCancel withdraws the caller's registration.
//
// HTTP: DELETE /meetings/register/{book_id} → 204
func (h *MeetingHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.meetings.Cancel(r.Context(), userID, chi.URLParam(r, "book_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMine lists the caller's active registrations.
//
// HTTP: GET /meetings/my
func (h *MeetingHandler) HandleMine(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	regs, err := h.meetings.Mine(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, registrationList{Items: regs})
}

// HandleParticipants returns a meeting's attendance sheet (admin).
//
// HTTP: GET /meetings/{book_id}/participants
func (h *MeetingHandler) HandleParticipants(w http.ResponseWriter, r *http.Request) {
	list, err := h.meetings.Participants(r.Context(), chi.URLParam(r, "book_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
