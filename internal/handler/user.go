package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/bookclub/internal/model"
	"github.com/sakif/bookclub/internal/service"
)

// UserHandler serves registration, the caller's own profile and the admin
// member directory.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

type registerResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// profileResponse is a user with an acknowledgement message alongside.
type profileResponse struct {
	Message string `json:"message"`
	*model.User
}

type roleRequest struct {
	Role string `json:"role"`
}

type roleResponse struct {
	Message string     `json:"message"`
	ID      string     `json:"id"`
	Email   string     `json:"email"`
	Role    model.Role `json:"role"`
}

// HandleRegister creates a member from a full profile.
//
// HTTP: POST /register → 201 {"message", "user_id"}
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{Message: "registration successful", UserID: user.ID})
}

// HandleGetMe returns the caller's profile.
//
// HTTP: GET /me
func (h *UserHandler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	id, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateMe applies a partial profile update. Fields left out of the
// body are unchanged.
//
// HTTP: PATCH /me
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	id, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var upd model.UserUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), id, upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Message: "profile updated", User: user})
}

// HandleList returns one page of members (admin).
//
// HTTP: GET /users?page=1&limit=10
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	p, err := parsePagination(r)
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := h.users.List(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleGet returns one member (admin).
//
// HTTP: GET /users/{id}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateRole changes a member's role (admin).
//
// HTTP: PUT /users/{id}/role {"role": "admin"}
func (h *UserHandler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.UpdateRole(r.Context(), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roleResponse{
		Message: "role updated to " + string(user.Role),
		ID:      user.ID,
		Email:   user.Email,
		Role:    user.Role,
	})
}
