package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/bookclub/internal/service"
)

// AuthHandler serves the one-time-code login.
//
//	POST /auth/send-code   {"email"} or {"phone"}          → code sent
//	POST /auth/verify-code {"email"|"phone", "code"}       → access token
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

func NewAuthHandler(auth *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// HandleSendCode issues a login code. In development mode the code is
// echoed back in the response instead of being delivered.
func (h *AuthHandler) HandleSendCode(w http.ResponseWriter, r *http.Request) {
	var req service.SendCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.RequestCode(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleVerifyCode exchanges a code for a bearer token.
func (h *AuthHandler) HandleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req service.VerifyCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.VerifyCode(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
