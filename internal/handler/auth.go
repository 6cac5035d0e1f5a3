package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/parceltrack/internal/middleware"
)

// Login обрабатывает вход пользователя или водителя.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(r, &req) {
		http.Error(w, "invalid request format", http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, "login and password are required", http.StatusBadRequest)
		return
	}

	identity, err := h.accounts.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, r, "authenticate", err)
		return
	}

	token, expires, err := h.tokens.Issue(identity)
	if err != nil {
		h.logger.Error("issue token error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	middleware.SetTokenCookie(w, token, expires)

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expires.Format(time.RFC3339),
		Name:      identity.Name,
		Roles:     identity.Roles,
	})
}

// Logout завершает сессию, удаляя cookie с токеном.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearTokenCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
