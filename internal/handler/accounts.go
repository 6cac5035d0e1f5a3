package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/parceltrack/internal/model"
)

// accountRoutes содержит обработчики учётных записей одного вида.
type accountRoutes struct {
	h    *Handler
	kind model.AccountKind
}

func (h *Handler) accountRoutes(kind model.AccountKind) accountRoutes {
	return accountRoutes{h: h, kind: kind}
}

// List возвращает учётные записи, отсортированные по имени.
func (a accountRoutes) List(w http.ResponseWriter, r *http.Request) {
	list, err := a.h.accounts.List(r.Context(), a.kind, strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		a.h.writeError(w, r, "list accounts", err)
		return
	}

	resp := make([]accountResponse, 0, len(list))
	for i := range list {
		resp = append(resp, newAccountResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Register создаёт учётную запись.
func (a accountRoutes) Register(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !decodeJSON(r, &req) {
		http.Error(w, "invalid request format", http.StatusBadRequest)
		return
	}
	if msg := req.validate(a.kind, true); msg != "" {
		http.Error(w, msg, http.StatusUnprocessableEntity)
		return
	}

	acc, err := a.h.accounts.Register(r.Context(), a.kind, req.profile())
	if err != nil {
		a.h.writeError(w, r, "register account", err)
		return
	}
	writeJSON(w, http.StatusCreated, newAccountResponse(acc))
}

// Get возвращает учётную запись по идентификатору.
func (a accountRoutes) Get(w http.ResponseWriter, r *http.Request) {
	acc, err := a.h.accounts.Get(r.Context(), a.kind, chi.URLParam(r, "id"))
	if err != nil {
		a.h.writeError(w, r, "get account", err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(acc))
}

// Update изменяет учётную запись. Непустой пароль в запросе заменяет текущий.
func (a accountRoutes) Update(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !decodeJSON(r, &req) {
		http.Error(w, "invalid request format", http.StatusBadRequest)
		return
	}
	if msg := req.validate(a.kind, false); msg != "" {
		http.Error(w, msg, http.StatusUnprocessableEntity)
		return
	}

	acc, err := a.h.accounts.Update(r.Context(), a.kind, chi.URLParam(r, "id"), req.profile())
	if err != nil {
		a.h.writeError(w, r, "update account", err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(acc))
}

func (a accountRoutes) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	if err := a.h.accounts.SetActive(r.Context(), a.kind, chi.URLParam(r, "id"), active); err != nil {
		a.h.writeError(w, r, "set account active", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Activate включает учётную запись.
func (a accountRoutes) Activate(w http.ResponseWriter, r *http.Request) {
	a.setActive(w, r, true)
}

// Deactivate отключает учётную запись. Вход с ней становится невозможен.
func (a accountRoutes) Deactivate(w http.ResponseWriter, r *http.Request) {
	a.setActive(w, r, false)
}

// ChangePassword меняет пароль после проверки текущего.
func (a accountRoutes) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeJSON(r, &req) {
		http.Error(w, "invalid request format", http.StatusBadRequest)
		return
	}

	switch {
	case req.CurrentPassword == "" || req.NewPassword == "":
		http.Error(w, "current_password and new_password are required", http.StatusUnprocessableEntity)
		return
	case req.NewPassword != req.ConfirmPassword:
		http.Error(w, "passwords do not match", http.StatusUnprocessableEntity)
		return
	}

	err := a.h.accounts.ChangePassword(r.Context(), a.kind, chi.URLParam(r, "id"), req.CurrentPassword, req.NewPassword)
	if err != nil {
		a.h.writeError(w, r, "change password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DocumentExists сообщает, занят ли CPF учётной записью указанного вида.
// Без параметра kind проверяются водители.
func (h *Handler) DocumentExists(w http.ResponseWriter, r *http.Request) {
	kind := model.AccountKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = model.AccountKindDriver
	}

	exists, err := h.accounts.ExistsByDocument(r.Context(), kind, chi.URLParam(r, "cpf"))
	if err != nil {
		h.writeError(w, r, "document exists", err)
		return
	}
	writeJSON(w, http.StatusOK, existsResponse{Exists: exists})
}
