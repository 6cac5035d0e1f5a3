// Package handler содержит HTTP-обработчики API сервиса учёта доставок.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/parceltrack/internal/account"
	"github.com/mmeshcher/parceltrack/internal/dispatch"
	"github.com/mmeshcher/parceltrack/internal/lifecycle"
	"github.com/mmeshcher/parceltrack/internal/middleware"
	"github.com/mmeshcher/parceltrack/internal/model"
	"github.com/mmeshcher/parceltrack/internal/password"
	"github.com/mmeshcher/parceltrack/internal/repository"
	"github.com/mmeshcher/parceltrack/internal/validation"
)

// Deliveries определяет операции над доставками, используемые обработчиками.
type Deliveries interface {
	Create(ctx context.Context, details model.DeliveryDetails) (*model.Delivery, error)
	Get(ctx context.Context, orderNumber string) (*model.Delivery, error)
	Exists(ctx context.Context, orderNumber string) (bool, error)
	List(ctx context.Context, filter model.DeliveryFilter) ([]model.Delivery, error)
	UpdateDetails(ctx context.Context, orderNumber string, details model.DeliveryDetails) (*model.Delivery, error)
	MarkDelivered(ctx context.Context, orderNumber, actor string) (*model.Delivery, error)
}

// Dispatcher передаёт заказы водителю.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) ([]error, error)
}

// Accounts определяет операции над учётными записями.
type Accounts interface {
	Authenticate(ctx context.Context, login, secret string) (model.Identity, error)
	Register(ctx context.Context, kind model.AccountKind, p account.Profile) (*model.Account, error)
	Get(ctx context.Context, kind model.AccountKind, id string) (*model.Account, error)
	List(ctx context.Context, kind model.AccountKind, query string) ([]model.Account, error)
	Update(ctx context.Context, kind model.AccountKind, id string, p account.Profile) (*model.Account, error)
	SetActive(ctx context.Context, kind model.AccountKind, id string, active bool) error
	ChangePassword(ctx context.Context, kind model.AccountKind, id, current, next string) error
	ExistsByDocument(ctx context.Context, kind model.AccountKind, document string) (bool, error)
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	deliveries Deliveries
	dispatcher Dispatcher
	accounts   Accounts
	tokens     *middleware.TokenIssuer
	logger     *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(d Deliveries, dp Dispatcher, a Accounts, tokens *middleware.TokenIssuer, logger *zap.Logger) *Handler {
	return &Handler{
		deliveries: d,
		dispatcher: dp,
		accounts:   a,
		tokens:     tokens,
		logger:     logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) bool {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v) == nil
}

// errorStatus сопоставляет ошибку предметной области с HTTP-статусом.
// Ноль означает внутреннюю ошибку.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, account.ErrInvalidCredentials):
		return http.StatusUnauthorized

	case errors.Is(err, repository.ErrDeliveryNotFound),
		errors.Is(err, repository.ErrAccountNotFound),
		errors.Is(err, dispatch.ErrDriverNotFound):
		return http.StatusNotFound

	case errors.Is(err, lifecycle.ErrAlreadyAssigned),
		errors.Is(err, lifecycle.ErrAlreadyDelivered),
		errors.Is(err, lifecycle.ErrNotDispatched),
		errors.Is(err, lifecycle.ErrOrderNumbersExhausted),
		errors.Is(err, repository.ErrOrderNumberTaken),
		errors.Is(err, repository.ErrConcurrentUpdate),
		errors.Is(err, repository.ErrDocumentExists),
		errors.Is(err, repository.ErrLoginExists),
		errors.Is(err, dispatch.ErrDriverInactive):
		return http.StatusConflict

	case errors.Is(err, validation.ErrInvalidOrderNumber),
		errors.Is(err, lifecycle.ErrInvalidDetails),
		errors.Is(err, lifecycle.ErrDriverRequired),
		errors.Is(err, dispatch.ErrNoOrders),
		errors.Is(err, account.ErrInvalidDocument),
		errors.Is(err, account.ErrInvalidKind),
		errors.Is(err, account.ErrWrongPassword),
		errors.Is(err, password.ErrEmptyPassword):
		return http.StatusUnprocessableEntity
	}
	return 0
}

// writeError отвечает статусом, соответствующим ошибке. Внутренние ошибки
// логируются, клиенту уходит только текст статуса.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if status := errorStatus(err); status != 0 {
		http.Error(w, err.Error(), status)
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		h.logger.Warn(op+" timed out", zap.Error(err), zap.String("path", r.URL.Path))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	h.logger.Error(op+" error", zap.Error(err), zap.String("path", r.URL.Path))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// actor возвращает имя пользователя для журнала перемещений.
func actor(r *http.Request) string {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return ""
	}
	if identity.Name != "" {
		return identity.Name
	}
	return identity.Login
}
