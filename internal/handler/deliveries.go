package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/parceltrack/internal/dispatch"
	"github.com/mmeshcher/parceltrack/internal/model"
)

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request, pendingOnly bool) {
	list, err := h.deliveries.List(r.Context(), model.DeliveryFilter{
		Query:       strings.TrimSpace(r.URL.Query().Get("q")),
		PendingOnly: pendingOnly,
	})
	if err != nil {
		h.writeError(w, r, "list deliveries", err)
		return
	}

	resp := make([]deliveryResponse, 0, len(list))
	for i := range list {
		resp = append(resp, newDeliveryResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListDeliveries возвращает все доставки, от новых к старым.
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	h.listDeliveries(w, r, false)
}

// ListPending возвращает доставки, которым ещё не назначен водитель.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	h.listDeliveries(w, r, true)
}

// CreateDelivery регистрирует новую доставку.
func (h *Handler) CreateDelivery(w http.ResponseWriter, r *http.Request) {
	var req deliveryRequest
	if !decodeJSON(r, &req) {
		http.Error(w, "invalid request format", http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		http.Error(w, msg, http.StatusUnprocessableEntity)
		return
	}

	d, err := h.deliveries.Create(r.Context(), req.details())
	if err != nil {
		h.writeError(w, r, "create delivery", err)
		return
	}

	w.Header().Set("Location", "/api/deliveries/"+d.OrderNumber)
	writeJSON(w, http.StatusCreated, newDeliveryResponse(d))
}

// GetDelivery возвращает доставку вместе с журналом перемещений.
func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := h.deliveries.Get(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeError(w, r, "get delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, newDeliveryResponse(d))
}

// DeliveryExists сообщает, зарегистрирован ли номер заказа.
func (h *Handler) DeliveryExists(w http.ResponseWriter, r *http.Request) {
	exists, err := h.deliveries.Exists(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeError(w, r, "delivery exists", err)
		return
	}
	writeJSON(w, http.StatusOK, existsResponse{Exists: exists})
}

// UpdateDelivery изменяет данные получателя, отправителя и груза.
func (h *Handler) UpdateDelivery(w http.ResponseWriter, r *http.Request) {
	var req deliveryRequest
	if !decodeJSON(r, &req) {
		http.Error(w, "invalid request format", http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		http.Error(w, msg, http.StatusUnprocessableEntity)
		return
	}

	d, err := h.deliveries.UpdateDetails(r.Context(), chi.URLParam(r, "number"), req.details())
	if err != nil {
		h.writeError(w, r, "update delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, newDeliveryResponse(d))
}

// MarkDelivered фиксирует вручение заказа от имени текущего пользователя.
func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	d, err := h.deliveries.MarkDelivered(r.Context(), chi.URLParam(r, "number"), actor(r))
	if err != nil {
		h.writeError(w, r, "mark delivered", err)
		return
	}
	writeJSON(w, http.StatusOK, newDeliveryResponse(d))
}

// Dispatch передаёт список заказов водителю. Ошибки по отдельным заказам
// возвращаются в теле ответа, остальные заказы при этом обрабатываются.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if !decodeJSON(r, &req) {
		http.Error(w, "invalid request format", http.StatusBadRequest)
		return
	}

	itemErrs, err := h.dispatcher.Dispatch(r.Context(), dispatch.Request{
		DriverID:     strings.TrimSpace(req.DriverID),
		Actor:        actor(r),
		OrderNumbers: req.Orders,
	})
	if err != nil {
		h.writeError(w, r, "dispatch", err)
		return
	}

	resp := dispatchResponse{Errors: make([]string, 0, len(itemErrs))}
	for _, e := range itemErrs {
		var item *dispatch.ItemError
		if errorStatus(e) == 0 && errors.As(e, &item) {
			// Текст инфраструктурных ошибок наружу не отдаётся.
			h.logger.Error("dispatch item error", zap.String("order", item.OrderNumber), zap.Error(e))
			resp.Errors = append(resp.Errors, "order "+item.OrderNumber+": "+http.StatusText(http.StatusInternalServerError))
			continue
		}
		resp.Errors = append(resp.Errors, e.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}
