package httpx

import (
	"context"
	"encoding/json"
	"github.com/ariefcatur/go-audio-checkout/internal/logging"
	"github.com/ariefcatur/go-audio-checkout/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
	"time"
)

type OrderService interface {
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (orders.Order, error)
	GetOrder(ctx context.Context, id string) (orders.Order, error)
	CancelOrder(ctx context.Context, id string) (orders.Order, error)
	ApplyTrigger(ctx context.Context, id string, trig orders.Trigger) (orders.Order, error)
}

type OrdersHandler struct {
	Orders OrderService
	Log    *zap.Logger
}

type statusReq struct {
	Trigger string `json:"trigger"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Post("/admin/orders/{id}/status", h.applyTrigger)
}

func (h *OrdersHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, _, _ := httpStatusFor(err); status >= http.StatusInternalServerError {
		logging.FromContext(r.Context(), h.Log).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeDomainError(w, err)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.CreateOrder(ctx, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.CancelOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) applyTrigger(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid json")
		return
	}
	trig, ok := orders.ParseTrigger(req.Trigger)
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "unknown trigger "+req.Trigger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.ApplyTrigger(ctx, chi.URLParam(r, "id"), trig)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logging.FromContext(r.Context(), h.Log).Info("admin status override",
		zap.String("order_id", o.ID), zap.String("trigger", string(trig)), zap.String("status", string(o.Status)))
	writeJSON(w, http.StatusOK, o)
}
