package httpx

import (
	"encoding/json"
	"errors"
	"github.com/ariefcatur/go-audio-checkout/internal/inventory"
	"github.com/ariefcatur/go-audio-checkout/internal/orders"
	"github.com/ariefcatur/go-audio-checkout/internal/payment"
	"github.com/ariefcatur/go-audio-checkout/internal/promotion"
	"net/http"
)

type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}

// httpStatusFor maps a domain error to (status, code, details).
func httpStatusFor(err error) (int, string, map[string]any) {
	var (
		ve  *orders.ValidationError
		pu  *orders.ProductUnavailableError
		ise *inventory.InsufficientStockError
		pi  *promotion.InvalidError
		pm  *promotion.MinOrderError
		gu  *payment.GatewayUnavailableError
		it  *orders.InvalidTransitionError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "VALIDATION_FAILED", map[string]any{"field": ve.Field}
	case errors.As(err, &pu):
		return http.StatusUnprocessableEntity, "PRODUCT_UNAVAILABLE", map[string]any{"product_id": pu.ProductID, "reason": pu.Reason}
	case errors.As(err, &ise):
		return http.StatusConflict, "INSUFFICIENT_STOCK", map[string]any{
			"product_id": ise.ProductID, "requested": ise.Requested, "available": ise.Available,
		}
	case errors.As(err, &pi):
		return http.StatusUnprocessableEntity, "PROMOTION_INVALID", map[string]any{"code": pi.Code, "reason": pi.Reason}
	case errors.As(err, &pm):
		return http.StatusUnprocessableEntity, "PROMOTION_MIN_ORDER", map[string]any{
			"code": pm.Code, "min_subtotal_cents": pm.MinSubtotalCents, "subtotal_cents": pm.SubtotalCents,
		}
	case errors.As(err, &gu):
		return http.StatusServiceUnavailable, "GATEWAY_UNAVAILABLE", map[string]any{"provider": gu.Provider}
	case errors.As(err, &it):
		return http.StatusConflict, "INVALID_STATE_TRANSITION", map[string]any{"status": it.From, "trigger": it.Trigger}
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, payment.ErrUnknownProvider):
		return http.StatusNotFound, "NOT_FOUND", nil
	}
	return http.StatusInternalServerError, "INTERNAL", nil
}

func writeDomainError(w http.ResponseWriter, err error) {
	status, code, details := httpStatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg, Details: details})
}
