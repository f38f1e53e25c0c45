package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/ariefcatur/go-audio-checkout/internal/logging"
	"github.com/ariefcatur/go-audio-checkout/internal/payment"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"io"
	"net/http"
	"time"
)

const maxWebhookBody = 1 << 20

type PaymentService interface {
	CreateIntent(ctx context.Context, orderID, provider, key, returnURL string) (payment.Intent, error)
	HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) (payment.WebhookResult, error)
}

type PaymentsHandler struct {
	Payments PaymentService
	Log      *zap.Logger
	// WebhookErrorStatus is returned when the provider should redeliver.
	WebhookErrorStatus int
}

type createIntentReq struct {
	Provider  string `json:"provider"`
	ReturnURL string `json:"return_url"`
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/orders/{id}/payment-intents", h.createIntent)
	r.Post("/webhooks/payments/{provider}", h.webhook)
}

func (h *PaymentsHandler) createIntent(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "Idempotency-Key header required")
		return
	}
	var req createIntentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid json")
		return
	}
	if req.Provider == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "provider required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	in, err := h.Payments.CreateIntent(ctx, chi.URLParam(r, "id"), req.Provider, key, req.ReturnURL)
	if err != nil {
		if status, _, _ := httpStatusFor(err); status >= http.StatusInternalServerError {
			logging.FromContext(r.Context(), h.Log).Error("create intent failed", zap.Error(err))
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (h *PaymentsHandler) webhook(w http.ResponseWriter, r *http.Request) {
	lg := logging.FromContext(r.Context(), h.Log).With(zap.String("provider", chi.URLParam(r, "provider")))
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "unreadable body")
		return
	}

	res, err := h.Payments.HandleWebhook(r.Context(), chi.URLParam(r, "provider"), body, r.Header.Get("X-Signature"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, payment.ErrInvalidSignature):
		lg.Warn("webhook signature rejected", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "invalid signature")
	case !payment.Retryable(err):
		lg.Warn("webhook payload rejected", zap.Error(err))
		if errors.Is(err, payment.ErrUnknownProvider) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	default:
		lg.Error("webhook processing failed", zap.Error(err))
		writeError(w, h.WebhookErrorStatus, "WEBHOOK_RETRY", "processing failed")
	}
}
