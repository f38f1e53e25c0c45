// Package hostedgw talks to a hosted-checkout payment provider over HTTPS.
// Sessions are created with a JSON POST; webhooks are signed with
// HMAC-SHA256 over the raw body, hex encoded.
package hostedgw

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-audio-checkout/internal/payment"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	Provider      string
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Currency      string
	HTTP          *http.Client
}

func New(provider, baseURL, apiKey, webhookSecret string) *Client {
	return &Client{
		Provider:      strings.ToLower(provider),
		BaseURL:       strings.TrimRight(baseURL, "/"),
		APIKey:        apiKey,
		WebhookSecret: webhookSecret,
		Currency:      "IDR",
		HTTP:          &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Name() string { return c.Provider }

type sessionRequest struct {
	Reference   string `json:"reference"`
	OrderNo     string `json:"order_no"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	ReturnURL   string `json:"return_url,omitempty"`
}

type sessionResponse struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	body, err := json.Marshal(sessionRequest{
		Reference:   req.OrderID,
		OrderNo:     req.OrderNo,
		AmountCents: req.AmountCents,
		Currency:    c.Currency,
		ReturnURL:   req.ReturnURL,
	})
	if err != nil {
		return payment.CheckoutSession{}, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return payment.CheckoutSession{}, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Authorization", "Bearer "+c.APIKey)
	hreq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.HTTP.Do(hreq)
	if err != nil {
		return payment.CheckoutSession{}, fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return payment.CheckoutSession{}, fmt.Errorf("create session: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	var out sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return payment.CheckoutSession{}, fmt.Errorf("decode session: %w", err)
	}
	if out.ID == "" || out.RedirectURL == "" {
		return payment.CheckoutSession{}, errors.New("create session: empty id or redirect_url")
	}
	return payment.CheckoutSession{ProviderRef: out.ID, RedirectURL: out.RedirectURL}, nil
}

func (c *Client) VerifyWebhookSignature(payload []byte, signature string) error {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return errors.New("signature is not hex")
	}
	if !hmac.Equal(got, Sign(c.WebhookSecret, payload)) {
		return errors.New("signature mismatch")
	}
	return nil
}

// Sign is exported for tests and local tooling that replay webhooks.
func Sign(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}

type webhookBody struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		SessionID string `json:"session_id"`
		Status    string `json:"status"`
	} `json:"data"`
}

func (c *Client) ParseWebhookEvent(payload []byte) (payment.WebhookEvent, error) {
	var b webhookBody
	if err := json.Unmarshal(payload, &b); err != nil {
		return payment.WebhookEvent{}, err
	}
	st, ok := statuses[strings.ToLower(b.Data.Status)]
	if !ok {
		return payment.WebhookEvent{}, fmt.Errorf("unknown session status %q", b.Data.Status)
	}
	return payment.WebhookEvent{EventID: b.ID, ProviderRef: b.Data.SessionID, Status: st}, nil
}

var statuses = map[string]payment.Status{
	"pending":   payment.StatusPending,
	"paid":      payment.StatusSucceeded,
	"succeeded": payment.StatusSucceeded,
	"failed":    payment.StatusFailed,
	"expired":   payment.StatusExpired,
}
