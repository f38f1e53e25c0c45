package payment

import (
	"context"
	"time"
)

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusExpired   Status = "EXPIRED"
)

// Intent is one attempt to collect payment for an order with one provider.
// At most one non-expired intent exists per (OrderID, IdempotencyKey).
type Intent struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"order_id"`
	Provider       string    `json:"provider"`
	IdempotencyKey string    `json:"idempotency_key"`
	Status         Status    `json:"status"`
	AmountCents    int64     `json:"amount_cents"`
	ProviderRef    string    `json:"provider_ref,omitempty"`
	RedirectURL    string    `json:"redirect_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CheckoutRequest struct {
	OrderID        string
	OrderNo        string
	AmountCents    int64
	ReturnURL      string
	IdempotencyKey string
}

type CheckoutSession struct {
	ProviderRef string
	RedirectURL string
}

// WebhookEvent is a provider notification reduced to what the issuer needs.
type WebhookEvent struct {
	EventID     string
	ProviderRef string
	Status      Status
}

type WebhookResult struct {
	IntentID  string `json:"intent_id,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	Status    Status `json:"status,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	// OrderClosed: payment arrived for an order that can no longer be paid.
	OrderClosed bool `json:"order_closed,omitempty"`
}

// Gateway is a hosted checkout provider.
type Gateway interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	VerifyWebhookSignature(payload []byte, signature string) error
	ParseWebhookEvent(payload []byte) (WebhookEvent, error)
}

// advanceFrom lists the statuses an intent may move to `to` from. Success is
// authoritative and may arrive after a failure or a local expiry.
func advanceFrom(to Status) []Status {
	switch to {
	case StatusPending:
		return []Status{StatusCreated}
	case StatusSucceeded:
		return []Status{StatusCreated, StatusPending, StatusFailed, StatusExpired}
	case StatusFailed, StatusExpired:
		return []Status{StatusCreated, StatusPending}
	}
	return nil
}
