package payment

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-audio-checkout/internal/orders"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"strings"
	"time"
)

type Store interface {
	FindLive(ctx context.Context, orderID, key string) (Intent, bool, error)
	Claim(ctx context.Context, in Intent) (bool, error)
	Attach(ctx context.Context, id string, s CheckoutSession) error
	Expire(ctx context.Context, id string) error
	ByProviderRef(ctx context.Context, provider, ref string) (Intent, error)
	Advance(ctx context.Context, id string, to Status) (bool, error)
}

// OrderReader must read the order row itself, not a cache.
type OrderReader interface {
	Get(ctx context.Context, id string) (orders.Order, error)
}

type OrderSettler interface {
	MarkPaid(ctx context.Context, id string) (orders.Order, error)
	CancelOrder(ctx context.Context, id string) (orders.Order, error)
}

// Deduper remembers webhook deliveries that were fully processed.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

type FailurePolicy string

const (
	FailureRetry  FailurePolicy = "retry"
	FailureCancel FailurePolicy = "cancel"
)

type Issuer struct {
	Store    Store
	Orders   OrderReader
	Settler  OrderSettler
	Gateways map[string]Gateway
	Dedup    Deduper // optional
	Log      *zap.Logger

	IntentTTL     time.Duration
	FailurePolicy FailurePolicy
	Now           func() time.Time
}

func NewIssuer(store Store, ord OrderReader, settler OrderSettler, lg *zap.Logger, gws ...Gateway) *Issuer {
	if lg == nil {
		lg = zap.NewNop()
	}
	m := make(map[string]Gateway, len(gws))
	for _, g := range gws {
		m[g.Name()] = g
	}
	return &Issuer{
		Store:         store,
		Orders:        ord,
		Settler:       settler,
		Gateways:      m,
		Log:           lg,
		IntentTTL:     30 * time.Minute,
		FailurePolicy: FailureRetry,
		Now:           time.Now,
	}
}

func (s *Issuer) gateway(provider string) (Gateway, error) {
	g, ok := s.Gateways[strings.ToLower(provider)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return g, nil
}

// CreateIntent returns the live intent for (orderID, key) or opens a new
// checkout session. Only the request that wins the claim row talks to the
// gateway; concurrent requests with the same key get the winner's row.
func (s *Issuer) CreateIntent(ctx context.Context, orderID, provider, key, returnURL string) (Intent, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Intent{}, &orders.ValidationError{Field: "idempotency_key", Reason: "required"}
	}
	gw, err := s.gateway(provider)
	if err != nil {
		return Intent{}, err
	}
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return Intent{}, err
	}
	if o.Status != orders.StatusPending {
		return Intent{}, &orders.InvalidTransitionError{From: o.Status, Trigger: orders.TriggerPaymentSucceeded}
	}

	for attempt := 0; attempt < 2; attempt++ {
		live, ok, err := s.Store.FindLive(ctx, orderID, key)
		if err != nil {
			return Intent{}, err
		}
		if ok {
			if s.IntentTTL <= 0 || s.Now().Sub(live.CreatedAt) < s.IntentTTL {
				return live, nil
			}
			// lazily expire, then claim a fresh one
			if err := s.Store.Expire(ctx, live.ID); err != nil {
				return Intent{}, err
			}
		}

		now := s.Now().UTC()
		claim := Intent{
			ID:             uuid.NewString(),
			OrderID:        orderID,
			Provider:       gw.Name(),
			IdempotencyKey: key,
			Status:         StatusCreated,
			AmountCents:    o.TotalCents,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		won, err := s.Store.Claim(ctx, claim)
		if err != nil {
			return Intent{}, err
		}
		if !won {
			continue
		}
		return s.openSession(ctx, gw, o, claim, returnURL)
	}
	live, ok, err := s.Store.FindLive(ctx, orderID, key)
	if err != nil {
		return Intent{}, err
	}
	if !ok {
		return Intent{}, fmt.Errorf("intent for %s/%s: claim contended", orderID, key)
	}
	return live, nil
}

func (s *Issuer) openSession(ctx context.Context, gw Gateway, o orders.Order, claim Intent, returnURL string) (Intent, error) {
	sess, err := gw.CreateCheckoutSession(ctx, CheckoutRequest{
		OrderID:        o.ID,
		OrderNo:        o.OrderNo,
		AmountCents:    claim.AmountCents,
		ReturnURL:      returnURL,
		IdempotencyKey: claim.IdempotencyKey,
	})
	if err != nil {
		// claim dilepas supaya retry dengan key yang sama memanggil gateway lagi
		if xerr := s.Store.Expire(context.WithoutCancel(ctx), claim.ID); xerr != nil {
			s.Log.Error("expire failed claim", zap.String("intent_id", claim.ID), zap.Error(xerr))
		}
		s.Log.Warn("gateway unavailable",
			zap.String("provider", gw.Name()), zap.String("order_id", o.ID), zap.Error(err))
		return Intent{}, &GatewayUnavailableError{Provider: gw.Name(), Err: err}
	}
	if err := s.Store.Attach(ctx, claim.ID, sess); err != nil {
		return Intent{}, err
	}
	claim.ProviderRef = sess.ProviderRef
	claim.RedirectURL = sess.RedirectURL
	s.Log.Info("payment intent created",
		zap.String("intent_id", claim.ID), zap.String("order_id", o.ID), zap.String("provider", gw.Name()))
	return claim, nil
}

func isClosedOrder(err error) bool {
	var bad *orders.InvalidTransitionError
	return errors.As(err, &bad)
}
