package payment

import (
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
)

// HandleWebhook verifies and applies one provider notification. Redeliveries
// and out-of-order events are absorbed: the intent status only moves forward
// and the order transitions are idempotent.
func (s *Issuer) HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) (WebhookResult, error) {
	gw, err := s.gateway(provider)
	if err != nil {
		return WebhookResult{}, err
	}
	if err := gw.VerifyWebhookSignature(payload, signature); err != nil {
		return WebhookResult{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	ev, err := gw.ParseWebhookEvent(payload)
	if err != nil {
		return WebhookResult{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.ProviderRef == "" || advanceFrom(ev.Status) == nil {
		return WebhookResult{}, fmt.Errorf("%w: ref=%q status=%q", ErrMalformedEvent, ev.ProviderRef, ev.Status)
	}

	dedupKey := gw.Name() + ":" + ev.EventID
	if ev.EventID == "" {
		dedupKey = gw.Name() + ":" + ev.ProviderRef + ":" + string(ev.Status)
	}
	if s.Dedup != nil {
		seen, err := s.Dedup.Seen(ctx, dedupKey)
		if err != nil {
			s.Log.Warn("webhook dedup lookup failed", zap.String("key", dedupKey), zap.Error(err))
		} else if seen {
			return WebhookResult{Status: ev.Status, Duplicate: true}, nil
		}
	}

	in, err := s.Store.ByProviderRef(ctx, gw.Name(), ev.ProviderRef)
	if err != nil {
		return WebhookResult{}, err
	}
	res := WebhookResult{IntentID: in.ID, OrderID: in.OrderID, Status: in.Status}

	moved, err := s.Store.Advance(ctx, in.ID, ev.Status)
	if err != nil {
		return res, err
	}
	switch {
	case moved:
		res.Status = ev.Status
	case ev.Status == StatusSucceeded:
		// already recorded, or a replacement intent under the same key took
		// the success first. The money is in either way, so the order is
		// still settled; MarkPaid on a paid order changes nothing.
		res.Duplicate = true
		if in.Status != StatusSucceeded {
			s.Log.Warn("payment succeeded on superseded intent",
				zap.String("intent_id", in.ID), zap.String("order_id", in.OrderID), zap.String("current", string(in.Status)))
		}
	case in.Status == ev.Status && ev.Status == StatusFailed && s.FailurePolicy == FailureCancel:
		// the cancel may not have finished last time
		res.Duplicate = true
	case in.Status == ev.Status:
		// an EXPIRED intent may have been expired locally after a retry
		// claimed a new one, so expiry is never re-applied to the order
		res.Duplicate = true
		s.markSeen(ctx, dedupKey)
		return res, nil
	default:
		s.Log.Info("stale webhook ignored",
			zap.String("intent_id", in.ID), zap.String("current", string(in.Status)), zap.String("event", string(ev.Status)))
		res.Duplicate = true
		s.markSeen(ctx, dedupKey)
		return res, nil
	}

	if err := s.settleOrder(ctx, in, ev.Status, &res); err != nil {
		return res, err
	}
	s.markSeen(ctx, dedupKey)
	return res, nil
}

func (s *Issuer) settleOrder(ctx context.Context, in Intent, status Status, res *WebhookResult) error {
	lg := s.Log.With(zap.String("order_id", in.OrderID), zap.String("intent_id", in.ID))
	switch status {
	case StatusSucceeded:
		_, err := s.Settler.MarkPaid(ctx, in.OrderID)
		if isClosedOrder(err) {
			// uang sudah masuk tapi order sudah tutup: perlu refund manual
			lg.Warn("payment succeeded for closed order", zap.Error(err))
			res.OrderClosed = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		lg.Info("order paid via webhook")
	case StatusFailed, StatusExpired:
		if s.FailurePolicy != FailureCancel {
			lg.Info("payment not completed, order left pending", zap.String("status", string(status)))
			return nil
		}
		_, err := s.Settler.CancelOrder(ctx, in.OrderID)
		if isClosedOrder(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("cancel order after %s payment: %w", status, err)
		}
		lg.Info("order canceled after payment failure", zap.String("status", string(status)))
	}
	return nil
}

func (s *Issuer) markSeen(ctx context.Context, key string) {
	if s.Dedup == nil {
		return
	}
	if err := s.Dedup.Mark(ctx, key); err != nil {
		s.Log.Warn("webhook dedup mark failed", zap.String("key", key), zap.Error(err))
	}
}

// Retryable reports whether the provider should redeliver after err. The HTTP
// layer answers non-retryable errors with a 4xx so the provider drops them.
func Retryable(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrMalformedEvent),
		errors.Is(err, ErrUnknownProvider):
		return false
	}
	return true
}
