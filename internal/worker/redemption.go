package worker

import (
	"context"
	kafkax "github.com/ariefcatur/go-audio-checkout/internal/kafka"
	"github.com/ariefcatur/go-audio-checkout/internal/orders"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Redeemer interface {
	Redeem(ctx context.Context, code, orderID string) (counted bool, err error)
}

// Redemptions counts a promotion use once its order is paid. Redeem is
// idempotent per (code, order), so redelivered events are harmless.
type Redemptions struct {
	Promotions Redeemer
	Log        *zap.Logger
}

func (h *Redemptions) Handle(ctx context.Context, m kafka.Message) error {
	if t := kafkax.EventType(m); t != "" && t != orders.EventOrderPaid {
		return nil
	}
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		// tidak bisa di-decode, retry tidak akan membantu
		h.Log.Error("skip undecodable event", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventOrderPaid {
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.OrderEventPayload](env.Payload)
	if err != nil {
		h.Log.Error("skip undecodable payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if p.PromotionCode == "" {
		return nil
	}
	counted, err := h.Promotions.Redeem(ctx, p.PromotionCode, p.OrderID)
	if err != nil {
		return err
	}
	h.Log.Info("promotion redeemed",
		zap.String("code", p.PromotionCode), zap.String("order_id", p.OrderID), zap.Bool("counted", counted))
	return nil
}
