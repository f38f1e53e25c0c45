package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-audio-checkout/internal/catalog"
	"github.com/ariefcatur/go-audio-checkout/internal/inventory"
	"github.com/ariefcatur/go-audio-checkout/internal/promotion"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"time"
)

type ProductReader interface {
	GetProduct(ctx context.Context, productID string) (catalog.Product, error)
}

type Pricer interface {
	Apply(ctx context.Context, lines []promotion.Line, subtotalCents int64, code string) (promotion.Result, error)
}

type Reserver interface {
	Reserve(ctx context.Context, orderID string, items []inventory.Item) (inventory.Reservation, error)
	Release(ctx context.Context, reservationID string) error
}

// OrphanFinder lists holds whose order was never persisted.
type OrphanFinder interface {
	OrphanHolds(ctx context.Context, before time.Time, limit int) ([]string, error)
}

type Store interface {
	Insert(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	Transition(ctx context.Context, id string, from, to Status, effect Effect) error
	ListStale(ctx context.Context, status Status, before time.Time, limit int) ([]string, error)
}

// Publisher sends an encoded envelope keyed by order id.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, eventType string) error
}

type Cache interface {
	GetOrder(ctx context.Context, id string) (Order, bool, error)
	SetOrder(ctx context.Context, o Order) error
	Invalidate(ctx context.Context, id string) error
}

const (
	defaultFanout         = 4
	maxOrderNoAttempts    = 3
	maxTransitionAttempts = 3
	envelopeVersion       = 1
)

type Service struct {
	Catalog    ProductReader
	Promotions Pricer
	Inventory  Reserver
	Store      Store
	Orphans    OrphanFinder // optional
	Events     Publisher // optional
	Cache      Cache     // optional
	Log        *zap.Logger

	Producer      string
	ShippingCents int64
	Fanout        int
	Now           func() time.Time
}

func NewService(cat ProductReader, promo Pricer, inv Reserver, store Store, lg *zap.Logger) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{
		Catalog:    cat,
		Promotions: promo,
		Inventory:  inv,
		Store:      store,
		Log:        lg,
		Producer:   "checkout-api",
		Fanout:     defaultFanout,
		Now:        time.Now,
	}
}

// CreateOrder validates and prices the cart, holds stock for every line and
// persists a PENDING order. Stock is released again if persisting fails.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (Order, error) {
	if err := in.validate(); err != nil {
		return Order{}, err
	}
	inputs := mergeInputs(in.Items)

	products, err := s.lookupProducts(ctx, inputs)
	if err != nil {
		return Order{}, err
	}

	o := Order{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		Status:          StatusPending,
		ShippingAddress: in.ShippingAddress,
	}
	lines := make([]promotion.Line, 0, len(inputs))
	for i, it := range inputs {
		p := products[i]
		lineTotal := p.PriceCents * int64(it.Qty)
		o.SubtotalCents += lineTotal
		o.Items = append(o.Items, OrderItem{
			ID:             uuid.NewString(),
			OrderID:        o.ID,
			ProductID:      p.ID,
			Name:           p.Name,
			UnitPriceCents: p.PriceCents,
			Qty:            it.Qty,
			LineTotalCents: lineTotal,
		})
		lines = append(lines, promotion.Line{
			ProductID:      p.ID,
			CategoryID:     p.CategoryID,
			UnitPriceCents: p.PriceCents,
			Quantity:       it.Qty,
		})
	}

	priced, err := s.Promotions.Apply(ctx, lines, o.SubtotalCents, in.PromotionCode)
	if err != nil {
		return Order{}, err
	}
	if priced.Applied != nil {
		o.PromotionCode = priced.Applied.Code
	}
	o.DiscountCents = priced.DiscountCents
	o.ShippingCents = s.ShippingCents
	if priced.FreeShipping {
		o.ShippingCents = 0
	}
	o.TotalCents = max(0, o.SubtotalCents+o.ShippingCents-o.DiscountCents)

	res, err := s.Inventory.Reserve(ctx, o.ID, reservationItems(o.Items))
	if err != nil {
		return Order{}, err
	}
	o.ReservationID = res.ID

	now := s.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	if err := s.insert(ctx, &o); err != nil {
		// kompensasi: stok yang sudah di-hold dikembalikan
		if rerr := s.Inventory.Release(context.WithoutCancel(ctx), res.ID); rerr != nil {
			s.Log.Error("compensating release failed",
				zap.String("order_id", o.ID), zap.String("reservation_id", res.ID), zap.Error(rerr))
		}
		return Order{}, err
	}

	s.Log.Info("order created",
		zap.String("order_id", o.ID), zap.String("order_no", o.OrderNo), zap.Int64("total_cents", o.TotalCents))
	s.emit(ctx, o)
	return o, nil
}

func (s *Service) insert(ctx context.Context, o *Order) error {
	var err error
	for attempt := 0; attempt < maxOrderNoAttempts; attempt++ {
		o.OrderNo = NewOrderNo(o.CreatedAt)
		err = s.Store.Insert(ctx, *o)
		if !errors.Is(err, ErrDuplicateOrderNo) {
			return err
		}
	}
	return err
}

// lookupProducts returns products in the same order as items.
func (s *Service) lookupProducts(ctx context.Context, items []ItemInput) ([]catalog.Product, error) {
	out := make([]catalog.Product, len(items))
	g, gctx := errgroup.WithContext(ctx)
	limit := s.Fanout
	if limit <= 0 {
		limit = defaultFanout
	}
	g.SetLimit(limit)
	for i, it := range items {
		g.Go(func() error {
			p, err := s.Catalog.GetProduct(gctx, it.ProductID)
			if errors.Is(err, catalog.ErrNotFound) {
				return &ProductUnavailableError{ProductID: it.ProductID, Reason: "not found"}
			}
			if err != nil {
				return fmt.Errorf("lookup product %s: %w", it.ProductID, err)
			}
			if !p.Active {
				return &ProductUnavailableError{ProductID: it.ProductID, Reason: "inactive"}
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOrder reads through the cache when one is configured.
func (s *Service) GetOrder(ctx context.Context, id string) (Order, error) {
	if s.Cache != nil {
		if o, ok, err := s.Cache.GetOrder(ctx, id); err == nil && ok {
			return o, nil
		} else if err != nil {
			s.Log.Warn("order cache read failed", zap.String("order_id", id), zap.Error(err))
		}
	}
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if s.Cache != nil {
		if err := s.Cache.SetOrder(ctx, o); err != nil {
			s.Log.Warn("order cache write failed", zap.String("order_id", id), zap.Error(err))
		}
	}
	return o, nil
}

func (s *Service) CancelOrder(ctx context.Context, id string) (Order, error) {
	o, _, err := s.fire(ctx, id, TriggerCancel)
	return o, err
}

// MarkPaid commits the reservation. A second call for a paid order changes nothing.
func (s *Service) MarkPaid(ctx context.Context, id string) (Order, error) {
	o, _, err := s.fire(ctx, id, TriggerPaymentSucceeded)
	return o, err
}

func (s *Service) Fulfill(ctx context.Context, id string) (Order, error) {
	o, _, err := s.fire(ctx, id, TriggerFulfill)
	return o, err
}

func (s *Service) Refund(ctx context.Context, id string) (Order, error) {
	o, _, err := s.fire(ctx, id, TriggerRefund)
	return o, err
}

// ApplyTrigger is the admin override; it still goes through the transition table.
func (s *Service) ApplyTrigger(ctx context.Context, id string, trig Trigger) (Order, error) {
	o, _, err := s.fire(ctx, id, trig)
	return o, err
}

// ExpireStale expires up to batch PENDING orders older than holdWindow,
// then releases up to batch holds left without an order, and returns how
// many of both moved. Orders paid or canceled in the meantime are skipped.
func (s *Service) ExpireStale(ctx context.Context, holdWindow time.Duration, batch int) (int, error) {
	cutoff := s.Now().UTC().Add(-holdWindow)
	expired, err := s.expireOrders(ctx, cutoff, batch)
	if err != nil {
		return expired, err
	}
	released, err := s.releaseOrphans(ctx, cutoff, batch)
	return expired + released, err
}

func (s *Service) releaseOrphans(ctx context.Context, cutoff time.Time, batch int) (int, error) {
	if s.Orphans == nil {
		return 0, nil
	}
	ids, err := s.Orphans.OrphanHolds(ctx, cutoff, batch)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}
		if err := s.Inventory.Release(ctx, id); err != nil {
			s.Log.Error("release orphan hold failed", zap.String("reservation_id", id), zap.Error(err))
			continue
		}
		s.Log.Warn("released hold without order", zap.String("reservation_id", id))
		released++
	}
	return released, nil
}

func (s *Service) expireOrders(ctx context.Context, cutoff time.Time, batch int) (int, error) {
	ids, err := s.Store.ListStale(ctx, StatusPending, cutoff, batch)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		_, moved, err := s.fire(ctx, id, TriggerHoldExpired)
		var bad *InvalidTransitionError
		switch {
		case errors.As(err, &bad):
			continue
		case err != nil:
			s.Log.Error("expire order failed", zap.String("order_id", id), zap.Error(err))
			continue
		}
		if moved {
			expired++
		}
	}
	return expired, nil
}

// fire applies trig to the order's current status. moved is false when the
// order had already absorbed trig. A lost race re-reads and tries again.
func (s *Service) fire(ctx context.Context, id string, trig Trigger) (Order, bool, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		o, err := s.Store.Get(ctx, id)
		if err != nil {
			return Order{}, false, err
		}
		if alreadyApplied(o.Status, trig) {
			return o, false, nil
		}
		if o.Status.Terminal() {
			return o, false, &InvalidTransitionError{From: o.Status, Trigger: trig}
		}
		to, effect, err := Next(o.Status, trig)
		if err != nil {
			return o, false, err
		}
		err = s.Store.Transition(ctx, id, o.Status, to, effect)
		if errors.Is(err, ErrStaleStatus) {
			continue
		}
		if err != nil {
			return Order{}, false, err
		}

		from := o.Status
		o.Status = to
		o.UpdatedAt = s.Now().UTC()
		s.Log.Info("order transitioned",
			zap.String("order_id", id), zap.String("from", string(from)),
			zap.String("to", string(to)), zap.String("trigger", string(trig)))
		if s.Cache != nil {
			if err := s.Cache.Invalidate(ctx, id); err != nil {
				s.Log.Warn("order cache invalidate failed", zap.String("order_id", id), zap.Error(err))
			}
		}
		s.emit(ctx, o)
		return o, true, nil
	}
	return Order{}, false, fmt.Errorf("order %s: %w", id, ErrStaleStatus)
}

// emit is best effort; the order row is already committed.
func (s *Service) emit(ctx context.Context, o Order) {
	if s.Events == nil {
		return
	}
	payload, err := json.Marshal(NewEventPayload(o))
	if err != nil {
		s.Log.Error("encode event payload", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventFor(o.Status),
		EventVersion:  envelopeVersion,
		OccurredAt:    s.Now().UTC(),
		Producer:      s.Producer,
		CorrelationID: o.ID,
		Payload:       payload,
	}
	b, err := json.Marshal(env)
	if err != nil {
		s.Log.Error("encode event", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	if err := s.Events.Publish(ctx, PartitionKey(o.ID), b, env.EventType); err != nil {
		s.Log.Warn("publish order event failed",
			zap.String("order_id", o.ID), zap.String("event_type", env.EventType), zap.Error(err))
	}
}
