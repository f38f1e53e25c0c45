package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkax "github.com/ariefcatur/go-audio-checkout/internal/kafka"
	"github.com/ariefcatur/go-audio-checkout/internal/orders"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRedeemer struct {
	calls [][2]string
	err   error
}

func (f *fakeRedeemer) Redeem(_ context.Context, code, orderID string) (bool, error) {
	f.calls = append(f.calls, [2]string{code, orderID})
	return f.err == nil, f.err
}

func eventMessage(t *testing.T, eventType string, p orders.OrderEventPayload) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(p)
	require.NoError(t, err)
	value, err := json.Marshal(orders.Envelope{EventID: "e-1", EventType: eventType, EventVersion: 1, CorrelationID: p.OrderID, Payload: payload})
	require.NoError(t, err)
	return kafka.Message{
		Key:     []byte(p.OrderID),
		Value:   value,
		Headers: []kafka.Header{{Key: kafkax.HeaderEventType, Value: []byte(eventType)}},
	}
}

func TestRedemptionsHandle(t *testing.T) {
	r := &fakeRedeemer{}
	h := &Redemptions{Promotions: r, Log: zap.NewNop()}
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, eventMessage(t, orders.EventOrderPaid, orders.OrderEventPayload{OrderID: "o-1", PromotionCode: "TENOFF"})))
	require.NoError(t, h.Handle(ctx, eventMessage(t, orders.EventOrderPaid, orders.OrderEventPayload{OrderID: "o-2"})))
	require.NoError(t, h.Handle(ctx, eventMessage(t, orders.EventOrderCreated, orders.OrderEventPayload{OrderID: "o-3", PromotionCode: "TENOFF"})))
	require.NoError(t, h.Handle(ctx, kafka.Message{Value: []byte("garbage")}))

	assert.Equal(t, [][2]string{{"TENOFF", "o-1"}}, r.calls)
}

func TestRedemptionsRetryableError(t *testing.T) {
	r := &fakeRedeemer{err: errors.New("db down")}
	h := &Redemptions{Promotions: r, Log: zap.NewNop()}

	err := h.Handle(context.Background(), eventMessage(t, orders.EventOrderPaid, orders.OrderEventPayload{OrderID: "o-1", PromotionCode: "TENOFF"}))
	assert.Error(t, err)
}

type fakeExpirer struct {
	results []int
	windows []time.Duration
}

func (f *fakeExpirer) ExpireStale(_ context.Context, holdWindow time.Duration, batch int) (int, error) {
	f.windows = append(f.windows, holdWindow)
	if len(f.results) == 0 {
		return 0, nil
	}
	n := f.results[0]
	f.results = f.results[1:]
	return n, nil
}

func TestSweepOnceDrainsFullBatches(t *testing.T) {
	e := &fakeExpirer{results: []int{10, 10, 3}}
	s := &Sweeper{Orders: e, HoldWindow: 15 * time.Minute, Batch: 10, Log: zap.NewNop()}

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 23, n)
	assert.Len(t, e.windows, 3)
	assert.Equal(t, 15*time.Minute, e.windows[0])
}

func TestSweepOnceStopsWithoutBatchSize(t *testing.T) {
	e := &fakeExpirer{results: []int{5, 5, 5}}
	s := &Sweeper{Orders: e, HoldWindow: time.Minute, Batch: 0, Log: zap.NewNop()}

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, e.windows, 1)
}

func TestSweepOnceHonorsContext(t *testing.T) {
	e := &fakeExpirer{results: []int{10, 10, 10, 10}}
	s := &Sweeper{Orders: e, HoldWindow: time.Minute, Batch: 10, Log: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := s.SweepOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 10, n)
	assert.Len(t, e.windows, 1)
}

func TestSweeperRunStops(t *testing.T) {
	e := &fakeExpirer{}
	s := &Sweeper{Orders: e, HoldWindow: time.Minute, Interval: time.Hour, Batch: 10, Log: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, s.Run(ctx))
	assert.Len(t, e.windows, 1)
}
