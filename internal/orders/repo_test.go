package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-audio-checkout/internal/inventory"
	"github.com/ariefcatur/go-audio-checkout/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settleCall struct {
	effect        Effect
	reservationID string
}

type recordingSettler struct {
	calls []settleCall
	err   error
}

func (s *recordingSettler) CommitTx(_ context.Context, _ postgres.Querier, id string) ([]inventory.Item, error) {
	s.calls = append(s.calls, settleCall{EffectCommit, id})
	return nil, s.err
}

func (s *recordingSettler) ReleaseTx(_ context.Context, _ postgres.Querier, id string) ([]inventory.Item, error) {
	s.calls = append(s.calls, settleCall{EffectRelease, id})
	return nil, s.err
}

func newMockRepo(t *testing.T) (*Repo, *recordingSettler, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	settler := &recordingSettler{}
	return &Repo{DB: mock, Settler: settler}, settler, mock
}

func sampleOrder() Order {
	return Order{
		ID: "o-1", OrderNo: "ORD-20261014-AB12CD34", UserID: "u-1", Status: StatusPending,
		SubtotalCents: 20000, ShippingCents: 1500, DiscountCents: 0, TotalCents: 21500,
		ShippingAddress: Address{Recipient: "Rina", Line1: "Jl. Merdeka 1", City: "Bandung", PostalCode: "40111", Country: "ID"},
		ReservationID:   "r-1",
		Items: []OrderItem{
			{ID: "i-1", ProductID: "p-dac", Name: "USB DAC", UnitPriceCents: 10000, Qty: 2, LineTotalCents: 20000},
		},
		CreatedAt: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC),
	}
}

func TestRepoInsert(t *testing.T) {
	r, _, mock := newMockRepo(t)
	o := sampleOrder()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO orders`).
		WithArgs("o-1", o.OrderNo, "u-1", "PENDING", int64(20000), int64(1500), int64(0), int64(21500),
			pgxmock.AnyArg(), "", "r-1", o.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO order_items`).
		WithArgs("i-1", "o-1", "p-dac", "USB DAC", int64(10000), 2, int64(20000)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, r.Insert(context.Background(), o))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoInsertOrderNoCollision(t *testing.T) {
	r, _, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO orders`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "orders_order_no_key"})
	mock.ExpectRollback()

	err := r.Insert(context.Background(), sampleOrder())
	assert.ErrorIs(t, err, ErrDuplicateOrderNo)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoGet(t *testing.T) {
	r, _, mock := newMockRepo(t)
	created := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, order_no, user_id, status`).WithArgs("o-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "order_no", "user_id", "status", "subtotal_cents", "shipping_cents", "discount_cents",
			"total_cents", "shipping_address", "promotion_code", "reservation_id", "created_at", "updated_at",
		}).AddRow("o-1", "ORD-20261014-AB12CD34", "u-1", "PAID", int64(20000), int64(0), int64(2000),
			int64(18000), []byte(`{"recipient":"Rina","city":"Bandung","country":"ID"}`), "SHIPFREE", "r-1", created, created))
	mock.ExpectQuery(`FROM order_items WHERE order_id=\$1`).WithArgs("o-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "product_id", "name", "unit_price_cents", "qty", "line_total_cents"}).
			AddRow("i-1", "p-dac", "USB DAC", int64(10000), 2, int64(20000)))

	o, err := r.Get(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, "SHIPFREE", o.PromotionCode)
	assert.Equal(t, "Bandung", o.ShippingAddress.City)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "o-1", o.Items[0].OrderID)
	assert.Equal(t, 2, o.Items[0].Qty)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoGetNotFound(t *testing.T) {
	r, _, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM orders WHERE id=\$1`).WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err := r.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepoTransitionSettlesInSameTx(t *testing.T) {
	r, settler, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE orders SET status=\$3`).WithArgs("o-1", "PENDING", "PAID").
		WillReturnRows(pgxmock.NewRows([]string{"reservation_id"}).AddRow("r-1"))
	mock.ExpectCommit()

	require.NoError(t, r.Transition(context.Background(), "o-1", StatusPending, StatusPaid, EffectCommit))
	assert.Equal(t, []settleCall{{EffectCommit, "r-1"}}, settler.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoTransitionLostRace(t *testing.T) {
	r, settler, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE orders SET status=\$3`).WithArgs("o-1", "PENDING", "CANCELED").
		WillReturnRows(pgxmock.NewRows([]string{"reservation_id"}))
	mock.ExpectRollback()

	err := r.Transition(context.Background(), "o-1", StatusPending, StatusCanceled, EffectRelease)
	assert.ErrorIs(t, err, ErrStaleStatus)
	assert.Empty(t, settler.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoTransitionSettleFailureRollsBack(t *testing.T) {
	r, settler, mock := newMockRepo(t)
	settler.err = errors.New("bounds")

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE orders SET status=\$3`).WithArgs("o-1", "PENDING", "EXPIRED").
		WillReturnRows(pgxmock.NewRows([]string{"reservation_id"}).AddRow("r-1"))
	mock.ExpectRollback()

	err := r.Transition(context.Background(), "o-1", StatusPending, StatusExpired, EffectRelease)
	assert.EqualError(t, err, "bounds")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoListStale(t *testing.T) {
	r, _, mock := newMockRepo(t)
	cutoff := time.Date(2026, 10, 14, 8, 45, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id FROM orders`).WithArgs("PENDING", cutoff, 50).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("o-1").AddRow("o-2"))

	ids, err := r.ListStale(context.Background(), StatusPending, cutoff, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"o-1", "o-2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
