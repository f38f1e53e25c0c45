package payment

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var intentCols = []string{"id", "order_id", "provider", "idempotency_key", "status", "amount_cents",
	"provider_ref", "redirect_url", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*Repo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &Repo{DB: mock}, mock
}

func TestRepoFindLive(t *testing.T) {
	r, mock := newMockRepo(t)
	at := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM payment_intents\s+WHERE order_id=\$1 AND idempotency_key=\$2 AND status <> 'EXPIRED'`).
		WithArgs("o-1", "key-1").
		WillReturnRows(pgxmock.NewRows(intentCols).
			AddRow("pi-1", "o-1", "hosted", "key-1", "CREATED", int64(21500), "cs_1", "https://pay/cs_1", at, at))
	mock.ExpectQuery(`FROM payment_intents`).WithArgs("o-1", "key-2").WillReturnError(pgx.ErrNoRows)

	in, ok, err := r.FindLive(context.Background(), "o-1", "key-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusCreated, in.Status)
	assert.Equal(t, "cs_1", in.ProviderRef)

	_, ok, err = r.FindLive(context.Background(), "o-1", "key-2")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoClaim(t *testing.T) {
	r, mock := newMockRepo(t)
	at := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	in := Intent{ID: "pi-1", OrderID: "o-1", Provider: "hosted", IdempotencyKey: "key-1", Status: StatusCreated, AmountCents: 21500, CreatedAt: at}

	mock.ExpectExec(`ON CONFLICT \(order_id, idempotency_key\) WHERE status <> 'EXPIRED' DO NOTHING`).
		WithArgs("pi-1", "o-1", "hosted", "key-1", "CREATED", int64(21500), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO payment_intents`).
		WithArgs("pi-1", "o-1", "hosted", "key-1", "CREATED", int64(21500), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	won, err := r.Claim(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = r.Claim(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoAdvance(t *testing.T) {
	r, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE payment_intents s SET status='EXPIRED'`).
		WithArgs("pi-1", []string{"CREATED", "PENDING", "FAILED"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`UPDATE payment_intents SET status=\$2`).
		WithArgs("pi-1", "SUCCEEDED", []string{"CREATED", "PENDING", "FAILED", "EXPIRED"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectExec(`UPDATE payment_intents SET status=\$2`).
		WithArgs("pi-1", "EXPIRED", []string{"CREATED", "PENDING"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	moved, err := r.Advance(context.Background(), "pi-1", StatusSucceeded)
	require.NoError(t, err)
	assert.True(t, moved)

	require.NoError(t, r.Expire(context.Background(), "pi-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

// An expired intent whose replacement already succeeded is not revived.
func TestRepoAdvanceLateSuccessAfterPaidReplacement(t *testing.T) {
	r, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE payment_intents s SET status='EXPIRED'`).
		WithArgs("pi-old", []string{"CREATED", "PENDING", "FAILED"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`UPDATE payment_intents SET status=\$2`).
		WithArgs("pi-old", "SUCCEEDED", []string{"CREATED", "PENDING", "FAILED", "EXPIRED"}).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_payment_intents_live"})
	mock.ExpectRollback()

	moved, err := r.Advance(context.Background(), "pi-old", StatusSucceeded)
	require.NoError(t, err)
	assert.False(t, moved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoAttachAndByProviderRef(t *testing.T) {
	r, mock := newMockRepo(t)
	at := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE payment_intents SET provider_ref=\$2, redirect_url=\$3`).
		WithArgs("pi-1", "cs_1", "https://pay/cs_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`WHERE provider=\$1 AND provider_ref=\$2`).WithArgs("hosted", "cs_1").
		WillReturnRows(pgxmock.NewRows(intentCols).
			AddRow("pi-1", "o-1", "hosted", "key-1", "PENDING", int64(21500), "cs_1", "https://pay/cs_1", at, at))
	mock.ExpectQuery(`WHERE provider=\$1 AND provider_ref=\$2`).WithArgs("hosted", "cs_x").
		WillReturnError(pgx.ErrNoRows)

	require.NoError(t, r.Attach(context.Background(), "pi-1", CheckoutSession{ProviderRef: "cs_1", RedirectURL: "https://pay/cs_1"}))

	in, err := r.ByProviderRef(context.Background(), "hosted", "cs_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, in.Status)

	_, err = r.ByProviderRef(context.Background(), "hosted", "cs_x")
	assert.ErrorIs(t, err, ErrUnknownIntent)
	require.NoError(t, mock.ExpectationsWereMet())
}
