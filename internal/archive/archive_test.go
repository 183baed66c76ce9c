package archive

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/payflow/internal/domain"
	"github.com/R3E-Network/payflow/pkg/testutil"
)

var now = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func newMockArchive(t *testing.T) (*Archive, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	a := New(sqlx.NewDb(db, "postgres"), Options{Clock: testutil.NewFakeClock(now)})
	return a, mock
}

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), "", Options{})
	assert.ErrorIs(t, err, ErrNoDSN)
}

func TestEnsureSchema(t *testing.T) {
	a, mock := newMockArchive(t)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "payflow_transactions"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE INDEX IF NOT EXISTS "payflow_transactions_occurred_at_idx" ON "payflow_transactions"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, a.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema_CustomTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	a := New(sqlx.NewDb(db, "postgres"), Options{Table: "tx_history"})

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "tx_history"`)).
		WillReturnError(errors.New("permission denied"))

	err = a.EnsureSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTransactions(t *testing.T) {
	a, mock := newMockArchive(t)
	created := time.Date(2024, 4, 30, 18, 0, 0, 0, time.UTC)
	txs := []domain.Transaction{
		{ID: 1, TransactionNumber: "T-1", Type: domain.TransactionDeposit, Status: domain.TransactionCompleted,
			Amount: decimal.RequireFromString("12.5"), Description: "salary", CreatedAt: &created},
		{TransactionNumber: "T-unsaved", Type: domain.TransactionSent, Status: domain.TransactionPending},
		{ID: 2, TransactionNumber: "T-2", Type: domain.TransactionSent, Status: domain.TransactionPending,
			Amount: decimal.RequireFromString("3")},
	}

	insert := regexp.QuoteMeta(`INSERT INTO "payflow_transactions"`)
	mock.ExpectBegin()
	mock.ExpectExec(insert).
		WithArgs(int64(1), "T-1", "DEPOSIT", "COMPLETED", sqlmock.AnyArg(), "salary", "", "", created, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).
		WithArgs(int64(2), "T-2", "SENT", "PENDING", sqlmock.AnyArg(), "", "", "", nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := a.SaveTransactions(context.Background(), txs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTransactions_RollsBackOnError(t *testing.T) {
	a, mock := newMockArchive(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	n, err := a.SaveTransactions(context.Background(), []domain.Transaction{{ID: 9, Type: domain.TransactionPayment}})
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Contains(t, err.Error(), "save transaction 9")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTransactions_NothingToSave(t *testing.T) {
	a, mock := newMockArchive(t)

	n, err := a.SaveTransactions(context.Background(), []domain.Transaction{{TransactionNumber: "no-id"}})
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecent(t *testing.T) {
	a, mock := newMockArchive(t)
	occurred := time.Date(2024, 4, 29, 8, 0, 0, 0, time.UTC)
	cols := []string{"id", "transaction_number", "type", "status", "amount", "description",
		"sender_name", "receiver_name", "occurred_at", "archived_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "payflow_transactions" ORDER BY occurred_at DESC NULLS LAST`)).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(4), "T-4", "PAYMENT", "COMPLETED", "7.25", "coffee", "me", "cafe", occurred, now).
			AddRow(int64(3), "T-3", "DEPOSIT", "PENDING", "100", "", "", "", nil, now))

	rows, err := a.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "T-4", rows[0].TransactionNumber)
	assert.True(t, decimal.RequireFromString("7.25").Equal(rows[0].Amount))
	assert.True(t, rows[0].OccurredAt.Valid)
	assert.Equal(t, occurred, rows[0].OccurredAt.Time)
	assert.False(t, rows[1].OccurredAt.Valid)
	require.NoError(t, mock.ExpectationsWereMet())
}
