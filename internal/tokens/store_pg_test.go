package tokens

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPGStore(db), mock
}

func TestPGStoreDebitConditionalUpdate(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lastReset := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE user_tokens SET used_tokens = used_tokens \+ \$2\s+WHERE user_id = \$1 AND total_tokens - used_tokens >= \$2`).
		WithArgs("u1", 150).
		WillReturnRows(sqlmock.NewRows([]string{"total_tokens", "used_tokens", "last_reset_date"}).AddRow(5000, 150, lastReset))
	mock.ExpectExec("INSERT INTO token_transactions").
		WithArgs(sqlmock.AnyArg(), "u1", "job-1", 150, "generation", 150, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	a, err := store.Debit(context.Background(), DebitRequest{UserID: "u1", JobID: "job-1", Tokens: 150, WordCount: 150, At: now})
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if a.UsedTokens != 150 || a.Remaining() != 4850 || !a.LastResetDate.Equal(lastReset) {
		t.Fatalf("unexpected account %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreDebitInsufficientRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE user_tokens SET used_tokens").
		WithArgs("u1", 100).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.Debit(context.Background(), DebitRequest{UserID: "u1", Tokens: 100, At: time.Now()})
	if !errors.Is(err, ErrInsufficientTokens) {
		t.Fatalf("expected ErrInsufficientTokens, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreDebitInsertFailureRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE user_tokens SET used_tokens").
		WithArgs("u1", 10).
		WillReturnRows(sqlmock.NewRows([]string{"total_tokens", "used_tokens", "last_reset_date"}).AddRow(100, 10, now))
	mock.ExpectExec("INSERT INTO token_transactions").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if _, err := store.Debit(context.Background(), DebitRequest{UserID: "u1", Tokens: 10, At: now}); err == nil {
		t.Fatalf("expected insert error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreGetMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT total_tokens, used_tokens, last_reset_date FROM user_tokens").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"total_tokens", "used_tokens", "last_reset_date"}))

	if _, err := store.Get(context.Background(), "u1"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestPGStoreUpsert(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO user_tokens").
		WithArgs("u1", 50000, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	a, err := store.Upsert(context.Background(), "u1", 50000, now)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if a.Remaining() != 50000 {
		t.Fatalf("unexpected account %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreResetDueWritesResetTransactions(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE user_tokens t SET used_tokens = 0`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "used_tokens"}).AddRow("u1", 400).AddRow("u2", 0))
	mock.ExpectExec("INSERT INTO token_transactions").
		WithArgs(sqlmock.AnyArg(), "u1", nil, 400, "reset", 0, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO token_transactions").
		WithArgs(sqlmock.AnyArg(), "u2", nil, 0, "reset", 0, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	n, err := store.ResetDue(context.Background(), now)
	if err != nil {
		t.Fatalf("ResetDue: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 resets, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreTransactions(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, user_id, COALESCE\\(job_id, ''\\)").
		WithArgs("u1", TransactionHistoryLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "job_id", "tokens_used", "transaction_type", "word_count", "created_at"}).
			AddRow("t2", "u1", "", 0, "reset", 0, now).
			AddRow("t1", "u1", "job-1", 150, "generation", 150, now.Add(-time.Hour)))

	txs, err := store.Transactions(context.Background(), "u1", TransactionHistoryLimit)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(txs) != 2 || txs[0].Type != TypeReset || txs[1].JobID != "job-1" {
		t.Fatalf("unexpected transactions %+v", txs)
	}
}
