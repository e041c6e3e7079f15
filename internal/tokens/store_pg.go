package tokens

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

type pgStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed Store.
func NewPGStore(db *sql.DB) Store {
	return &pgStore{DB: db}
}

func (s *pgStore) Get(ctx context.Context, userID string) (Account, error) {
	a := Account{UserID: userID}
	err := s.DB.QueryRowContext(ctx, `
SELECT total_tokens, used_tokens, last_reset_date FROM user_tokens WHERE user_id = $1`, userID).
		Scan(&a.TotalTokens, &a.UsedTokens, &a.LastResetDate)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

func (s *pgStore) Upsert(ctx context.Context, userID string, total int, now time.Time) (Account, error) {
	if _, err := s.DB.ExecContext(ctx, `
INSERT INTO user_tokens (user_id, total_tokens, used_tokens, last_reset_date)
VALUES ($1, $2, 0, $3)
ON CONFLICT (user_id) DO UPDATE
SET total_tokens = EXCLUDED.total_tokens, used_tokens = 0, last_reset_date = EXCLUDED.last_reset_date`,
		userID, total, now); err != nil {
		return Account{}, err
	}
	return Account{UserID: userID, TotalTokens: total, LastResetDate: now}, nil
}

// Debit charges the account with one conditional UPDATE so concurrent debits
// of the same account serialize on the row and can never overdraw it.
func (s *pgStore) Debit(ctx context.Context, req DebitRequest) (acct Account, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	acct = Account{UserID: req.UserID}
	err = tx.QueryRowContext(ctx, `
UPDATE user_tokens SET used_tokens = used_tokens + $2
WHERE user_id = $1 AND total_tokens - used_tokens >= $2
RETURNING total_tokens, used_tokens, last_reset_date`, req.UserID, req.Tokens).
		Scan(&acct.TotalTokens, &acct.UsedTokens, &acct.LastResetDate)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrInsufficientTokens
		return Account{}, err
	}
	if err != nil {
		return Account{}, err
	}

	if err = insertTransaction(ctx, tx, Transaction{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		JobID:      req.JobID,
		TokensUsed: req.Tokens,
		Type:       TypeGeneration,
		WordCount:  req.WordCount,
		CreatedAt:  req.At,
	}); err != nil {
		return Account{}, err
	}
	if err = tx.Commit(); err != nil {
		return Account{}, err
	}
	return acct, nil
}

func (s *pgStore) ResetDue(ctx context.Context, now time.Time) (count int, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, `
UPDATE user_tokens t SET used_tokens = 0, last_reset_date = $1
FROM (
	SELECT user_id, used_tokens FROM user_tokens
	WHERE last_reset_date + interval '1 month' <= $1
	FOR UPDATE
) due
WHERE t.user_id = due.user_id
RETURNING t.user_id, due.used_tokens`, now)
	if err != nil {
		return 0, err
	}
	type cleared struct {
		userID string
		used   int
	}
	var resets []cleared
	for rows.Next() {
		var c cleared
		if err = rows.Scan(&c.userID, &c.used); err != nil {
			rows.Close()
			return 0, err
		}
		resets = append(resets, c)
	}
	if err = rows.Close(); err != nil {
		return 0, err
	}
	if err = rows.Err(); err != nil {
		return 0, err
	}

	for _, c := range resets {
		if err = insertTransaction(ctx, tx, Transaction{
			ID:         uuid.NewString(),
			UserID:     c.userID,
			TokensUsed: c.used,
			Type:       TypeReset,
			CreatedAt:  now,
		}); err != nil {
			return 0, err
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return len(resets), nil
}

func (s *pgStore) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, COALESCE(job_id, ''), tokens_used, transaction_type, word_count, created_at
FROM token_transactions
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var typ string
		if err := rows.Scan(&t.ID, &t.UserID, &t.JobID, &t.TokensUsed, &typ, &t.WordCount, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = TransactionType(typ)
		out = append(out, t)
	}
	return out, rows.Err()
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t Transaction) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO token_transactions (id, user_id, job_id, tokens_used, transaction_type, word_count, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, nullString(t.JobID), t.TokensUsed, string(t.Type), t.WordCount, t.CreatedAt)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
