package tokens

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// Ledger is the token accounting contract used by conversions and plans.
type Ledger struct {
	store Store
	now   func() time.Time
}

// NewLedger wraps store. Pass NewMemoryStore() for a process-local ledger.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// TokensNeeded charges one token per word and never goes negative.
func TokensNeeded(words int) int {
	if words < 0 {
		return 0
	}
	return words
}

// CheckAvailable reports whether userID can spend n tokens. A user without an
// account simply has nothing available.
func (l *Ledger) CheckAvailable(ctx context.Context, userID string, n int) (bool, error) {
	a, err := l.store.Get(ctx, userID)
	if errors.Is(err, ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return a.Remaining() >= n, nil
}

// Debit charges tokens for a finished conversion and records a generation
// transaction. It fails with ErrInsufficientTokens without changing anything
// when the balance cannot cover the charge.
func (l *Ledger) Debit(ctx context.Context, userID, jobID string, tokens, words int) (Account, error) {
	if strings.TrimSpace(userID) == "" {
		return Account{}, ErrAccountNotFound
	}
	if tokens <= 0 {
		return Account{}, ErrInvalidAmount
	}
	return l.store.Debit(ctx, DebitRequest{
		UserID:    userID,
		JobID:     jobID,
		Tokens:    tokens,
		WordCount: words,
		At:        l.now(),
	})
}

// ResetMonthly restores every account whose period has elapsed by now and
// returns how many were reset. Running it twice in a period resets nothing.
func (l *Ledger) ResetMonthly(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = l.now()
	}
	return l.store.ResetDue(ctx, now.UTC())
}

// Grant gives userID a fresh allotment of total tokens starting today.
func (l *Ledger) Grant(ctx context.Context, userID string, total int) (Account, error) {
	if total < 0 {
		return Account{}, ErrInvalidAmount
	}
	return l.store.Upsert(ctx, userID, total, l.now())
}

// Account returns the user's account or ErrAccountNotFound.
func (l *Ledger) Account(ctx context.Context, userID string) (Account, error) {
	return l.store.Get(ctx, userID)
}

// Transactions returns the latest entries for userID, newest first.
func (l *Ledger) Transactions(ctx context.Context, userID string) ([]Transaction, error) {
	return l.store.Transactions(ctx, userID, TransactionHistoryLimit)
}

// PercentUsed is used/total as a percentage; an empty allotment is 0%.
func PercentUsed(a Account) float64 {
	if a.TotalTokens <= 0 {
		return 0
	}
	return float64(a.UsedTokens) / float64(a.TotalTokens) * 100
}

// DaysUntilReset counts whole days, rounded up, until the next reset.
func DaysUntilReset(a Account, now time.Time) int {
	left := a.NextReset().Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}
