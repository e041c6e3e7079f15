package tokens

import (
	"context"
	"time"
)

// Store persists accounts and transactions. Debit must be atomic: the balance
// check, the increment and the transaction row succeed or fail together.
type Store interface {
	Get(ctx context.Context, userID string) (Account, error)
	Upsert(ctx context.Context, userID string, total int, now time.Time) (Account, error)
	Debit(ctx context.Context, req DebitRequest) (Account, error)
	ResetDue(ctx context.Context, now time.Time) (int, error)
	Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error)
}
