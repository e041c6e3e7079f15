package tokens

import "time"

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TypeGeneration TransactionType = "generation"
	TypeRefund     TransactionType = "refund"
	TypeBonus      TransactionType = "bonus"
	TypeReset      TransactionType = "reset"
)

// TransactionHistoryLimit caps how many entries Transactions returns.
const TransactionHistoryLimit = 50

// Account is a user's token allotment for the current monthly period.
type Account struct {
	UserID        string
	TotalTokens   int
	UsedTokens    int
	LastResetDate time.Time
}

// Remaining is always Total - Used; it is derived, never stored.
func (a Account) Remaining() int {
	return a.TotalTokens - a.UsedTokens
}

// NextReset is one calendar month after the last reset.
func (a Account) NextReset() time.Time {
	return addMonth(a.LastResetDate)
}

// Transaction is one immutable ledger entry.
type Transaction struct {
	ID         string
	UserID     string
	JobID      string
	TokensUsed int
	Type       TransactionType
	WordCount  int
	CreatedAt  time.Time
}

// DebitRequest charges Tokens against UserID for one conversion.
type DebitRequest struct {
	UserID    string
	JobID     string
	Tokens    int
	WordCount int
	At        time.Time
}

// addMonth adds one calendar month, clamping to the last day of a shorter
// month (Jan 31 -> Feb 28/29) the way Postgres interval arithmetic does.
func addMonth(t time.Time) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
