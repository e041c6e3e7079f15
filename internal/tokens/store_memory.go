package tokens

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu           sync.Mutex
	accounts     map[string]Account
	transactions map[string][]Transaction
}

// NewMemoryStore returns a process-local Store for dev and tests.
func NewMemoryStore() Store {
	return &memoryStore{
		accounts:     make(map[string]Account),
		transactions: make(map[string][]Transaction),
	}
}

func (s *memoryStore) Get(ctx context.Context, userID string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (s *memoryStore) Upsert(ctx context.Context, userID string, total int, now time.Time) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	a := Account{UserID: userID, TotalTokens: total, LastResetDate: now}
	s.mu.Lock()
	s.accounts[userID] = a
	s.mu.Unlock()
	return a, nil
}

func (s *memoryStore) Debit(ctx context.Context, req DebitRequest) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[req.UserID]
	if !ok || a.Remaining() < req.Tokens {
		return Account{}, ErrInsufficientTokens
	}
	a.UsedTokens += req.Tokens
	s.accounts[req.UserID] = a
	s.appendLocked(Transaction{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		JobID:      req.JobID,
		TokensUsed: req.Tokens,
		Type:       TypeGeneration,
		WordCount:  req.WordCount,
		CreatedAt:  req.At,
	})
	return a, nil
}

func (s *memoryStore) ResetDue(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, a := range s.accounts {
		if a.NextReset().After(now) {
			continue
		}
		cleared := a.UsedTokens
		a.UsedTokens = 0
		a.LastResetDate = now
		s.accounts[id] = a
		s.appendLocked(Transaction{
			ID:         uuid.NewString(),
			UserID:     id,
			TokensUsed: cleared,
			Type:       TypeReset,
			CreatedAt:  now,
		})
		count++
	}
	return count, nil
}

func (s *memoryStore) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	src := s.transactions[userID]
	out := make([]Transaction, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) appendLocked(t Transaction) {
	s.transactions[t.UserID] = append(s.transactions[t.UserID], t)
}
