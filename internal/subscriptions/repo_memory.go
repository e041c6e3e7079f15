package subscriptions

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-process Repo seeded with the default plans.
type MemoryRepo struct {
	mu    sync.RWMutex
	plans map[string]Plan
	subs  []Subscription
}

// NewMemoryRepo creates a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	r := &MemoryRepo{plans: make(map[string]Plan)}
	for _, p := range defaultPlans() {
		r.plans[p.ID] = p
	}
	return r
}

func (r *MemoryRepo) ListActivePlans(ctx context.Context) ([]Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Plan, 0, len(r.plans))
	for _, p := range r.plans {
		if p.IsActive {
			out = append(out, p)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price == out[j].Price {
			return out[i].ID < out[j].ID
		}
		return out[i].Price < out[j].Price
	})
	return out, nil
}

func (r *MemoryRepo) GetPlan(ctx context.Context, planID string) (Plan, error) {
	if err := ctx.Err(); err != nil {
		return Plan{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plans[planID]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

func (r *MemoryRepo) Activate(ctx context.Context, sub Subscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.subs {
		if r.subs[i].UserID == sub.UserID && r.subs[i].Status == StatusActive {
			r.subs[i].Status = StatusCancelled
		}
	}
	r.subs = append(r.subs, sub)
	return nil
}

func (r *MemoryRepo) GetActive(ctx context.Context, userID string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return Subscription{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.subs) - 1; i >= 0; i-- {
		if s := r.subs[i]; s.UserID == userID && s.Status == StatusActive {
			return s, nil
		}
	}
	return Subscription{}, ErrSubscriptionNotFound
}
