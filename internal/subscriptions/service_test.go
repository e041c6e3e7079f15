package subscriptions

import (
	"context"
	"errors"
	"testing"
	"time"

	"narrate-backend/internal/tokens"
)

func newTestService(now time.Time) (*Service, *tokens.Ledger) {
	ledger := tokens.NewLedger(tokens.NewMemoryStore())
	svc := NewService(NewMemoryRepo(), ledger)
	svc.now = func() time.Time { return now }
	return svc, ledger
}

func TestPlansOrderedByPrice(t *testing.T) {
	svc, _ := newTestService(time.Now())
	plans, err := svc.Plans(context.Background())
	if err != nil {
		t.Fatalf("Plans: %v", err)
	}
	want := []string{"free", "pro", "studio"}
	if len(plans) != len(want) {
		t.Fatalf("expected %d plans, got %d", len(want), len(plans))
	}
	for i, id := range want {
		if plans[i].ID != id {
			t.Fatalf("plan %d = %s, want %s", i, plans[i].ID, id)
		}
	}
}

func TestCreateGrantsPlanTokens(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	svc, ledger := newTestService(now)

	current, err := svc.Create(ctx, "u1", "pro")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if current.Subscription.Status != StatusActive || !current.Subscription.CurrentPeriodEnd.Equal(now.AddDate(0, 1, 0)) {
		t.Fatalf("unexpected subscription %+v", current.Subscription)
	}

	acct, err := ledger.Account(ctx, "u1")
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if acct.TotalTokens != 50000 || acct.Remaining() != 50000 {
		t.Fatalf("unexpected account %+v", acct)
	}
}

func TestCreateReplacesActiveSubscription(t *testing.T) {
	ctx := context.Background()
	svc, ledger := newTestService(time.Now().UTC())
	if _, err := svc.Create(ctx, "u1", "free"); err != nil {
		t.Fatalf("Create free: %v", err)
	}
	if _, err := ledger.Debit(ctx, "u1", "job", 100, 100); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if _, err := svc.Create(ctx, "u1", "studio"); err != nil {
		t.Fatalf("Create studio: %v", err)
	}

	current, err := svc.Current(ctx, "u1")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if current.Plan.ID != "studio" {
		t.Fatalf("expected studio, got %s", current.Plan.ID)
	}
	acct, _ := ledger.Account(ctx, "u1")
	if acct.UsedTokens != 0 || acct.TotalTokens != 200000 {
		t.Fatalf("expected fresh allotment, got %+v", acct)
	}

	repo := svc.Repo.(*MemoryRepo)
	active := 0
	for _, s := range repo.subs {
		if s.UserID == "u1" && s.Status == StatusActive {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active subscription, got %d", active)
	}
}

func TestCreateSamePlanKeepsUsage(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	svc, ledger := newTestService(now)
	first, err := svc.Create(ctx, "u1", "studio")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := ledger.Debit(ctx, "u1", "job", 150000, 150000); err != nil {
		t.Fatalf("Debit: %v", err)
	}

	svc.now = func() time.Time { return now.AddDate(0, 0, 10) }
	again, err := svc.Create(ctx, "u1", "studio")
	if err != nil {
		t.Fatalf("Create again: %v", err)
	}
	if again.Subscription.ID != first.Subscription.ID || !again.Subscription.CurrentPeriodEnd.Equal(first.Subscription.CurrentPeriodEnd) {
		t.Fatalf("expected the running subscription back, got %+v", again.Subscription)
	}
	acct, _ := ledger.Account(ctx, "u1")
	if acct.UsedTokens != 150000 || acct.Remaining() != 50000 {
		t.Fatalf("same-plan resubscribe must keep usage, got %+v", acct)
	}

	svc.now = func() time.Time { return now.AddDate(0, 1, 1) }
	renewed, err := svc.Create(ctx, "u1", "studio")
	if err != nil {
		t.Fatalf("Create after period end: %v", err)
	}
	if renewed.Subscription.ID == first.Subscription.ID {
		t.Fatalf("expected a new period after the old one ended")
	}
	if acct, _ := ledger.Account(ctx, "u1"); acct.UsedTokens != 0 || acct.TotalTokens != 200000 {
		t.Fatalf("expected fresh allotment for the new period, got %+v", acct)
	}
}

func TestCreateUnknownPlan(t *testing.T) {
	svc, _ := newTestService(time.Now())
	if _, err := svc.Create(context.Background(), "u1", "enterprise"); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
	if _, err := svc.Create(context.Background(), "u1", " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCurrentWithoutSubscription(t *testing.T) {
	svc, _ := newTestService(time.Now())
	if _, err := svc.Current(context.Background(), "u1"); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}

func TestCreateFallsBackToDefaultPlan(t *testing.T) {
	svc, ledger := newTestService(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	svc.DefaultPlanID = "free"
	cur, err := svc.Create(context.Background(), "guest:abc", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if cur.Plan.ID != "free" {
		t.Fatalf("expected free plan, got %q", cur.Plan.ID)
	}
	account, err := ledger.Account(context.Background(), "guest:abc")
	if err != nil || account.TotalTokens != 5000 {
		t.Fatalf("expected 5000 tokens granted, got %+v %v", account, err)
	}
}
