package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"narrate-backend/internal/shared/telemetry"
	"narrate-backend/internal/tokens"
)

// TokenGranter resets a user's token account to a plan's allotment.
type TokenGranter interface {
	Grant(ctx context.Context, userID string, total int) (tokens.Account, error)
}

// Service contains business logic for plans and subscriptions.
type Service struct {
	Repo   Repo
	Tokens TokenGranter
	// DefaultPlanID is used when Create is called without a plan.
	DefaultPlanID string
	now           func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repo, granter TokenGranter) *Service {
	return &Service{Repo: repo, Tokens: granter, now: func() time.Time { return time.Now().UTC() }}
}

// Current is a user's active subscription joined with its plan.
type Current struct {
	Subscription Subscription `json:"subscription"`
	Plan         Plan         `json:"plan"`
}

// Plans lists active plans, cheapest first.
func (s *Service) Plans(ctx context.Context) ([]Plan, error) {
	return s.Repo.ListActivePlans(ctx)
}

// Create activates planID for userID for one month and grants the plan's
// tokens, replacing any previous allotment. Re-subscribing to the plan that is
// already active within its period changes nothing, so usage is not reset.
func (s *Service) Create(ctx context.Context, userID, planID string) (Current, error) {
	planID = strings.TrimSpace(planID)
	if planID == "" {
		planID = s.DefaultPlanID
	}
	if userID == "" || planID == "" {
		return Current{}, ErrInvalidInput
	}
	plan, err := s.Repo.GetPlan(ctx, planID)
	if err != nil {
		return Current{}, err
	}
	if !plan.IsActive {
		return Current{}, ErrPlanNotFound
	}

	now := s.now()
	existing, err := s.Repo.GetActive(ctx, userID)
	switch {
	case err == nil && existing.PlanID == plan.ID && now.Before(existing.CurrentPeriodEnd):
		telemetry.Info("subscription.unchanged", map[string]any{
			"user_id":         userID,
			"plan_id":         plan.ID,
			"subscription_id": existing.ID,
		})
		return Current{Subscription: existing, Plan: plan}, nil
	case err != nil && !errors.Is(err, ErrSubscriptionNotFound):
		return Current{}, fmt.Errorf("load active subscription: %w", err)
	}

	sub := Subscription{
		ID:                 uuid.NewString(),
		UserID:             userID,
		PlanID:             plan.ID,
		Status:             StatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		CreatedAt:          now,
	}
	if err := s.Repo.Activate(ctx, sub); err != nil {
		return Current{}, fmt.Errorf("activate subscription: %w", err)
	}
	if _, err := s.Tokens.Grant(ctx, userID, plan.TokensIncluded); err != nil {
		return Current{}, fmt.Errorf("grant tokens: %w", err)
	}

	telemetry.Info("subscription.created", map[string]any{
		"user_id":         userID,
		"plan_id":         plan.ID,
		"subscription_id": sub.ID,
		"tokens_granted":  plan.TokensIncluded,
	})
	return Current{Subscription: sub, Plan: plan}, nil
}

// Current returns the user's active subscription or ErrSubscriptionNotFound.
func (s *Service) Current(ctx context.Context, userID string) (Current, error) {
	sub, err := s.Repo.GetActive(ctx, userID)
	if err != nil {
		return Current{}, err
	}
	plan, err := s.Repo.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return Current{}, err
	}
	return Current{Subscription: sub, Plan: plan}, nil
}
