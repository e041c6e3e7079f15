package subscriptions

import "context"

// Repo stores plans and subscriptions.
type Repo interface {
	ListActivePlans(ctx context.Context) ([]Plan, error)
	GetPlan(ctx context.Context, planID string) (Plan, error)
	// Activate cancels the user's current active subscriptions and stores sub.
	Activate(ctx context.Context, sub Subscription) error
	GetActive(ctx context.Context, userID string) (Subscription, error)
}
