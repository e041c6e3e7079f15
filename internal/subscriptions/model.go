package subscriptions

import "time"

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusTrialing  Status = "trialing"
)

// Features are the plan limits shown to customers.
type Features struct {
	MaxUploadsPerMonth int  `json:"maxUploadsPerMonth"`
	MaxFileSizeMB      int  `json:"maxFileSizeMb"`
	PrioritySupport    bool `json:"prioritySupport"`
	AdvancedVoices     bool `json:"advancedVoices"`
	CustomVoices       bool `json:"customVoices"`
}

// Plan is a purchasable token allotment.
type Plan struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Price          float64  `json:"price"`
	TokensIncluded int      `json:"tokensIncluded"`
	Features       Features `json:"features"`
	IsActive       bool     `json:"isActive"`
}

// Subscription binds a user to a plan for one billing period.
type Subscription struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	PlanID             string    `json:"planId"`
	Status             Status    `json:"status"`
	CurrentPeriodStart time.Time `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time `json:"currentPeriodEnd"`
	CreatedAt          time.Time `json:"createdAt"`
}

// defaultPlans mirror the rows seeded by the plans migration.
func defaultPlans() []Plan {
	return []Plan{
		{ID: "free", Name: "Free", Price: 0, TokensIncluded: 5000, IsActive: true,
			Features: Features{MaxUploadsPerMonth: 5, MaxFileSizeMB: 5}},
		{ID: "pro", Name: "Pro", Price: 9.99, TokensIncluded: 50000, IsActive: true,
			Features: Features{MaxUploadsPerMonth: 50, MaxFileSizeMB: 25, AdvancedVoices: true}},
		{ID: "studio", Name: "Studio", Price: 29.99, TokensIncluded: 200000, IsActive: true,
			Features: Features{MaxUploadsPerMonth: 250, MaxFileSizeMB: 100, PrioritySupport: true, AdvancedVoices: true, CustomVoices: true}},
	}
}
