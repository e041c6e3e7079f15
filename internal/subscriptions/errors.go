package subscriptions

import "errors"

var (
	ErrPlanNotFound         = errors.New("plan not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidInput         = errors.New("invalid input")
)
