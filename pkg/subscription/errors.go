package subscription

import "errors"

var (
	// Lifecycle rejections. All are returned before any mutation.
	ErrInvalidDuration           = errors.New("subscription duration must be at least one day")
	ErrInvalidTargetDate         = errors.New("subscription target date must be in the future")
	ErrNoActiveSubscription      = errors.New("no active subscription for subject and tag")
	ErrSubscriptionAlreadyActive = errors.New("subject already has an active subscription for tag")
	ErrAlreadyCancelled          = errors.New("subscription is already cancelled")
	ErrNotRecurring              = errors.New("subscription is not recurring")
	ErrNoSubscriptionToRenew     = errors.New("no subscription to renew for subject and tag")

	// Consumption rejections. No-op failures, never partial writes.
	ErrFeatureNotFound   = errors.New("feature not defined by the subscription's plan")
	ErrFeatureNotMetered = errors.New("feature is not a metered limit feature")
	ErrLimitExceeded     = errors.New("feature consumption would exceed the plan limit")

	// Storage lookups.
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrUsageNotFound        = errors.New("feature usage not found")
	ErrRedisUnavailable     = errors.New("failed to connect to redis")

	// Payment. A failed charge leaves the subscription persisted but unpaid.
	ErrChargeFailed              = errors.New("payment gateway charge failed")
	ErrMissingAPIKey             = errors.New("payment gateway API key is required")
	ErrMissingPriceID            = errors.New("payment gateway price ID is required")
	ErrMissingWebhookSecret      = errors.New("payment gateway webhook secret is required")
	ErrWebhookVerification       = errors.New("webhook signature verification failed")
	ErrInvalidGatewayEnvironment = errors.New("invalid payment gateway environment")
)
