package subscription

import "github.com/google/uuid"

// UnlimitedRemaining is reported as the remaining amount for features with
// no enforced cap.
const UnlimitedRemaining float64 = -1

// Usage is the per-subscription, per-feature consumption counter. Entries
// are keyed by the (SubscriptionID, FeatureCode) pair and created lazily on
// first consumption; they live and die with their subscription.
type Usage struct {
	SubscriptionID uuid.UUID
	FeatureCode    string
	Used           float64
}
