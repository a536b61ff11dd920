package subscription

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dmitrymomot/plankit/pkg/plans"
)

// Consume records feature usage against the subscription's plan limit.
// Capped features reject amounts that would push usage past the limit; the
// counter is untouched on rejection. The returned remaining amount is
// UnlimitedRemaining for uncapped features.
func (s *service) Consume(ctx context.Context, subscriptionID uuid.UUID, featureCode string, amount float64) (float64, error) {
	sub, feat, err := s.resolveMeteredFeature(ctx, subscriptionID, featureCode)
	if err != nil {
		return 0, err
	}

	unlock := s.usageLocks.Lock(usageLockKey(subscriptionID, featureCode))
	defer unlock()

	usage, err := s.usageOrZero(ctx, subscriptionID, featureCode)
	if err != nil {
		return 0, err
	}

	if !feat.IsUnlimited() && usage.Used+amount > feat.Limit {
		return 0, ErrLimitExceeded
	}

	usage.Used += amount
	remaining := UnlimitedRemaining
	if !feat.IsUnlimited() {
		remaining = feat.Limit - usage.Used
	}

	if err := s.usage.Save(ctx, usage); err != nil {
		return 0, err
	}

	s.sink.Publish(ctx, FeatureConsumed{
		Subscription: sub,
		Feature:      feat,
		Amount:       amount,
		Remaining:    remaining,
	})
	return remaining, nil
}

// Unconsume reverses previously recorded usage. Uncapped counters floor at
// zero; capped counters are allowed to go negative when more is reversed
// than was consumed.
func (s *service) Unconsume(ctx context.Context, subscriptionID uuid.UUID, featureCode string, amount float64) (float64, error) {
	sub, feat, err := s.resolveMeteredFeature(ctx, subscriptionID, featureCode)
	if err != nil {
		return 0, err
	}

	unlock := s.usageLocks.Lock(usageLockKey(subscriptionID, featureCode))
	defer unlock()

	usage, err := s.usageOrZero(ctx, subscriptionID, featureCode)
	if err != nil {
		return 0, err
	}

	if feat.IsUnlimited() {
		usage.Used = max(0, usage.Used-amount)
	} else {
		usage.Used -= amount
	}

	remaining := UnlimitedRemaining
	if !feat.IsUnlimited() {
		remaining = feat.Limit
		if usage.Used > 0 {
			remaining = feat.Limit - usage.Used
		}
	}

	if err := s.usage.Save(ctx, usage); err != nil {
		return 0, err
	}

	s.sink.Publish(ctx, FeatureUnconsumed{
		Subscription: sub,
		Feature:      feat,
		Amount:       amount,
		Remaining:    remaining,
	})
	return remaining, nil
}

// UsageOf returns the consumed amount, 0 when nothing was consumed yet.
func (s *service) UsageOf(ctx context.Context, subscriptionID uuid.UUID, featureCode string) (float64, error) {
	if _, _, err := s.resolveMeteredFeature(ctx, subscriptionID, featureCode); err != nil {
		return 0, err
	}

	usage, err := s.usage.Get(ctx, subscriptionID, featureCode)
	if err != nil {
		if errors.Is(err, ErrUsageNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return usage.Used, nil
}

// RemainingOf returns the amount left before the cap, the full limit when
// nothing was consumed yet, and UnlimitedRemaining for uncapped features.
func (s *service) RemainingOf(ctx context.Context, subscriptionID uuid.UUID, featureCode string) (float64, error) {
	_, feat, err := s.resolveMeteredFeature(ctx, subscriptionID, featureCode)
	if err != nil {
		return 0, err
	}
	if feat.IsUnlimited() {
		return UnlimitedRemaining, nil
	}

	usage, err := s.usage.Get(ctx, subscriptionID, featureCode)
	if err != nil {
		if errors.Is(err, ErrUsageNotFound) {
			return feat.Limit, nil
		}
		return 0, err
	}
	return feat.Limit - usage.Used, nil
}

// LimitOf returns the feature's cap, UnlimitedRemaining when uncapped.
func (s *service) LimitOf(ctx context.Context, subscriptionID uuid.UUID, featureCode string) (float64, error) {
	_, feat, err := s.resolveMeteredFeature(ctx, subscriptionID, featureCode)
	if err != nil {
		return 0, err
	}
	return feat.Limit, nil
}

// resolveMeteredFeature loads the subscription and the metered feature
// definition from its bound plan.
func (s *service) resolveMeteredFeature(ctx context.Context, subscriptionID uuid.UUID, featureCode string) (*Subscription, plans.Feature, error) {
	sub, err := s.store.Get(ctx, subscriptionID)
	if err != nil {
		return nil, plans.Feature{}, err
	}

	plan, err := s.catalog.FindByID(ctx, sub.PlanID)
	if err != nil {
		return nil, plans.Feature{}, err
	}

	feat, ok := plan.Feature(featureCode)
	if !ok {
		return nil, plans.Feature{}, ErrFeatureNotFound
	}
	if !feat.IsMetered() {
		return nil, plans.Feature{}, ErrFeatureNotMetered
	}
	return sub, feat, nil
}

// usageOrZero loads the counter, lazily materializing a zero entry for
// features never touched before.
func (s *service) usageOrZero(ctx context.Context, subscriptionID uuid.UUID, featureCode string) (*Usage, error) {
	usage, err := s.usage.Get(ctx, subscriptionID, featureCode)
	if err == nil {
		return usage, nil
	}
	if !errors.Is(err, ErrUsageNotFound) {
		return nil, err
	}
	return &Usage{SubscriptionID: subscriptionID, FeatureCode: featureCode}, nil
}

func usageLockKey(subscriptionID uuid.UUID, featureCode string) string {
	return subscriptionID.String() + "/" + featureCode
}
