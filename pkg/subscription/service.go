package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/plankit/pkg/clock"
	"github.com/dmitrymomot/plankit/pkg/plans"
)

// Service is the subscription lifecycle and feature consumption engine.
//
// Lifecycle operations are keyed by the (subject, tag) namespace: each tag
// is an independent subscription track, so a subject may hold a "default"
// and an "sms" subscription concurrently. Every operation runs a bounded
// read-then-write sequence serialized per track, persists the result, and
// publishes a domain event.
type Service interface {
	// SubscribeTo creates a fresh subscription to the plan for the plan's
	// tag. A due (unpaid, non-cancelled) record for the same tag is
	// superseded first; an active record causes a rejection.
	SubscribeTo(ctx context.Context, subjectID uuid.UUID, plan *plans.Plan, p SubscribeParams) (*Subscription, error)

	// SubscribeToUntil is SubscribeTo against a target expiry date instead
	// of a day count. Rejects dates not in the future.
	SubscribeToUntil(ctx context.Context, subjectID uuid.UUID, plan *plans.Plan, until time.Time, p SubscribeParams) (*Subscription, error)

	// ExtendWith lengthens the subject's active subscription in the tag by
	// the given number of days. With startFromNow the active record's
	// expiry is pushed out in place; otherwise a successor record is
	// chained back-to-back after the current expiry. Without an active
	// subscription it degrades to a fresh subscription from the last known
	// plan, or the catalog default if the subject never subscribed.
	ExtendWith(ctx context.Context, subjectID uuid.UUID, tag string, days int, startFromNow, isRecurring bool) (*Subscription, error)

	// ExtendUntil is the date-based analogue of ExtendWith.
	ExtendUntil(ctx context.Context, subjectID uuid.UUID, tag string, until time.Time, startFromNow, isRecurring bool) (*Subscription, error)

	// UpgradeTo moves the subject's active subscription in the new plan's
	// tag onto that plan, extending per ExtendWith rules. Degrades to
	// SubscribeTo when no active subscription exists.
	UpgradeTo(ctx context.Context, subjectID uuid.UUID, newPlan *plans.Plan, days int, startFromNow, isRecurring bool) (*Subscription, error)

	// UpgradeToUntil is the date-based analogue of UpgradeTo. After the
	// extension is computed it additionally rejects results whose expiry
	// overshoots the target date.
	UpgradeToUntil(ctx context.Context, subjectID uuid.UUID, newPlan *plans.Plan, until time.Time, startFromNow, isRecurring bool) (*Subscription, error)

	// Renew re-subscribes the subject to the plan of its most recent
	// subscription in the tag, using the recorded recurrence period, as a
	// fresh unpaid record. Intended to be driven by a scheduler.
	Renew(ctx context.Context, subjectID uuid.UUID, tag string, startsOn *time.Time) (*Subscription, error)

	// Cancel records a cancellation on the active subscription. The record
	// stays active until its natural expiry; auto-renewal is disabled.
	Cancel(ctx context.Context, subjectID uuid.UUID, tag string) (*Subscription, error)

	// MarkPaid flips an existing record to paid, e.g. after an external
	// proforma settles.
	MarkPaid(ctx context.Context, subscriptionID uuid.UUID) (*Subscription, error)

	// Queries.
	ActiveSubscription(ctx context.Context, subjectID uuid.UUID, tag string) (*Subscription, error)
	LastSubscription(ctx context.Context, subjectID uuid.UUID, tag string) (*Subscription, error)
	HasActiveSubscription(ctx context.Context, subjectID uuid.UUID, tag string) bool
	HasSubscriptions(ctx context.Context, subjectID uuid.UUID) bool
	SubscriptionByProforma(ctx context.Context, proformaID uuid.UUID) (*Subscription, error)

	// Feature consumption. Remaining is UnlimitedRemaining for uncapped
	// features.
	Consume(ctx context.Context, subscriptionID uuid.UUID, featureCode string, amount float64) (remaining float64, err error)
	Unconsume(ctx context.Context, subscriptionID uuid.UUID, featureCode string, amount float64) (remaining float64, err error)
	UsageOf(ctx context.Context, subscriptionID uuid.UUID, featureCode string) (float64, error)
	RemainingOf(ctx context.Context, subscriptionID uuid.UUID, featureCode string) (float64, error)
	LimitOf(ctx context.Context, subscriptionID uuid.UUID, featureCode string) (float64, error)
}

// SubscribeParams carries the caller's choices for a new subscription.
type SubscribeParams struct {
	// DurationDays is the subscription length; ignored by SubscribeToUntil.
	DurationDays int

	IsRecurring bool

	// IsPaid is the initial paid state when no payment is attached. With
	// Payment set the record always starts unpaid and the gateway decides.
	IsPaid bool

	// StartsOn overrides the default start of now minus a small epsilon.
	StartsOn *time.Time

	Payment *PaymentDetails
}

const (
	// startEpsilon backdates a default start so the record satisfies the
	// "has started" predicate at the instant it is created.
	startEpsilon = time.Second

	// monthDays triggers calendar-month expiry arithmetic instead of a
	// literal day count.
	monthDays = 30
)

type service struct {
	catalog    plans.Catalog
	store      Store
	usage      UsageStore
	gateway    Gateway
	sink       Sink
	clock      clock.Clock
	log        *slog.Logger
	tagLocks   *keyedMutex
	usageLocks *keyedMutex
}

// NewService creates the lifecycle engine. Panics if catalog, store, or
// usage store are nil to fail fast during initialization. Payment gateway,
// event sink, clock, and logger are configured through options and default
// to no gateway, a discarding sink, the system clock, and slog.Default.
func NewService(catalog plans.Catalog, store Store, usage UsageStore, opts ...ServiceOption) Service {
	if catalog == nil {
		panic("subscription: plans.Catalog is required")
	}
	if store == nil {
		panic("subscription: Store is required")
	}
	if usage == nil {
		panic("subscription: UsageStore is required")
	}

	s := &service{
		catalog:    catalog,
		store:      store,
		usage:      usage,
		sink:       NopSink{},
		clock:      clock.System(),
		log:        slog.Default(),
		tagLocks:   newKeyedMutex(),
		usageLocks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func tagLockKey(subjectID uuid.UUID, tag string) string {
	return subjectID.String() + "/" + tag
}

// SubscribeTo implements Service.
func (s *service) SubscribeTo(ctx context.Context, subjectID uuid.UUID, plan *plans.Plan, p SubscribeParams) (*Subscription, error) {
	unlock := s.tagLocks.Lock(tagLockKey(subjectID, plan.Tag))
	defer unlock()
	return s.subscribeTo(ctx, subjectID, plan, p)
}

// SubscribeToUntil implements Service.
func (s *service) SubscribeToUntil(ctx context.Context, subjectID uuid.UUID, plan *plans.Plan, until time.Time, p SubscribeParams) (*Subscription, error) {
	unlock := s.tagLocks.Lock(tagLockKey(subjectID, plan.Tag))
	defer unlock()
	return s.subscribeToUntil(ctx, subjectID, plan, until, p)
}

// ExtendWith implements Service.
func (s *service) ExtendWith(ctx context.Context, subjectID uuid.UUID, tag string, days int, startFromNow, isRecurring bool) (*Subscription, error) {
	unlock := s.tagLocks.Lock(tagLockKey(subjectID, tag))
	defer unlock()
	return s.extendWith(ctx, subjectID, tag, days, startFromNow, isRecurring)
}

// ExtendUntil implements Service.
func (s *service) ExtendUntil(ctx context.Context, subjectID uuid.UUID, tag string, until time.Time, startFromNow, isRecurring bool) (*Subscription, error) {
	unlock := s.tagLocks.Lock(tagLockKey(subjectID, tag))
	defer unlock()
	return s.extendUntil(ctx, subjectID, tag, until, startFromNow, isRecurring)
}

// UpgradeTo implements Service.
func (s *service) UpgradeTo(ctx context.Context, subjectID uuid.UUID, newPlan *plans.Plan, days int, startFromNow, isRecurring bool) (*Subscription, error) {
	unlock := s.tagLocks.Lock(tagLockKey(subjectID, newPlan.Tag))
	defer unlock()
	return s.upgradeTo(ctx, subjectID, newPlan, days, startFromNow, isRecurring)
}

// UpgradeToUntil implements Service.
func (s *service) UpgradeToUntil(ctx context.Context, subjectID uuid.UUID, newPlan *plans.Plan, until time.Time, startFromNow, isRecurring bool) (*Subscription, error) {
	unlock := s.tagLocks.Lock(tagLockKey(subjectID, newPlan.Tag))
	defer unlock()
	return s.upgradeToUntil(ctx, subjectID, newPlan, until, startFromNow, isRecurring)
}

// Renew implements Service.
func (s *service) Renew(ctx context.Context, subjectID uuid.UUID, tag string, startsOn *time.Time) (*Subscription, error) {
	unlock := s.tagLocks.Lock(tagLockKey(subjectID, tag))
	defer unlock()

	last, err := s.store.LastForTag(ctx, subjectID, tag)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, ErrNoSubscriptionToRenew
		}
		return nil, err
	}
	if !last.IsRecurring {
		return nil, ErrNotRecurring
	}
	if last.IsCancelled() {
		return nil, ErrAlreadyCancelled
	}

	plan, err := s.catalog.FindByID(ctx, last.PlanID)
	if err != nil {
		return nil, err
	}

	return s.subscribeTo(ctx, subjectID, plan, SubscribeParams{
		DurationDays: last.RecurringDays,
		IsRecurring:  true,
		IsPaid:       false,
		StartsOn:     startsOn,
	})
}

// Cancel implements Service.
func (s *service) Cancel(ctx context.Context, subjectID uuid.UUID, tag string) (*Subscription, error) {
	unlock := s.tagLocks.Lock(tagLockKey(subjectID, tag))
	defer unlock()

	now := s.clock.Now()

	active, err := s.store.ActiveForTag(ctx, subjectID, tag, now)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, err
	}
	if active.IsCancelled() || active.IsPendingCancellationAt(now) {
		return nil, ErrAlreadyCancelled
	}

	active.CancelledOn = &now
	active.IsRecurring = false
	active.UpdatedAt = now
	if err := s.store.Update(ctx, active); err != nil {
		return nil, err
	}

	s.sink.Publish(ctx, CancelSubscription{Subscription: active})
	return active, nil
}

// MarkPaid implements Service.
func (s *service) MarkPaid(ctx context.Context, subscriptionID uuid.UUID) (*Subscription, error) {
	// The record must be loaded once to learn its tag, then reloaded under
	// the tag lock so a concurrent lifecycle mutation is not overwritten.
	sub, err := s.store.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	unlock := s.tagLocks.Lock(tagLockKey(sub.SubjectID, sub.Tag))
	defer unlock()

	sub, err = s.store.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.IsPaid {
		return sub, nil
	}
	sub.IsPaid = true
	sub.UpdatedAt = s.clock.Now()
	if err := s.store.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ActiveSubscription implements Service.
func (s *service) ActiveSubscription(ctx context.Context, subjectID uuid.UUID, tag string) (*Subscription, error) {
	sub, err := s.store.ActiveForTag(ctx, subjectID, tag, s.clock.Now())
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, err
	}
	return sub, nil
}

// LastSubscription implements Service.
func (s *service) LastSubscription(ctx context.Context, subjectID uuid.UUID, tag string) (*Subscription, error) {
	return s.store.LastForTag(ctx, subjectID, tag)
}

// HasActiveSubscription implements Service.
func (s *service) HasActiveSubscription(ctx context.Context, subjectID uuid.UUID, tag string) bool {
	_, err := s.store.ActiveForTag(ctx, subjectID, tag, s.clock.Now())
	return err == nil
}

// HasSubscriptions implements Service.
func (s *service) HasSubscriptions(ctx context.Context, subjectID uuid.UUID) bool {
	n, err := s.store.CountForSubject(ctx, subjectID)
	return err == nil && n > 0
}

// SubscriptionByProforma implements Service.
func (s *service) SubscriptionByProforma(ctx context.Context, proformaID uuid.UUID) (*Subscription, error) {
	return s.store.ByProformaID(ctx, proformaID)
}

// subscribeTo creates a fresh record. Callers must hold the tag lock.
func (s *service) subscribeTo(ctx context.Context, subjectID uuid.UUID, plan *plans.Plan, p SubscribeParams) (*Subscription, error) {
	if p.DurationDays < 1 {
		return nil, ErrInvalidDuration
	}

	now := s.clock.Now()
	startsOn := now.Add(-startEpsilon)
	if p.StartsOn != nil {
		startsOn = p.StartsOn.UTC()
	}
	expiresOn := expiryAfter(startsOn, p.DurationDays)

	if err := s.ensureWindowFree(ctx, subjectID, plan.Tag, startsOn, expiresOn); err != nil {
		return nil, err
	}

	sub, err := s.createSubscription(ctx, subjectID, plan, p, startsOn, expiresOn, p.DurationDays, now)
	if err != nil {
		return nil, err
	}

	s.sink.Publish(ctx, NewSubscription{Subscription: sub})
	return sub, nil
}

// subscribeToUntil creates a fresh record with an explicit expiry date.
// Callers must hold the tag lock.
func (s *service) subscribeToUntil(ctx context.Context, subjectID uuid.UUID, plan *plans.Plan, until time.Time, p SubscribeParams) (*Subscription, error) {
	now := s.clock.Now()
	until = until.UTC()
	if !until.After(now) {
		return nil, ErrInvalidTargetDate
	}

	startsOn := now.Add(-startEpsilon)
	if p.StartsOn != nil {
		startsOn = p.StartsOn.UTC()
	}
	if !startsOn.Before(until) {
		return nil, ErrInvalidTargetDate
	}

	if err := s.ensureWindowFree(ctx, subjectID, plan.Tag, startsOn, until); err != nil {
		return nil, err
	}

	sub, err := s.createSubscription(ctx, subjectID, plan, p, startsOn, until, wholeDaysBetween(now, until), now)
	if err != nil {
		return nil, err
	}

	s.sink.Publish(ctx, NewSubscriptionUntil{Subscription: sub, Until: until})
	return sub, nil
}

// ensureWindowFree rejects a candidate window that overlaps any settled
// (paid, non-cancelled) record in the tag. Due records do not count because
// createSubscription supersedes them, and cancelled records do not count
// because a pending cancellation may be replaced immediately. A record with
// a future start participates like any other, so a second subscription
// cannot slip in before it.
func (s *service) ensureWindowFree(ctx context.Context, subjectID uuid.UUID, tag string, startsOn, expiresOn time.Time) error {
	existing, err := s.store.ListForTag(ctx, subjectID, tag)
	if err != nil {
		return err
	}
	for _, sub := range existing {
		if sub.IsCancelled() || !sub.IsPaid {
			continue
		}
		if startsOn.Before(sub.ExpiresOn) && sub.StartsOn.Before(expiresOn) {
			return ErrSubscriptionAlreadyActive
		}
	}
	return nil
}

// createSubscription persists a new record after superseding any due record
// in the same tag, then runs the optional charge. A failed charge is a
// deliberate partial success: the record stays unpaid and a ChargeFailed
// event carries the cause.
func (s *service) createSubscription(ctx context.Context, subjectID uuid.UUID, plan *plans.Plan, p SubscribeParams, startsOn, expiresOn time.Time, recurringDays int, now time.Time) (*Subscription, error) {
	if !startsOn.Before(expiresOn) {
		return nil, ErrInvalidTargetDate
	}

	if due, err := s.store.DueForTag(ctx, subjectID, plan.Tag); err == nil {
		if err := s.usage.DeleteForSubscription(ctx, due.ID); err != nil {
			return nil, err
		}
		if err := s.store.Delete(ctx, due.ID); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}

	price := plan.Price
	paymentMethod := ""
	isPaid := p.IsPaid
	if p.Payment != nil {
		paymentMethod = p.Payment.Method
		isPaid = false
		if p.Payment.Price != nil {
			price = *p.Payment.Price
		}
	}

	sub := &Subscription{
		ID:               uuid.New(),
		SubjectID:        subjectID,
		PlanID:           plan.ID,
		Tag:              plan.Tag,
		StartsOn:         startsOn,
		ExpiresOn:        expiresOn,
		GraceUntil:       expiresOn.AddDate(0, 0, plan.GraceDays),
		PaymentMethod:    paymentMethod,
		IsPaid:           isPaid,
		IsRecurring:      p.IsRecurring,
		RecurringDays:    recurringDays,
		ChargingPrice:    price.Amount,
		ChargingCurrency: price.Currency,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.Create(ctx, sub); err != nil {
		return nil, err
	}

	if p.Payment != nil && s.gateway != nil {
		result, err := s.gateway.Charge(ctx, ChargeRequest{
			SubscriptionID: sub.ID,
			SubjectID:      subjectID,
			Amount:         price,
			Token:          p.Payment.Token,
			PriceID:        plan.ProviderPriceID,
		})
		if err != nil {
			s.log.WarnContext(ctx, "subscription charge failed",
				slog.String("subscription_id", sub.ID.String()),
				slog.String("subject_id", subjectID.String()),
				slog.Any("error", err),
			)
			s.sink.Publish(ctx, ChargeFailed{Subscription: sub, Err: err})
		} else {
			sub.IsPaid = true
			sub.UpdatedAt = s.clock.Now()
			if err := s.store.Update(ctx, sub); err != nil {
				return nil, err
			}
			s.sink.Publish(ctx, ChargeSucceeded{Subscription: sub, Reference: result.Reference})
		}
	}

	return sub, nil
}

// extendWith lengthens the active window or chains a successor. Callers
// must hold the tag lock.
func (s *service) extendWith(ctx context.Context, subjectID uuid.UUID, tag string, days int, startFromNow, isRecurring bool) (*Subscription, error) {
	now := s.clock.Now()

	active, err := s.store.ActiveForTag(ctx, subjectID, tag, now)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			plan, ferr := s.fallbackPlan(ctx, subjectID, tag)
			if ferr != nil {
				return nil, ferr
			}
			return s.subscribeTo(ctx, subjectID, plan, SubscribeParams{
				DurationDays: days,
				IsRecurring:  isRecurring,
				IsPaid:       true,
			})
		}
		return nil, err
	}

	if days < 1 {
		return nil, ErrInvalidDuration
	}

	plan, err := s.catalog.FindByID(ctx, active.PlanID)
	if err != nil {
		return nil, err
	}

	if startFromNow {
		active.ExpiresOn = active.ExpiresOn.AddDate(0, 0, days)
		active.GraceUntil = active.ExpiresOn.AddDate(0, 0, plan.GraceDays)
		active.UpdatedAt = now
		if err := s.store.Update(ctx, active); err != nil {
			return nil, err
		}
		s.sink.Publish(ctx, ExtendSubscription{Subscription: active, StartFromNow: true})
		return active, nil
	}

	successor := s.chainSuccessor(active, active.ExpiresOn.AddDate(0, 0, days), days, isRecurring, plan.GraceDays, now)
	if err := s.store.Create(ctx, successor); err != nil {
		return nil, err
	}
	s.sink.Publish(ctx, ExtendSubscription{Subscription: active, StartFromNow: false, Successor: successor})
	return successor, nil
}

// extendUntil is the date-based analogue of extendWith. Callers must hold
// the tag lock.
func (s *service) extendUntil(ctx context.Context, subjectID uuid.UUID, tag string, until time.Time, startFromNow, isRecurring bool) (*Subscription, error) {
	now := s.clock.Now()
	until = until.UTC()

	active, err := s.store.ActiveForTag(ctx, subjectID, tag, now)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			plan, ferr := s.fallbackPlan(ctx, subjectID, tag)
			if ferr != nil {
				return nil, ferr
			}
			return s.subscribeToUntil(ctx, subjectID, plan, until, SubscribeParams{
				IsRecurring: isRecurring,
				IsPaid:      true,
			})
		}
		return nil, err
	}

	plan, err := s.catalog.FindByID(ctx, active.PlanID)
	if err != nil {
		return nil, err
	}

	if startFromNow {
		if !until.After(now) {
			return nil, ErrInvalidTargetDate
		}
		active.ExpiresOn = until
		active.GraceUntil = until.AddDate(0, 0, plan.GraceDays)
		active.UpdatedAt = now
		if err := s.store.Update(ctx, active); err != nil {
			return nil, err
		}
		s.sink.Publish(ctx, ExtendSubscriptionUntil{Subscription: active, Until: until, StartFromNow: true})
		return active, nil
	}

	if active.ExpiresOn.After(until) {
		return nil, ErrInvalidTargetDate
	}

	successor := s.chainSuccessor(active, until, wholeDaysBetween(now, until), isRecurring, plan.GraceDays, now)
	if err := s.store.Create(ctx, successor); err != nil {
		return nil, err
	}
	s.sink.Publish(ctx, ExtendSubscriptionUntil{Subscription: active, Until: until, StartFromNow: false, Successor: successor})
	return successor, nil
}

// chainSuccessor builds the next-cycle record starting where the active one
// expires. The successor opens a clean usage ledger but inherits plan
// binding, captured pricing, and payment method.
func (s *service) chainSuccessor(active *Subscription, expiresOn time.Time, recurringDays int, isRecurring bool, graceDays int, now time.Time) *Subscription {
	return &Subscription{
		ID:               uuid.New(),
		SubjectID:        active.SubjectID,
		PlanID:           active.PlanID,
		Tag:              active.Tag,
		StartsOn:         active.ExpiresOn,
		ExpiresOn:        expiresOn,
		GraceUntil:       expiresOn.AddDate(0, 0, graceDays),
		PaymentMethod:    active.PaymentMethod,
		IsPaid:           active.IsPaid,
		IsRecurring:      isRecurring,
		RecurringDays:    recurringDays,
		ChargingPrice:    active.ChargingPrice,
		ChargingCurrency: active.ChargingCurrency,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// upgradeTo extends then rebinds the plan. Callers must hold the tag lock.
func (s *service) upgradeTo(ctx context.Context, subjectID uuid.UUID, newPlan *plans.Plan, days int, startFromNow, isRecurring bool) (*Subscription, error) {
	now := s.clock.Now()

	active, err := s.store.ActiveForTag(ctx, subjectID, newPlan.Tag, now)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return s.subscribeTo(ctx, subjectID, newPlan, SubscribeParams{
				DurationDays: days,
				IsRecurring:  isRecurring,
				IsPaid:       true,
			})
		}
		return nil, err
	}

	if days < 1 {
		return nil, ErrInvalidDuration
	}

	oldPlan, err := s.catalog.FindByID(ctx, active.PlanID)
	if err != nil {
		return nil, err
	}

	sub, err := s.extendWith(ctx, subjectID, newPlan.Tag, days, startFromNow, isRecurring)
	if err != nil {
		return nil, err
	}

	if err := s.rebindPlan(ctx, sub, newPlan); err != nil {
		return nil, err
	}

	s.sink.Publish(ctx, UpgradeSubscription{
		Subscription: sub,
		StartFromNow: startFromNow,
		OldPlan:      oldPlan,
		NewPlan:      newPlan,
	})
	return sub, nil
}

// upgradeToUntil is the date-based analogue of upgradeTo. The target-date
// consistency check intentionally runs after the extension is computed.
// Callers must hold the tag lock.
func (s *service) upgradeToUntil(ctx context.Context, subjectID uuid.UUID, newPlan *plans.Plan, until time.Time, startFromNow, isRecurring bool) (*Subscription, error) {
	now := s.clock.Now()
	until = until.UTC()

	active, err := s.store.ActiveForTag(ctx, subjectID, newPlan.Tag, now)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return s.subscribeToUntil(ctx, subjectID, newPlan, until, SubscribeParams{
				IsRecurring: isRecurring,
				IsPaid:      true,
			})
		}
		return nil, err
	}

	oldPlan, err := s.catalog.FindByID(ctx, active.PlanID)
	if err != nil {
		return nil, err
	}

	sub, err := s.extendUntil(ctx, subjectID, newPlan.Tag, until, startFromNow, isRecurring)
	if err != nil {
		return nil, err
	}

	if sub.ExpiresOn.After(until) {
		return nil, ErrInvalidTargetDate
	}

	if err := s.rebindPlan(ctx, sub, newPlan); err != nil {
		return nil, err
	}

	s.sink.Publish(ctx, UpgradeSubscriptionUntil{
		Subscription: sub,
		Until:        until,
		StartFromNow: startFromNow,
		OldPlan:      oldPlan,
		NewPlan:      newPlan,
	})
	return sub, nil
}

// rebindPlan points the record at the new plan and realigns the grace
// window with the new plan's grace period.
func (s *service) rebindPlan(ctx context.Context, sub *Subscription, newPlan *plans.Plan) error {
	if sub.PlanID == newPlan.ID {
		return nil
	}
	sub.PlanID = newPlan.ID
	sub.GraceUntil = sub.ExpiresOn.AddDate(0, 0, newPlan.GraceDays)
	sub.UpdatedAt = s.clock.Now()
	return s.store.Update(ctx, sub)
}

// fallbackPlan picks the plan for extend operations running without an
// active subscription: the last known plan in the tag, or the catalog
// default for subjects with no history.
func (s *service) fallbackPlan(ctx context.Context, subjectID uuid.UUID, tag string) (*plans.Plan, error) {
	last, err := s.store.LastForTag(ctx, subjectID, tag)
	if err == nil {
		return s.catalog.FindByID(ctx, last.PlanID)
	}
	if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}
	plan, err := s.catalog.First(ctx)
	if err != nil {
		return nil, fmt.Errorf("no plan available for fallback subscription: %w", err)
	}
	return plan, nil
}

// expiryAfter applies calendar-month semantics for the canonical 30-day
// month and a literal day count otherwise.
func expiryAfter(startsOn time.Time, days int) time.Time {
	if days == monthDays {
		return startsOn.AddDate(0, 1, 0)
	}
	return startsOn.AddDate(0, 0, days)
}

// wholeDaysBetween truncates the span between two instants to whole days.
func wholeDaysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
