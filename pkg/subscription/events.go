package subscription

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/plankit/pkg/plans"
)

// Event is an immutable snapshot of a lifecycle transition, published to the
// configured Sink after the transition is persisted. Billing and audit
// collaborators consume these; the engine never waits on delivery.
type Event interface {
	// Kind returns the stable event name used for routing and logging.
	Kind() string
}

// Sink receives lifecycle events. Delivery is fire-and-forget from the
// engine's perspective; implementations must not block the caller for long
// and have no way to fail the originating operation.
type Sink interface {
	Publish(ctx context.Context, event Event)
}

// NewSubscription is emitted when a fresh subscription record is created.
type NewSubscription struct {
	Subscription *Subscription
}

func (NewSubscription) Kind() string { return "subscription.new" }

// NewSubscriptionUntil is emitted when a fresh record is created against a
// target date instead of a duration.
type NewSubscriptionUntil struct {
	Subscription *Subscription
	Until        time.Time
}

func (NewSubscriptionUntil) Kind() string { return "subscription.new_until" }

// ExtendSubscription is emitted for duration-based extensions. Successor is
// nil when the active record was extended in place, and carries the chained
// next-cycle record otherwise.
type ExtendSubscription struct {
	Subscription *Subscription
	StartFromNow bool
	Successor    *Subscription
}

func (ExtendSubscription) Kind() string { return "subscription.extend" }

// ExtendSubscriptionUntil is the date-based analogue of ExtendSubscription.
type ExtendSubscriptionUntil struct {
	Subscription *Subscription
	Until        time.Time
	StartFromNow bool
	Successor    *Subscription
}

func (ExtendSubscriptionUntil) Kind() string { return "subscription.extend_until" }

// UpgradeSubscription is emitted when the active record is rebound to a new
// plan, carrying both sides of the change.
type UpgradeSubscription struct {
	Subscription *Subscription
	StartFromNow bool
	OldPlan      *plans.Plan
	NewPlan      *plans.Plan
}

func (UpgradeSubscription) Kind() string { return "subscription.upgrade" }

// UpgradeSubscriptionUntil is the date-based analogue of UpgradeSubscription.
type UpgradeSubscriptionUntil struct {
	Subscription *Subscription
	Until        time.Time
	StartFromNow bool
	OldPlan      *plans.Plan
	NewPlan      *plans.Plan
}

func (UpgradeSubscriptionUntil) Kind() string { return "subscription.upgrade_until" }

// CancelSubscription is emitted when a cancellation is recorded. The record
// stays active until its natural expiry.
type CancelSubscription struct {
	Subscription *Subscription
}

func (CancelSubscription) Kind() string { return "subscription.cancel" }

// FeatureConsumed is emitted after a successful consumption. Remaining is
// UnlimitedRemaining for uncapped features.
type FeatureConsumed struct {
	Subscription *Subscription
	Feature      plans.Feature
	Amount       float64
	Remaining    float64
}

func (FeatureConsumed) Kind() string { return "feature.consumed" }

// FeatureUnconsumed is emitted after a successful consumption reversal.
type FeatureUnconsumed struct {
	Subscription *Subscription
	Feature      plans.Feature
	Amount       float64
	Remaining    float64
}

func (FeatureUnconsumed) Kind() string { return "feature.unconsumed" }

// ChargeSucceeded is emitted when the payment gateway accepts the charge for
// a new subscription.
type ChargeSucceeded struct {
	Subscription *Subscription
	Reference    string
}

func (ChargeSucceeded) Kind() string { return "charge.succeeded" }

// ChargeFailed is emitted when the gateway rejects the charge. The
// subscription record persists in the unpaid "due" state.
type ChargeFailed struct {
	Subscription *Subscription
	Err          error
}

func (ChargeFailed) Kind() string { return "charge.failed" }

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) {}

// LogSink renders events as structured log records.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink returns a Sink writing to the given logger. A nil logger falls
// back to slog.Default.
func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Publish(ctx context.Context, event Event) {
	attrs := []any{slog.String("event", event.Kind())}
	if sub := eventSubscription(event); sub != nil {
		attrs = append(attrs,
			slog.String("subscription_id", sub.ID.String()),
			slog.String("subject_id", sub.SubjectID.String()),
			slog.String("tag", sub.Tag),
		)
	}
	s.log.InfoContext(ctx, "subscription event", attrs...)
}

func eventSubscription(event Event) *Subscription {
	switch e := event.(type) {
	case NewSubscription:
		return e.Subscription
	case NewSubscriptionUntil:
		return e.Subscription
	case ExtendSubscription:
		return e.Subscription
	case ExtendSubscriptionUntil:
		return e.Subscription
	case UpgradeSubscription:
		return e.Subscription
	case UpgradeSubscriptionUntil:
		return e.Subscription
	case CancelSubscription:
		return e.Subscription
	case FeatureConsumed:
		return e.Subscription
	case FeatureUnconsumed:
		return e.Subscription
	case ChargeSucceeded:
		return e.Subscription
	case ChargeFailed:
		return e.Subscription
	default:
		return nil
	}
}

// MemorySink collects events for inspection in tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink returns an empty collecting sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Publish(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of everything published so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Reset drops all collected events.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
