// Package subscription implements plan subscriptions with metered feature
// usage for an arbitrary subject (user, team, workspace) identified by a
// UUID.
//
// A subject may hold several independent subscription tracks, distinguished
// by a tag. The "default" tag usually carries the main plan while extra tags
// model add-on bundles such as prepaid SMS packs. Every lifecycle operation
// is scoped to one (subject, tag) pair and serialized per pair, so concurrent
// calls for the same track never interleave.
//
// # Lifecycle
//
// The Service interface exposes the full lifecycle:
//
//   - SubscribeTo / SubscribeToUntil start a subscription on a plan, either
//     for a number of days or until an explicit date. An unpaid, not yet
//     cancelled subscription for the same track is superseded by the new one.
//   - ExtendWith / ExtendUntil prolong the active subscription, either by
//     pushing its expiry date or by chaining a back-to-back successor record
//     that starts when the current one ends. Without an active subscription
//     they fall back to starting a fresh one.
//   - UpgradeTo / UpgradeToUntil extend the active subscription and rebind
//     it to a different plan.
//   - Renew recreates an expired recurring subscription for another period.
//   - Cancel marks the active subscription as cancelled. It keeps serving
//     until its expiry date and is ignored by active lookups afterwards.
//
// Durations of exactly 30 days are treated as one calendar month, so a
// subscription started on 15 January expires on 15 February rather than a
// fixed 30 times 24 hours later.
//
// # Metered features
//
// Plans declare features (see the plans package). Limit features carry a
// numeric quota that subjects consume against:
//
//	remaining, err := svc.Consume(ctx, sub.ID, "api-calls", 25)
//	if errors.Is(err, subscription.ErrLimitExceeded) {
//	    // quota exhausted, nothing was recorded
//	}
//
// Consumption that would exceed the plan limit is rejected without touching
// the counter. Features with an unlimited quota always accept consumption.
// UsageOf, RemainingOf, and LimitOf report the current counters.
//
// # Storage
//
// Store and UsageStore abstract persistence. The package ships three
// implementations: in-memory stores for tests and prototypes
// (NewMemStore, NewMemUsageStore), Postgres stores over pgx
// (NewPostgresStore, NewPostgresUsageStore), and a Redis-backed usage store
// (NewRedisUsageStore) for hot counters.
//
// # Payments and events
//
// An optional Gateway charges the subject when subscribing with payment
// details. A failed charge does not fail the operation: the subscription is
// kept unpaid and a ChargeFailed event is published. MarkPaid settles such
// records later, typically from a webhook handler.
//
// Every successful operation publishes a typed event to the configured Sink.
// LogSink writes them to slog, MemorySink collects them for tests, and
// NopSink (the default) discards them.
//
// # Usage
//
//	catalog, err := plans.NewYAMLCatalog("plans.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	svc := subscription.NewService(catalog,
//	    subscription.NewMemStore(),
//	    subscription.NewMemUsageStore(),
//	    subscription.WithSink(subscription.NewLogSink(logger)),
//	)
//
//	plan, err := catalog.FindByCodeAndTag(ctx, "pro", "default")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sub, err := svc.SubscribeTo(ctx, subjectID, plan, subscription.SubscribeParams{
//	    DurationDays: 30,
//	    IsRecurring:  true,
//	    IsPaid:       true,
//	})
package subscription
