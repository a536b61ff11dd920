package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines subscription persistence. Query methods that depend on the
// wall clock receive the instant explicitly so that stores stay clock-free
// and predicates can be evaluated deterministically.
//
// Ordering contract: "active" selection orders by StartsOn descending and
// excludes cancelled and unpaid records; "last" selection orders by StartsOn
// descending with no filtering at all.
type Store interface {
	// Create persists a new subscription record.
	Create(ctx context.Context, sub *Subscription) error

	// Update persists changes to an existing record.
	// Returns ErrSubscriptionNotFound if the record does not exist.
	Update(ctx context.Context, sub *Subscription) error

	// Delete removes a record and its usage entries. Only "due" records are
	// ever deleted by the engine; everything else is terminated logically.
	Delete(ctx context.Context, id uuid.UUID) error

	// Get retrieves a record by ID.
	// Returns ErrSubscriptionNotFound if no record exists.
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// ActiveForTag returns the newest started, unexpired, paid,
	// non-cancelled record for the subject and tag at the given instant.
	// Returns ErrSubscriptionNotFound when none qualifies.
	ActiveForTag(ctx context.Context, subjectID uuid.UUID, tag string, now time.Time) (*Subscription, error)

	// LastForTag returns the newest record for the subject and tag,
	// including cancelled and expired ones.
	// Returns ErrSubscriptionNotFound when the subject never subscribed in
	// this tag.
	LastForTag(ctx context.Context, subjectID uuid.UUID, tag string) (*Subscription, error)

	// DueForTag returns the newest unpaid, non-cancelled record for the
	// subject and tag, or ErrSubscriptionNotFound.
	DueForTag(ctx context.Context, subjectID uuid.UUID, tag string) (*Subscription, error)

	// ByProformaID resolves the record linked to an external proforma.
	ByProformaID(ctx context.Context, proformaID uuid.UUID) (*Subscription, error)

	// ListForTag returns all records for the subject and tag ordered by
	// StartsOn descending.
	ListForTag(ctx context.Context, subjectID uuid.UUID, tag string) ([]*Subscription, error)

	// CountForSubject returns how many records the subject holds across all
	// tags.
	CountForSubject(ctx context.Context, subjectID uuid.UUID) (int, error)
}

// UsageStore defines persistence for feature usage counters, keyed by the
// (subscription, feature code) pair.
type UsageStore interface {
	// Get retrieves the counter for a subscription feature.
	// Returns ErrUsageNotFound when the feature was never consumed.
	Get(ctx context.Context, subscriptionID uuid.UUID, featureCode string) (*Usage, error)

	// Save creates or updates a counter.
	Save(ctx context.Context, usage *Usage) error

	// DeleteForSubscription removes every counter owned by a subscription.
	// Called when a due record is superseded.
	DeleteForSubscription(ctx context.Context, subscriptionID uuid.UUID) error
}
