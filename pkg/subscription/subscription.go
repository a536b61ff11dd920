package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is one billing window binding a subject to a plan within a
// tag namespace. A subject holds at most one active subscription per tag;
// chained renewals and "next cycle" extensions are separate records.
//
// ChargingPrice is captured at creation time and never updated afterwards,
// so later plan price changes cannot retroactively affect existing
// subscriptions.
type Subscription struct {
	ID        uuid.UUID
	SubjectID uuid.UUID
	PlanID    uuid.UUID
	Tag       string

	StartsOn    time.Time
	ExpiresOn   time.Time
	GraceUntil  time.Time
	CancelledOn *time.Time // set once, never cleared

	PaymentMethod string // empty when no gateway is involved
	IsPaid        bool
	IsRecurring   bool
	RecurringDays int

	ChargingPrice    int64
	ChargingCurrency string

	// ProformaID and InvoiceID link the record to the external billing
	// collaborator. A subscription with a proforma and IsPaid=false is "due".
	ProformaID *uuid.UUID
	InvoiceID  *uuid.UUID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasStartedAt reports whether the subscription window has begun at the
// given instant.
func (s *Subscription) HasStartedAt(now time.Time) bool {
	return !now.Before(s.StartsOn)
}

// HasExpiredAt reports whether the subscription window has ended at the
// given instant.
func (s *Subscription) HasExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresOn)
}

// IsActiveAt reports whether the subscription has started and not yet
// expired at the given instant. Cancellation does not end the window early;
// a cancelled subscription stays active until its natural expiry.
func (s *Subscription) IsActiveAt(now time.Time) bool {
	return s.HasStartedAt(now) && !s.HasExpiredAt(now)
}

// IsInGracePeriodAt reports whether the instant falls strictly between
// expiry and the end of the grace window.
func (s *Subscription) IsInGracePeriodAt(now time.Time) bool {
	return now.After(s.ExpiresOn) && now.Before(s.GraceUntil)
}

// IsOutsideGracePeriodAt reports whether the subscription has fully lapsed:
// expired with the grace window behind it.
func (s *Subscription) IsOutsideGracePeriodAt(now time.Time) bool {
	return s.HasExpiredAt(now) && s.GraceUntil.Before(now)
}

// IsCancelled reports whether a cancellation has been recorded.
func (s *Subscription) IsCancelled() bool {
	return s.CancelledOn != nil
}

// IsPendingCancellationAt reports whether a cancellation is recorded but its
// effective date (the natural expiry) has not been reached yet.
func (s *Subscription) IsPendingCancellationAt(now time.Time) bool {
	return s.IsCancelled() && s.IsActiveAt(now)
}

// RemainingDaysAt returns the number of whole days left until expiry, or 0
// once expired. Partial days are truncated.
func (s *Subscription) RemainingDaysAt(now time.Time) int {
	if s.HasExpiredAt(now) {
		return 0
	}
	return int(s.ExpiresOn.Sub(now).Hours() / 24)
}

// NeedsPayment reports whether an unpaid proforma is attached to the record.
func (s *Subscription) NeedsPayment() bool {
	return s.ProformaID != nil && !s.IsPaid
}

// IsDue reports whether the record is awaiting payment resolution: unpaid
// and not cancelled. A due record is superseded by a fresh subscribe attempt
// for the same tag.
func (s *Subscription) IsDue() bool {
	return !s.IsPaid && !s.IsCancelled()
}

// Wall-clock convenience variants. Use the ...At forms with an injected
// clock anywhere determinism matters.

func (s *Subscription) HasStarted() bool { return s.HasStartedAt(time.Now().UTC()) }
func (s *Subscription) HasExpired() bool { return s.HasExpiredAt(time.Now().UTC()) }
func (s *Subscription) IsActive() bool   { return s.IsActiveAt(time.Now().UTC()) }
func (s *Subscription) RemainingDays() int {
	return s.RemainingDaysAt(time.Now().UTC())
}
func (s *Subscription) IsInGracePeriod() bool {
	return s.IsInGracePeriodAt(time.Now().UTC())
}
func (s *Subscription) IsOutsideGracePeriod() bool {
	return s.IsOutsideGracePeriodAt(time.Now().UTC())
}
func (s *Subscription) IsPendingCancellation() bool {
	return s.IsPendingCancellationAt(time.Now().UTC())
}
