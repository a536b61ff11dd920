package subscription

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrymomot/plankit/pkg/plans"
)

// Gateway is the opaque payment collaborator. The engine only engages it
// when a lifecycle call carries payment details; everything else about the
// provider (checkout flows, PCI, retries) stays behind this interface.
type Gateway interface {
	// Charge attempts to collect the given amount. A non-nil error means
	// the charge did not happen; the engine then leaves the subscription in
	// the unpaid "due" state rather than rolling it back.
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// ChargeRequest carries everything a provider needs to collect a payment
// for a subscription.
type ChargeRequest struct {
	SubscriptionID uuid.UUID
	SubjectID      uuid.UUID
	Amount         plans.Money
	Token          string // provider payment token supplied by the caller

	// PriceID is the provider-side price object for catalog-based
	// providers (e.g. Paddle). Empty for providers charging raw amounts.
	PriceID string
}

// ChargeResult reports a successful charge.
type ChargeResult struct {
	// Reference is the provider's identifier for the collected payment,
	// kept for reconciliation by external billing collaborators.
	Reference string
}

// PaymentDetails attaches a payment method to a lifecycle call. When
// present, the record is created unpaid and the gateway is asked to charge
// it immediately; the Price override supports negotiated pricing without
// touching the plan catalog.
type PaymentDetails struct {
	Method string // e.g. "paddle"
	Token  string
	Price  *plans.Money // overrides the plan price when set
}
