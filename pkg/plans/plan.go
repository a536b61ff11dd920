package plans

import (
	"fmt"

	"github.com/google/uuid"
)

// Plan describes one immutable version of a subscription offer.
//
// Plans are addressed by their (Code, Tag) pair within the catalog; ID is the
// storage key a subscription record binds to. The core treats plans as
// read-only: price changes are new plan versions, never in-place edits, so a
// subscription's captured charging price stays meaningful.
type Plan struct {
	ID          uuid.UUID `yaml:"-" json:"id"`
	Code        string    `yaml:"code" json:"code"`
	Tag         string    `yaml:"tag" json:"tag"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description,omitempty"`
	Price       Money     `yaml:"price" json:"price"`

	// DurationDays is the default subscription length. A value of 30 gets
	// calendar-month expiry semantics in the lifecycle engine.
	DurationDays int `yaml:"duration_days" json:"duration_days"`

	// GraceDays extends the payment-retry window past expiry.
	GraceDays int `yaml:"grace_days" json:"grace_days"`

	// ProviderPriceID maps the plan to the payment provider's price object
	// (e.g. a Paddle price ID). Empty for plans that are never charged.
	ProviderPriceID string `yaml:"provider_price_id" json:"provider_price_id,omitempty"`

	Features []Feature `yaml:"features" json:"features,omitempty"`
}

// Feature returns the plan's feature definition for the given code.
func (p *Plan) Feature(code string) (Feature, bool) {
	for _, f := range p.Features {
		if f.Code == code {
			return f, true
		}
	}
	return Feature{}, false
}

// HasFeature reports whether the plan defines a feature with the given code.
func (p *Plan) HasFeature(code string) bool {
	_, ok := p.Feature(code)
	return ok
}

// NameAndPrice renders a display label such as "Starter - 9.99 USD".
func (p *Plan) NameAndPrice() string {
	return fmt.Sprintf("%s - %s", p.Name, p.Price)
}

// Validate checks the definition for catalog admission.
func (p *Plan) Validate() error {
	if p.Code == "" {
		return fmt.Errorf("%w: empty code", ErrInvalidPlan)
	}
	if p.Tag == "" {
		return fmt.Errorf("%w: plan %q has empty tag", ErrInvalidPlan, p.Code)
	}
	if p.DurationDays < 1 {
		return fmt.Errorf("%w: plan %q has duration %d days", ErrInvalidPlan, p.Code, p.DurationDays)
	}
	if p.GraceDays < 0 {
		return fmt.Errorf("%w: plan %q has negative grace period", ErrInvalidPlan, p.Code)
	}
	if err := p.Price.Validate(); err != nil {
		return fmt.Errorf("plan %q: %w", p.Code, err)
	}
	seen := make(map[string]struct{}, len(p.Features))
	for _, f := range p.Features {
		if f.Code == "" {
			return fmt.Errorf("%w: plan %q has feature with empty code", ErrInvalidPlan, p.Code)
		}
		if _, dup := seen[f.Code]; dup {
			return fmt.Errorf("%w: plan %q defines feature %q twice", ErrInvalidPlan, p.Code, f.Code)
		}
		seen[f.Code] = struct{}{}
	}
	return nil
}

// planIDNamespace seeds deterministic plan IDs so that reloading the same
// catalog definition yields stable references.
var planIDNamespace = uuid.MustParse("8f1d3a47-5b9e-4f0c-8a57-2d7b43a1c6e9")

// DeterministicID derives a stable plan ID from the (code, tag) identity.
func DeterministicID(code, tag string) uuid.UUID {
	return uuid.NewSHA1(planIDNamespace, []byte(code+"/"+tag))
}
