package plans

import "errors"

var (
	// ErrPlanNotFound indicates that no plan matches the requested identity.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrEmptyCatalog indicates the catalog holds no plans at all.
	ErrEmptyCatalog = errors.New("plan catalog is empty")

	// ErrInvalidPlan indicates a plan definition violates catalog constraints.
	ErrInvalidPlan = errors.New("invalid plan definition")

	// ErrDuplicatePlan indicates two plans share the same (code, tag) identity.
	ErrDuplicatePlan = errors.New("duplicate plan code and tag")

	// ErrInvalidCurrency indicates a monetary amount carries an unknown ISO 4217 code.
	ErrInvalidCurrency = errors.New("invalid ISO 4217 currency code")

	// ErrFailedToLoadCatalog wraps source-level failures while loading plan definitions.
	ErrFailedToLoadCatalog = errors.New("failed to load plan catalog")
)
