package plans

// FeatureType distinguishes metered features from simple capability toggles.
type FeatureType string

const (
	// FeatureTypeLimit marks a metered feature whose consumption is counted
	// against a cap (or tracked without a cap when the limit is Unlimited).
	FeatureTypeLimit FeatureType = "limit"

	// FeatureTypeBoolean marks an on/off capability with no usage tracking.
	FeatureTypeBoolean FeatureType = "boolean"
)

// Unlimited marks a metered feature with no enforced cap.
const Unlimited float64 = -1

// Feature describes a single plan capability.
type Feature struct {
	Code string      `yaml:"code" json:"code"`
	Name string      `yaml:"name" json:"name"`
	Type FeatureType `yaml:"type" json:"type"`

	// Limit is the consumption cap for FeatureTypeLimit features. Any
	// negative value means the feature is unlimited; Unlimited is the
	// canonical sentinel. Ignored for boolean features.
	Limit float64 `yaml:"limit" json:"limit"`
}

// IsMetered reports whether consumption can be recorded against the feature.
func (f Feature) IsMetered() bool {
	return f.Type == FeatureTypeLimit
}

// IsUnlimited reports whether the metered feature has no enforced cap.
func (f Feature) IsUnlimited() bool {
	return f.Limit < 0
}
