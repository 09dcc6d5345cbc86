// Package scoring loads the pre-fit churn model and turns feature vectors
// into churn probabilities.
package scoring

// FeatureSchema names the feature layout a model was fit on. The pipeline
// and every model artifact must agree on it; the check happens at load time,
// not per request.
type FeatureSchema struct {
	Name     string   `json:"name"`
	Version  int      `json:"version"`
	Features []string `json:"features"`
}

// RFMSchema is the canonical layout produced by the feature builder.
func RFMSchema() FeatureSchema {
	return FeatureSchema{
		Name:     "rfm",
		Version:  1,
		Features: []string{"recency", "frequency", "monetary"},
	}
}

// Equal reports whether two schemas describe the same feature layout,
// including order.
func (s FeatureSchema) Equal(other FeatureSchema) bool {
	if s.Name != other.Name || s.Version != other.Version || len(s.Features) != len(other.Features) {
		return false
	}
	for i, f := range s.Features {
		if f != other.Features[i] {
			return false
		}
	}
	return true
}
