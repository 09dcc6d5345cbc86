package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	log "github.com/sirupsen/logrus"

	"retail-churn/internal/retail"
)

// modelArtifact is the serialized form of a fit model. The artifact embeds
// the schema it was fit on so the loader can refuse a layout mismatch.
type modelArtifact struct {
	Schema       FeatureSchema      `json:"schema"`
	Intercept    float64            `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`
}

// Model is a loaded churn classifier. It is built once at startup and is
// read-only afterwards; Predict never mutates it or its input.
type Model struct {
	schema    FeatureSchema
	intercept float64
	weights   []float64
}

// LoadModel reads a model artifact from path and validates it against the
// pipeline's canonical feature schema. Any failure here is fatal to startup.
func LoadModel(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}

	var artifact modelArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, fmt.Errorf("corrupt model artifact %s: %w", path, err)
	}

	expected := RFMSchema()
	if !artifact.Schema.Equal(expected) {
		return nil, fmt.Errorf("model schema %s/v%d %v does not match expected %s/v%d %v",
			artifact.Schema.Name, artifact.Schema.Version, artifact.Schema.Features,
			expected.Name, expected.Version, expected.Features)
	}

	weights := make([]float64, len(artifact.Schema.Features))
	for i, feature := range artifact.Schema.Features {
		w, ok := artifact.Coefficients[feature]
		if !ok {
			return nil, fmt.Errorf("model artifact missing coefficient for %q", feature)
		}
		weights[i] = w
	}

	log.WithFields(log.Fields{
		"path":    path,
		"schema":  artifact.Schema.Name,
		"version": artifact.Schema.Version,
	}).Info("Model loaded")

	return &Model{
		schema:    artifact.Schema,
		intercept: artifact.Intercept,
		weights:   weights,
	}, nil
}

// Schema returns the feature layout the model was fit on.
func (m *Model) Schema() FeatureSchema {
	return m.schema
}

// Predict returns the probability mass assigned to the churn class, in [0,1].
func (m *Model) Predict(in retail.ScoringInput) (float64, error) {
	z := m.intercept
	for i, feature := range m.schema.Features {
		v, err := featureValue(in, feature)
		if err != nil {
			return 0, err
		}
		z += m.weights[i] * v
	}
	return sigmoid(z), nil
}

func featureValue(in retail.ScoringInput, feature string) (float64, error) {
	switch feature {
	case "recency":
		return float64(in.Recency), nil
	case "frequency":
		return float64(in.Frequency), nil
	case "monetary":
		return in.Monetary, nil
	default:
		return 0, fmt.Errorf("unknown feature %q", feature)
	}
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
