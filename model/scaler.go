package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/songzhibin97/sentinel/types"
)

// StandardScaler standardizes features with statistics fixed at training time.
type StandardScaler struct {
	FeatureNames []string  `json:"feature_names,omitempty"`
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
}

// LoadScaler reads a scaler artifact from a JSON file.
func LoadScaler(path string) (*StandardScaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactMissing, err)
	}

	var s StandardScaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: decode scaler %s: %v", ErrArtifactInvalid, path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("%w: scaler %s: %v", ErrArtifactInvalid, path, err)
	}
	return &s, nil
}

func (s *StandardScaler) validate() error {
	if len(s.Mean) != types.FeatureCount || len(s.Scale) != types.FeatureCount {
		return fmt.Errorf("expected %d mean and scale values, got %d and %d",
			types.FeatureCount, len(s.Mean), len(s.Scale))
	}
	if len(s.FeatureNames) > 0 {
		if len(s.FeatureNames) != types.FeatureCount {
			return fmt.Errorf("expected %d feature names, got %d", types.FeatureCount, len(s.FeatureNames))
		}
		for i, name := range s.FeatureNames {
			if name != types.FeatureNames[i] {
				return fmt.Errorf("feature %d is %q, expected %q", i, name, types.FeatureNames[i])
			}
		}
	}
	for i := range s.Mean {
		if math.IsNaN(s.Mean[i]) || math.IsInf(s.Mean[i], 0) || math.IsNaN(s.Scale[i]) || math.IsInf(s.Scale[i], 0) {
			return fmt.Errorf("feature %d has non-finite statistics", i)
		}
	}
	return nil
}

// Transform returns (x - mean) / scale for every feature. A zero scale is
// treated as one.
func (s *StandardScaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.Mean) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Mean), len(features))
	}
	out := make([]float64, len(features))
	for i, x := range features {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (x - s.Mean[i]) / scale
	}
	return out, nil
}
