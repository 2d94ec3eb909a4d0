package model

import (
	"errors"
	"fmt"

	"github.com/songzhibin97/sentinel/types"
)

var (
	ErrArtifactMissing = errors.New("model artifact missing")
	ErrArtifactInvalid = errors.New("model artifact invalid")
)

// Artifacts holds the trained scaler and classifier. Both are read-only once
// loaded and may be shared by concurrent evaluations.
type Artifacts struct {
	Scaler  *StandardScaler
	Booster *Booster
}

// LoadArtifacts loads the scaler and model and checks that they agree on the
// feature vector shape.
func LoadArtifacts(scalerPath, modelPath string, threshold float64) (*Artifacts, error) {
	scaler, err := LoadScaler(scalerPath)
	if err != nil {
		return nil, err
	}

	booster, err := LoadBooster(modelPath, threshold)
	if err != nil {
		return nil, err
	}

	var zero types.TransactionFeatures
	scaled, err := scaler.Transform(zero.Slice())
	if err != nil {
		return nil, fmt.Errorf("%w: scaler self-check: %v", ErrArtifactInvalid, err)
	}
	if _, err := booster.Predict(scaled); err != nil {
		return nil, fmt.Errorf("%w: model self-check: %v", ErrArtifactInvalid, err)
	}

	return &Artifacts{Scaler: scaler, Booster: booster}, nil
}
