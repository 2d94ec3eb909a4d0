// Package classifier turns raw transaction input into a fraud verdict using
// an injected scaler and model.
package classifier

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/songzhibin97/sentinel/types"
)

// Scaler transforms 30 ordered features using statistics fixed at training time.
type Scaler interface {
	Transform(features []float64) ([]float64, error)
}

// Model returns a binary class label for a scaled feature vector.
type Model interface {
	Predict(features []float64) (int, error)
}

// Adapter is the boundary between the workflow and the trained model. It
// never returns an untyped failure: every problem becomes an error verdict.
type Adapter struct {
	scaler Scaler
	model  Model
	logger *slog.Logger
}

// NewAdapter creates an adapter over the given scaler and model.
func NewAdapter(scaler Scaler, model Model, logger *slog.Logger) (*Adapter, error) {
	if scaler == nil || model == nil {
		return nil, errors.New("scaler and model are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{scaler: scaler, model: model, logger: logger}, nil
}

// ParseFeatures splits raw into exactly 30 finite numeric values.
func ParseFeatures(raw string) (types.TransactionFeatures, *types.AdapterError) {
	var features types.TransactionFeatures

	tokens := strings.Split(strings.TrimSpace(raw), ",")
	if len(tokens) != types.FeatureCount {
		return features, &types.AdapterError{
			Kind:    types.ErrorKindInputShape,
			Message: fmt.Sprintf("Input must contain exactly %d numerical values, got %d.", types.FeatureCount, len(tokens)),
		}
	}

	for i, tok := range tokens {
		tok = strings.TrimSpace(tok)
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return features, &types.AdapterError{
				Kind:    types.ErrorKindInputParse,
				Message: fmt.Sprintf("Input could not be parsed: value %d (%s) is not a finite number.", i+1, strconv.Quote(tok)),
			}
		}
		features[i] = v
	}
	return features, nil
}

// Evaluate classifies one raw transaction string.
func (a *Adapter) Evaluate(raw string) types.Verdict {
	features, perr := ParseFeatures(raw)
	if perr != nil {
		return types.Verdict{Err: perr}
	}

	label, err := a.predict(features)
	if err != nil {
		a.logger.Warn("model invocation failed", "error", err)
		return types.ErrorVerdict(types.ErrorKindModelInvocation, fmt.Sprintf("Model invocation failed: %v.", err))
	}

	a.logger.Debug("raw prediction", "label", label)

	switch label {
	case 1:
		return types.FraudVerdict()
	case 0:
		return types.NotFraudVerdict()
	default:
		a.logger.Warn("unexpected class label", "label", label)
		return types.ErrorVerdict(types.ErrorKindModelInvocation, fmt.Sprintf("Model invocation failed: unexpected class label %d.", label))
	}
}

func (a *Adapter) predict(features types.TransactionFeatures) (label int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic occurred: %v", r)
		}
	}()

	scaled, err := a.scaler.Transform(features.Slice())
	if err != nil {
		return 0, fmt.Errorf("scale features: %w", err)
	}
	if len(scaled) != types.FeatureCount {
		return 0, fmt.Errorf("scaler returned %d features, expected %d", len(scaled), types.FeatureCount)
	}

	label, err = a.model.Predict(scaled)
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	return label, nil
}
