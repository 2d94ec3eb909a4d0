package rules

import "github.com/songzhibin97/sentinel/types"

// Conditions used by the default triage routing.
const (
	ConditionRejected   = "failed"
	ConditionFraudulent = "!failed && fraud"
	ConditionLegitimate = "!failed && !fraud"
)

// VerdictEnv builds the routing environment for a verdict. Every key is
// always present so compiled programs stay valid across verdicts.
func VerdictEnv(v types.Verdict) map[string]interface{} {
	errorKind := ""
	if v.Err != nil {
		errorKind = string(v.Err.Kind)
	}
	return map[string]interface{}{
		"failed":     v.Failed(),
		"fraud":      v.IsFraud(),
		"result":     string(v.Result),
		"error_kind": errorKind,
	}
}

// VerdictShapes returns one verdict of every shape the adapter can produce.
func VerdictShapes() []types.Verdict {
	shapes := []types.Verdict{types.FraudVerdict(), types.NotFraudVerdict()}
	for _, kind := range types.ErrorKinds {
		shapes = append(shapes, types.ErrorVerdict(kind, "sample"))
	}
	return shapes
}
