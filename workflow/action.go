package workflow

import "github.com/songzhibin97/sentinel/types"

// Triager classifies a raw transaction. Implementations must be safe for
// concurrent use and must report failures as error verdicts.
type Triager interface {
	Evaluate(raw string) types.Verdict
}

// TriagerFunc is a function adapter for Triager.
type TriagerFunc func(raw string) types.Verdict

// Evaluate implements the Triager interface.
func (f TriagerFunc) Evaluate(raw string) types.Verdict {
	return f(raw)
}
