package rules

import (
	"sync"
	"testing"

	"github.com/songzhibin97/sentinel/types"
	"github.com/stretchr/testify/assert"
)

// TestExprEvaluator tests the ExprEvaluator implementation.
func TestExprEvaluator(t *testing.T) {
	evaluator := NewExprEvaluator()

	tests := []struct {
		name       string
		expression string
		context    map[string]interface{}
		wantResult bool
		wantErr    bool
		errMsg     string
	}{
		{
			name:       "Valid true expression",
			expression: "amount > 100",
			context:    map[string]interface{}{"amount": 149.62},
			wantResult: true,
		},
		{
			name:       "Valid false expression",
			expression: "amount < 100",
			context:    map[string]interface{}{"amount": 149.62},
			wantResult: false,
		},
		{
			name:       "Non-boolean result",
			expression: "count + 5",
			context:    map[string]interface{}{"count": 25},
			wantResult: false,
			wantErr:    true,
			errMsg:     "expression 'count + 5' did not evaluate to a boolean, got int",
		},
		{
			name:       "Invalid expression",
			expression: "count >>> 18",
			context:    map[string]interface{}{"count": 25},
			wantResult: false,
			wantErr:    true,
			errMsg:     "unexpected token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(tt.expression, tt.context)
			if tt.wantErr {
				assert.Error(t, err, "Evaluate() should return an error")
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg, "Error message should match")
				}
				assert.Equal(t, tt.wantResult, result, "Evaluate() result should match even with error")
			} else {
				assert.NoError(t, err, "Evaluate() should not return an error")
				assert.Equal(t, tt.wantResult, result, "Evaluate() result should match")
			}
		})
	}

	t.Run("Context is not modified", func(t *testing.T) {
		context := map[string]interface{}{"failed": false}
		_, err := evaluator.Evaluate("!failed", context)
		assert.NoError(t, err)
		assert.Len(t, context, 1)
	})

	t.Run("Concurrent evaluation", func(t *testing.T) {
		var wg sync.WaitGroup
		numGoroutines := 100
		expr := "value > 0"
		context := map[string]interface{}{"value": 42}

		wg.Add(numGoroutines)
		for i := 0; i < numGoroutines; i++ {
			go func() {
				defer wg.Done()
				result, err := evaluator.Evaluate(expr, context)
				assert.NoError(t, err)
				assert.True(t, result)
			}()
		}
		wg.Wait()
	})
}

// TestDefaultConditions checks that every verdict shape matches exactly one
// of the default triage conditions.
func TestDefaultConditions(t *testing.T) {
	evaluator := NewExprEvaluator()
	conditions := []string{ConditionRejected, ConditionFraudulent, ConditionLegitimate}

	for _, v := range VerdictShapes() {
		env := VerdictEnv(v)
		var matched []string
		for _, c := range conditions {
			ok, err := evaluator.Evaluate(c, env)
			assert.NoError(t, err)
			if ok {
				matched = append(matched, c)
			}
		}
		assert.Len(t, matched, 1, "verdict %+v matched %v", v, matched)
	}

	env := VerdictEnv(types.FraudVerdict())
	ok, err := evaluator.Evaluate(ConditionFraudulent, env)
	assert.NoError(t, err)
	assert.True(t, ok)

	env = VerdictEnv(types.ErrorVerdict(types.ErrorKindInputParse, "bad"))
	assert.Equal(t, "input_parse", env["error_kind"])
	ok, err = evaluator.Evaluate(ConditionRejected, env)
	assert.NoError(t, err)
	assert.True(t, ok)
}

// BenchmarkEvaluate benchmarks the performance of Evaluate with caching.
func BenchmarkEvaluate(b *testing.B) {
	evaluator := NewExprEvaluator()
	context := VerdictEnv(types.NotFraudVerdict())

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = evaluator.Evaluate(ConditionLegitimate, context)
	}
}
