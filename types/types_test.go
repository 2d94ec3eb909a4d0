package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapterErrorIs(t *testing.T) {
	sentinels := map[ErrorKind]error{
		ErrorKindInputShape:      ErrInputShape,
		ErrorKindInputParse:      ErrInputParse,
		ErrorKindModelInvocation: ErrModelInvocation,
	}

	for _, kind := range ErrorKinds {
		err := fmt.Errorf("wrapped: %w", &AdapterError{Kind: kind, Message: "msg"})
		for other, sentinel := range sentinels {
			assert.Equal(t, kind == other, errors.Is(err, sentinel), "%s vs %s", kind, other)
		}
	}
}

func TestVerdictPredicates(t *testing.T) {
	assert.True(t, FraudVerdict().IsFraud())
	assert.False(t, NotFraudVerdict().IsFraud())
	assert.False(t, NotFraudVerdict().Failed())

	v := ErrorVerdict(ErrorKindInputParse, "bad")
	assert.True(t, v.Failed())
	assert.False(t, v.IsFraud())
}

func TestJustify(t *testing.T) {
	assert.Equal(t, JustificationApproved, RecommendationApproved.Justify("ignored"))
	assert.Equal(t, JustificationBlocked, RecommendationBlocked.Justify("ignored"))
	assert.Equal(t, "Transaction Rejected. Input must contain exactly 30 numerical values, got 29.",
		RecommendationRejected.Justify("Input must contain exactly 30 numerical values, got 29."))
	assert.False(t, Recommendation("maybe").Valid())
}

func TestWorkflowStateClone(t *testing.T) {
	v := ErrorVerdict(ErrorKindInputShape, "short")
	state := WorkflowState{ID: 7, Verdict: &v, Path: []string{"start", "triage"}}

	clone := state.Clone()
	clone.Path[0] = "changed"
	clone.Verdict.Err.Message = "changed"

	assert.Equal(t, "start", state.Path[0])
	assert.Equal(t, "short", state.Verdict.Err.Message)
}

func TestWorkflowStateJSON(t *testing.T) {
	state := WorkflowState{ID: 1<<63 + 5, TransactionInput: "1,2", Recommendation: RecommendationRejected, Path: []string{"start"}}

	data, err := json.Marshal(state)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":"9223372036854775813"`)
	assert.Contains(t, string(data), `"transaction_details":"1,2"`)
}

func TestFeatureIndex(t *testing.T) {
	i, ok := FeatureIndex("Amount")
	assert.True(t, ok)
	assert.Equal(t, FeatureCount-1, i)

	_, ok = FeatureIndex("V29")
	assert.False(t, ok)
}
