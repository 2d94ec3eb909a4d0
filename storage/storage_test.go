package storage

import (
	"time"

	"github.com/songzhibin97/sentinel/types"
)

// Helper function to create a sample evaluation
func newEvaluation(id uint64, rec types.Recommendation) types.WorkflowState {
	now := time.Now().UnixMilli()
	state := types.WorkflowState{
		ID:               id,
		TransactionInput: "0.0,1.0",
		Recommendation:   rec,
		Justification:    rec.Justify("Input must contain exactly 30 numerical values, got 2."),
		Path:             []string{"start", "triage", string(rec), "end"},
		CreatedAt:        now,
		CompletedAt:      now,
	}
	switch rec {
	case types.RecommendationApproved:
		v := types.NotFraudVerdict()
		state.Verdict = &v
	case types.RecommendationBlocked:
		v := types.FraudVerdict()
		state.Verdict = &v
	default:
		v := types.ErrorVerdict(types.ErrorKindInputShape, "Input must contain exactly 30 numerical values, got 2.")
		state.Verdict = &v
	}
	return state
}
