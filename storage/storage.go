package storage

import (
	"context"
	"errors"

	"github.com/songzhibin97/sentinel/types"
)

// ErrEvaluationNotFound is returned when no audit record exists for an ID.
var ErrEvaluationNotFound = errors.New("evaluation not found")

// Storage persists the final state of evaluations for audit.
type Storage interface {
	// SaveEvaluation saves the final state of an evaluation.
	SaveEvaluation(ctx context.Context, state types.WorkflowState) error

	// GetEvaluation retrieves an evaluation by ID.
	GetEvaluation(ctx context.Context, id uint64) (types.WorkflowState, error)
}

// withContext is a standalone generic helper function.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
		return fn()
	}
}
