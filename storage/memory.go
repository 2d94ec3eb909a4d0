package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/songzhibin97/sentinel/types"
)

// MemoryStorage is an in-memory implementation of the Storage interface.
// When capacity is positive the oldest records are evicted first.
type MemoryStorage struct {
	evaluations map[uint64]types.WorkflowState
	order       []uint64
	capacity    int
	mu          sync.RWMutex
}

// NewMemoryStorage creates a new MemoryStorage. A capacity of zero or less
// keeps every record.
func NewMemoryStorage(capacity int) *MemoryStorage {
	return &MemoryStorage{
		evaluations: make(map[uint64]types.WorkflowState),
		capacity:    capacity,
	}
}

// SaveEvaluation saves an evaluation to memory.
func (s *MemoryStorage) SaveEvaluation(ctx context.Context, state types.WorkflowState) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.evaluations[state.ID]; !exists {
			s.order = append(s.order, state.ID)
		}
		s.evaluations[state.ID] = state.Clone()
		s.evict()
		return struct{}{}, nil
	})
	return err
}

// evict drops the oldest records beyond capacity. Callers hold the write lock.
func (s *MemoryStorage) evict() {
	if s.capacity <= 0 {
		return
	}
	for len(s.order) > s.capacity {
		delete(s.evaluations, s.order[0])
		s.order = s.order[1:]
	}
}

// GetEvaluation retrieves an evaluation from memory.
func (s *MemoryStorage) GetEvaluation(ctx context.Context, id uint64) (types.WorkflowState, error) {
	return withContext(ctx, func() (types.WorkflowState, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		state, ok := s.evaluations[id]
		if !ok {
			return types.WorkflowState{}, fmt.Errorf("%w: id=%d", ErrEvaluationNotFound, id)
		}
		return state.Clone(), nil
	})
}

// Len returns the number of stored evaluations.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.evaluations)
}
