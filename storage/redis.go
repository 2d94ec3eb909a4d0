package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/songzhibin97/sentinel/types"
)

const evaluationPrefix = "evaluation:"

// RedisStorage is a Redis-backed implementation of the Storage interface.
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOptions configures the Redis connection and record retention.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	IdleTimeout  time.Duration
	// TTL expires audit records; zero keeps them forever.
	TTL time.Duration
}

// NewRedisStorage connects to Redis and verifies the connection.
func NewRedisStorage(opts RedisOptions) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		IdleTimeout:  opts.IdleTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStorageFromClient(client, opts.TTL), nil
}

// NewRedisStorageFromClient wraps an existing client.
func NewRedisStorageFromClient(client *redis.Client, ttl time.Duration) *RedisStorage {
	return &RedisStorage{client: client, ttl: ttl}
}

func evaluationKey(id uint64) string {
	return fmt.Sprintf("%s%d", evaluationPrefix, id)
}

// SaveEvaluation saves an evaluation to Redis as JSON.
func (s *RedisStorage) SaveEvaluation(ctx context.Context, state types.WorkflowState) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		data, err := json.Marshal(state)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to marshal evaluation %d: %w", state.ID, err)
		}
		key := evaluationKey(state.ID)
		if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
			return struct{}{}, fmt.Errorf("failed to set %s in Redis: %w", key, err)
		}
		return struct{}{}, nil
	})
	return err
}

// GetEvaluation retrieves an evaluation from Redis.
func (s *RedisStorage) GetEvaluation(ctx context.Context, id uint64) (types.WorkflowState, error) {
	return withContext(ctx, func() (types.WorkflowState, error) {
		key := evaluationKey(id)
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return types.WorkflowState{}, fmt.Errorf("%w: key=%s", ErrEvaluationNotFound, key)
		} else if err != nil {
			return types.WorkflowState{}, fmt.Errorf("failed to get %s from Redis: %w", key, err)
		}

		var state types.WorkflowState
		if err := json.Unmarshal(data, &state); err != nil {
			return types.WorkflowState{}, fmt.Errorf("failed to unmarshal %s: %w", key, err)
		}
		return state, nil
	})
}

// Ping checks the Redis connection.
func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
