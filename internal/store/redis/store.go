package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/eliwatch/internal/domain"
)

// DefaultResultTTL is the default TTL for stored runs and results (7 days)
const DefaultResultTTL = 7 * 24 * time.Hour

// ErrNotFound is returned when a key does not exist
var ErrNotFound = errors.New("not found")

// Store persists validation runs in Redis
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a new Redis store. A non-positive ttl uses DefaultResultTTL.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &Store{
		client: client,
		ttl:    ttl,
	}
}

// SaveRun stores the run document and one key per source result in a
// single transaction. The ID set is replaced so it only lists this run.
func (s *Store) SaveRun(ctx context.Context, run *domain.Run) error {
	if run == nil {
		return errors.New("nil run")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, LatestRunKey(), data, s.ttl)
	pipe.Del(ctx, AllResultsKey())

	for i := range run.Results {
		res := &run.Results[i]
		b, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("failed to marshal result %s: %w", res.ID, err)
		}
		pipe.Set(ctx, ResultKey(res.ID), b, s.ttl)
		pipe.SAdd(ctx, AllResultsKey(), res.ID)
	}
	if len(run.Results) > 0 {
		pipe.Expire(ctx, AllResultsKey(), s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetLatestRun returns the last saved run, or ErrNotFound.
func (s *Store) GetLatestRun(ctx context.Context) (*domain.Run, error) {
	data, err := s.client.Get(ctx, LatestRunKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	var run domain.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

// GetResult retrieves a source result from Redis by ID
func (s *Store) GetResult(ctx context.Context, id string) (*domain.SourceResult, error) {
	data, err := s.client.Get(ctx, ResultKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("result %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	var res domain.SourceResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &res, nil
}
