package scheduler

import (
	"context"
	"errors"

	"github.com/MrSnakeDoc/eliwatch/internal/domain"
	"github.com/MrSnakeDoc/eliwatch/internal/index"
	"github.com/MrSnakeDoc/eliwatch/internal/logger"
	redisstore "github.com/MrSnakeDoc/eliwatch/internal/store/redis"
)

// RunLoader reads the last persisted run.
type RunLoader interface {
	GetLatestRun(ctx context.Context) (*domain.Run, error)
}

// RedisSyncer seeds the memory index with the last persisted run on startup
type RedisSyncer struct {
	store  RunLoader
	index  *index.MemoryIndex
	logger logger.Logger
}

// NewRedisSyncer creates a new Redis syncer
func NewRedisSyncer(
	store RunLoader,
	idx *index.MemoryIndex,
	log logger.Logger,
) *RedisSyncer {
	return &RedisSyncer{
		store:  store,
		index:  idx,
		logger: log,
	}
}

// Sync loads the latest run from Redis and publishes it
func (rs *RedisSyncer) Sync(ctx context.Context) error {
	rs.logger.Info("syncing latest run from redis to memory")

	run, err := rs.store.GetLatestRun(ctx)
	if errors.Is(err, redisstore.ErrNotFound) {
		rs.logger.Info("no run found in redis")
		return nil
	}
	if err != nil {
		return err
	}

	rs.index.UpdateRun(run)

	rs.logger.Info("synced run from redis",
		logger.Int("results", len(run.Results)),
		logger.String("finished_at", run.FinishedAt.Format("2006-01-02 15:04:05")))

	return nil
}
