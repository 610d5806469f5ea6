package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MrSnakeDoc/eliwatch/internal/batch"
	"github.com/MrSnakeDoc/eliwatch/internal/config"
	"github.com/MrSnakeDoc/eliwatch/internal/domain"
	"github.com/MrSnakeDoc/eliwatch/internal/evaluator"
	"github.com/MrSnakeDoc/eliwatch/internal/fetch"
	"github.com/MrSnakeDoc/eliwatch/internal/index"
	"github.com/MrSnakeDoc/eliwatch/internal/logger"
	"github.com/MrSnakeDoc/eliwatch/internal/sources/eli"
)

// ErrRunInProgress is returned by RunOnce while another run is active.
var ErrRunInProgress = errors.New("validation run already in progress")

// RunStore persists finished runs. Implemented by the redis store.
type RunStore interface {
	SaveRun(ctx context.Context, run *domain.Run) error
	PruneResults(ctx context.Context, keep []string) (int, error)
}

// RunnerConfig groups the settings of a validation run.
type RunnerConfig struct {
	SourcesDir   string
	OutputFile   string        // optional JSON result list
	Interval     time.Duration // between two periodic runs
	BatchTimeout time.Duration
	Concurrency  int
	TilePace     time.Duration
	Fetch        fetch.Config
}

// RunnerConfigFrom extracts the run settings from the process config.
func RunnerConfigFrom(cfg *config.Config) RunnerConfig {
	return RunnerConfig{
		SourcesDir:   cfg.SourcesDir,
		OutputFile:   cfg.OutputFile,
		Interval:     cfg.RunInterval,
		BatchTimeout: cfg.BatchTimeout,
		Concurrency:  cfg.MaxConcurrency,
		TilePace:     cfg.TilePaceDelay,
		Fetch: fetch.Config{
			Timeout:       cfg.HTTPTimeout,
			MaxBodyBytes:  cfg.MaxBodyBytes,
			UserAgent:     cfg.UserAgent,
			HostInterval:  cfg.HostMinInterval,
			SkipTLSVerify: cfg.SkipTLSVerify,
		},
	}
}

// Runner validates the whole catalog periodically and on demand.
type Runner struct {
	cfg           RunnerConfig
	policy        *config.Policy
	store         RunStore // nil when persistence is disabled
	index         *index.MemoryIndex
	logger        logger.Logger
	stopCh        chan struct{}
	stopOnce      sync.Once
	manualTrigger <-chan struct{}
	busy          sync.Mutex
}

// NewRunner creates a new runner. store may be nil.
func NewRunner(
	cfg RunnerConfig,
	policy *config.Policy,
	store RunStore,
	idx *index.MemoryIndex,
	log logger.Logger,
	manualTrigger <-chan struct{},
) *Runner {
	if policy == nil {
		policy = config.DefaultPolicy()
	}
	return &Runner{
		cfg:           cfg,
		policy:        policy,
		store:         store,
		index:         idx,
		logger:        log,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start runs a first validation in the background, then one every
// Interval and one per manual trigger. It returns immediately.
func (r *Runner) Start(ctx context.Context) error {
	if r.cfg.Interval <= 0 {
		return fmt.Errorf("run interval must be > 0, got %v", r.cfg.Interval)
	}

	go func() {
		r.runLogged(ctx, "startup")

		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.runLogged(ctx, "schedule")
			case <-r.manualTrigger:
				r.logger.Info("manual validation run triggered")
				r.runLogged(ctx, "manual")
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the periodic loop. A run in progress finishes on its own
// context.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *Runner) runLogged(ctx context.Context, reason string) {
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("validation run failed",
			logger.String("reason", reason),
			logger.Error(err))
	}
}

// RunOnce loads the catalog, validates every source and publishes the
// run. Persistence and the output file are best effort once the run has
// been published to the index.
func (r *Runner) RunOnce(ctx context.Context) (*domain.Run, error) {
	if !r.busy.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.busy.Unlock()

	r.index.SetRunning(true)
	defer r.index.SetRunning(false)

	sources, err := eli.ReadCatalog(r.cfg.SourcesDir, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	// One cache per run: results must reflect the current state of remote
	// services, never a previous run.
	cache := fetch.New(r.cfg.Fetch, nil, r.logger)
	eval := evaluator.New(cache, r.policy, r.cfg.TilePace, r.logger)
	run := batch.NewCoordinator(eval, r.cfg.Concurrency, r.cfg.BatchTimeout, r.logger).Run(ctx, sources)

	stats := cache.Stats()
	r.logger.Info("fetch cache statistics",
		logger.Int64("requests", stats.Requests),
		logger.Int64("hits", stats.Hits),
		logger.Int("hosts", stats.Hosts))

	r.index.UpdateRun(run)

	if r.store != nil {
		r.persist(ctx, run)
	}
	if r.cfg.OutputFile != "" {
		if err := WriteResults(r.cfg.OutputFile, run.Results); err != nil {
			r.logger.Warn("failed to write output file",
				logger.String("path", r.cfg.OutputFile),
				logger.Error(err))
		} else {
			r.logger.Info("results written",
				logger.String("path", r.cfg.OutputFile),
				logger.Int("count", len(run.Results)))
		}
	}
	return run, nil
}

func (r *Runner) persist(ctx context.Context, run *domain.Run) {
	// The batch may have consumed ctx's deadline; saving gets its own.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := r.store.SaveRun(ctx, run); err != nil {
		r.logger.Warn("failed to save run to redis", logger.Error(err))
		return
	}
	keep := make([]string, len(run.Results))
	for i := range run.Results {
		keep[i] = run.Results[i].ID
	}
	deleted, err := r.store.PruneResults(ctx, keep)
	if err != nil {
		r.logger.Warn("failed to prune stale results", logger.Error(err))
		return
	}
	r.logger.Info("run saved to redis", logger.Int("pruned", deleted))
}

// WriteResults writes the result list as JSON. The file is replaced
// atomically so readers never see a partial list.
func WriteResults(path string, results []domain.SourceResult) error {
	if results == nil {
		results = []domain.SourceResult{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".eliwatch-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
