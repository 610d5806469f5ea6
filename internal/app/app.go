package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/eliwatch/internal/config"
	"github.com/MrSnakeDoc/eliwatch/internal/httpserver"
	"github.com/MrSnakeDoc/eliwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/eliwatch/internal/index"
	"github.com/MrSnakeDoc/eliwatch/internal/logger"
	"github.com/MrSnakeDoc/eliwatch/internal/redis"
	"github.com/MrSnakeDoc/eliwatch/internal/scheduler"
	redisstore "github.com/MrSnakeDoc/eliwatch/internal/store/redis"
	"github.com/MrSnakeDoc/eliwatch/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	memIndex    *index.MemoryIndex
	runner      *scheduler.Runner
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		loggerClient.Errorf("Failed to load check policy: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("check policy loaded",
		logger.String("file", cfg.PolicyFile),
		logger.Int("stale_after_years", policy.StaleAfterYears),
		logger.Int("ignored", len(policy.Ignore)))

	memIndex := index.NewMemoryIndex()

	// Redis is optional: without it results only live in memory
	var redisClient *goredis.Client
	var store *redisstore.Store
	if cfg.RedisEnabled() {
		redisClient = connectRedis(cfg, loggerClient)
	}
	if redisClient != nil {
		store = redisstore.NewStore(redisClient, cfg.RedisResultTTL)
	}
	if store != nil && !cfg.RunOnce {

		// Serve the last persisted run until the first run of this process finishes
		syncer := scheduler.NewRedisSyncer(store, memIndex, loggerClient)
		if err := syncer.Sync(context.Background()); err != nil {
			loggerClient.Warn("failed to sync from redis on startup",
				logger.Error(err))
		}
	}

	runTrigger := make(chan struct{}, 1)

	var runStore scheduler.RunStore
	if store != nil {
		runStore = store
	}
	runner := scheduler.NewRunner(
		scheduler.RunnerConfigFrom(cfg),
		policy,
		runStore,
		memIndex,
		loggerClient,
		runTrigger,
	)

	d := deps.Deps{
		Logger:       loggerClient,
		StartTime:    time.Now(),
		Version:      version.Version,
		Commit:       version.Commit,
		BuildDate:    version.BuildDate,
		GoVersion:    version.GoVersion,
		TimeNow:      time.Now,
		AllowedHosts: cfg.AllowedHosts,
		AllowedCIDRS: cfg.AllowedCIDRS,
		TrustProxy:   cfg.TrustProxy,
		SourcesDir:   cfg.SourcesDir,
		RedisClient:  redisClient,
		MemoryIndex:  memIndex,
		RunTrigger:   runTrigger,
	}

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      httpserver.New(cfg, loggerClient, d),
		redisClient: redisClient,
		memIndex:    memIndex,
		runner:      runner,
	}
}

func connectRedis(cfg *config.Config, loggerClient logger.Logger) *goredis.Client {
	client, err := redis.New(redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		loggerClient.Warn("redis unavailable, results will not be persisted",
			logger.Error(err))
		return nil
	}
	return client
}

func (a *App) Run() error {
	a.logger.Info(version.String())
	defer func() { _ = a.logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.cfg.RunOnce {
		return a.runOnce(ctx)
	}

	a.logger.Infof("🚀 Starting eliwatch %s on %s", version.Version, a.cfg.ListenPort)

	if err := a.runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start runner: %w", err)
	}
	a.logger.Info("validation runner started",
		logger.String("sources", a.cfg.SourcesDir),
		logger.Duration("interval", a.cfg.RunInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	a.runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ eliwatch stopped cleanly")
	return nil
}

// runOnce performs a single validation run for batch use (cron, CI) and
// exits. Results go to OUTPUT_FILE when set.
func (a *App) runOnce(ctx context.Context) error {
	run, err := a.runner.RunOnce(ctx)
	if err != nil {
		return err
	}
	for aspect, counts := range run.Summarize() {
		a.logger.Info("run summary",
			logger.String("aspect", aspect),
			logger.Int("good", counts["good"]),
			logger.Int("warning", counts["warning"]),
			logger.Int("error", counts["error"]))
	}
	return nil
}
