package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marksync/internal/config"
	"github.com/MrSnakeDoc/marksync/internal/enrich"
	"github.com/MrSnakeDoc/marksync/internal/httpserver"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/index"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/notify"
	"github.com/MrSnakeDoc/marksync/internal/reconcile"
	"github.com/MrSnakeDoc/marksync/internal/redis"
	"github.com/MrSnakeDoc/marksync/internal/render"
	"github.com/MrSnakeDoc/marksync/internal/scheduler"
	"github.com/MrSnakeDoc/marksync/internal/sources"
	"github.com/MrSnakeDoc/marksync/internal/sources/api"
	"github.com/MrSnakeDoc/marksync/internal/sources/export"
	"github.com/MrSnakeDoc/marksync/internal/state"
	redisstore "github.com/MrSnakeDoc/marksync/internal/store/redis"
	"github.com/MrSnakeDoc/marksync/internal/utils"
	"github.com/MrSnakeDoc/marksync/internal/version"
)

// App owns every long-lived component of a sync process. Opening it takes
// the state lock, so at most one App per state file exists at a time.
type App struct {
	cfg         *config.Config
	logger      logger.Logger
	lock        *state.Lock
	store       *state.FileStore
	engine      *reconcile.Engine
	runner      *scheduler.SyncRunner
	memIndex    *index.MemoryIndex
	redisClient *goredis.Client
	linkCache   *redisstore.Store
	syncTrigger chan struct{}
}

// Open wires the store, sources, enrichment and consumers. ctx only bounds
// startup (the Redis handshake). The caller must Close the returned App to
// release the state lock.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	cfg.RequireSource()

	lock, err := state.AcquireLock(cfg.StateFile)
	if err != nil {
		if errors.Is(err, state.ErrLocked) {
			return nil, fmt.Errorf("another marksync process holds %s.lock: %w", cfg.StateFile, err)
		}
		return nil, err
	}
	a := &App{cfg: cfg, logger: log, lock: lock, syncTrigger: make(chan struct{}, 1)}

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	store, err := state.NewFileStore(cfg.StateFile, state.Options{
		KeepBackups: cfg.KeepBackups,
		Logger:      log,
	})
	if err != nil {
		return err
	}
	a.store = store

	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		return err
	}

	if cfg.RedisEnabled() {
		// The cache is optional: run without it rather than fail.
		client, err := redis.New(ctx, redis.ConnectOptions{
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
		}, log)
		if err != nil {
			log.Warn("redis unavailable, link cache disabled", logger.Error(err))
		} else {
			a.redisClient = client
			a.linkCache = redisstore.NewStore(client, cfg.CacheTTL)
		}
	}

	retry := utils.RetryPolicy{
		MaxAttempts:    cfg.EnrichMaxAttempts,
		InitialBackoff: cfg.EnrichInitialBackoff,
		MaxBackoff:     cfg.EnrichMaxBackoff,
	}

	var enricher reconcile.Enricher
	if cfg.Enrich {
		opts := enrich.Options{
			ResolveLinks:   cfg.ResolveLinks,
			Retry:          retry,
			AttemptTimeout: cfg.EnrichAttemptTimeout,
			UserAgent:      "marksync/" + version.Version,
			Logger:         log,
		}
		if a.linkCache != nil {
			opts.Cache = a.linkCache
		}
		enricher = enrich.New(opts)
	}

	a.engine = reconcile.NewEngine(store, reconcile.Options{
		Rules:            engineRules(rules),
		FetchFromFolders: cfg.FetchFromFolders,
		Enricher:         enricher,
		Concurrency:      cfg.Concurrency,
		MaxFailedRuns:    cfg.MaxFailedRuns,
		Logger:           log,
	})

	fetcher, err := newFetcher(cfg, retry, log)
	if err != nil {
		return err
	}

	consumers, err := newConsumers(cfg, retry, log)
	if err != nil {
		return err
	}

	a.memIndex = index.NewMemoryIndex()
	a.runner = scheduler.NewSyncRunner(a.engine, fetcher, a.memIndex, consumers, log, cfg.SyncInterval, a.syncTrigger)
	return nil
}

func engineRules(r *config.Rules) reconcile.Rules {
	return reconcile.Rules{Folders: r.Folders, Categorizer: r.Categorizer()}
}

func newFetcher(cfg *config.Config, retry utils.RetryPolicy, log logger.Logger) (sources.Fetcher, error) {
	if cfg.SourceFile != "" {
		log.Info("using export file source", logger.String("file", cfg.SourceFile))
		return export.NewLoader(cfg.SourceFile, export.DefaultPageSize), nil
	}
	log.Info("using api source", logger.String("url", cfg.APIURL))
	return api.NewClient(api.Options{
		BaseURL:        cfg.APIURL,
		Token:          cfg.APIToken,
		IncludeFolders: cfg.FetchFromFolders,
		PageSize:       cfg.APIPageSize,
		Retry:          retry,
		Logger:         log,
	})
}

func newConsumers(cfg *config.Config, retry utils.RetryPolicy, log logger.Logger) ([]scheduler.Consumer, error) {
	var consumers []scheduler.Consumer
	if cfg.OutputDir != "" {
		md, err := render.NewMarkdown(cfg.OutputDir, log)
		if err != nil {
			return nil, err
		}
		consumers = append(consumers, md)
	}
	if cfg.WebhookURL != "" {
		wh, err := notify.NewWebhook(notify.Options{URL: cfg.WebhookURL, Retry: retry, Logger: log})
		if err != nil {
			return nil, err
		}
		consumers = append(consumers, wh)
	}
	return consumers, nil
}

// RunOnce performs a single sync. Cancelling ctx interrupts enrichment; what
// finished is still committed.
func (a *App) RunOnce(ctx context.Context, dryRun bool) (*reconcile.Result, error) {
	return a.runner.Sync(ctx, reconcile.RunOptions{DryRun: dryRun})
}

// Serve runs the daemon until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.cfg
	a.logger.Infof("🚀 Starting marksync v%s on %s", version.Version, cfg.ListenPort)
	a.logger.Infof("marksync %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	// Refuse to start on top of a corrupt state file
	if err := scheduler.NewStateSyncer(a.store, a.memIndex, a.logger).Sync(ctx); err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	d := deps.Deps{
		Logger:         a.logger,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		TimeNow:        time.Now,
		AllowedHosts:   cfg.AllowedHosts,
		AllowedCIDRS:   cfg.AllowedCIDRS,
		TrustProxy:     cfg.TrustProxy,
		StateFile:      cfg.StateFile,
		LinkCache:      a.linkCache,
		MemoryIndex:    a.memIndex,
		SyncTrigger:    a.syncTrigger,
		SyncRateBurst:  cfg.SyncRateBurst,
		SyncRatePerMin: cfg.SyncRatePerMin,
	}
	server := httpserver.New(cfg, a.logger, d)
	if err := server.Listen(); err != nil {
		return err
	}

	// Every exit path below goes through the same ordered shutdown: stop the
	// producers of runs first, wait for the in-flight run, then the server.
	ctx, cancel := context.WithCancel(ctx)
	var stops []func()
	defer func() {
		cancel()
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
		a.logger.Info("✅ marksync stopped")
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()
	stops = append(stops, func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer stop()
		if err := server.Stop(shutdownCtx); err != nil {
			a.logger.Warn("failed to stop server", logger.Error(err))
		}
	})

	// Start sync runner (syncs once and starts periodic refresh)
	stops = append(stops, a.runner.Stop)
	if err := a.runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sync runner: %w", err)
	}
	a.logger.Info("sync runner started",
		logger.Duration("interval", cfg.SyncInterval))

	if cfg.KeepBackups {
		pruner := scheduler.NewBackupPruner(a.store, a.logger, cfg.PruneInterval, cfg.BackupRetention)
		if err := pruner.Start(ctx); err != nil {
			return fmt.Errorf("failed to start backup pruner: %w", err)
		}
		stops = append(stops, pruner.Stop)
		a.logger.Info("backup pruner started",
			logger.Duration("interval", cfg.PruneInterval))
	}

	if cfg.RulesFile != "" && cfg.WatchRules {
		watcher := scheduler.NewRulesWatcher(cfg.RulesFile, func(r *config.Rules) {
			a.engine.SetRules(engineRules(r))
		}, a.syncTrigger, a.logger)
		if err := watcher.Start(ctx); err != nil {
			a.logger.Warn("rules watcher disabled", logger.Error(err))
		} else {
			stops = append(stops, watcher.Stop)
		}
	}

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}
	return nil
}

// Close releases Redis and the state lock.
func (a *App) Close() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}
	if err := a.lock.Release(); err != nil {
		a.logger.Warnf("failed to release state lock: %v", err)
	}
}
