package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/app"
	jobmetrics "github.com/Jayes-h/fintech-process-automation-sub001/internal/jobs"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/macros"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/observability"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/platform/cache"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/platform/db"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/portal"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/skumap"
	"github.com/Jayes-h/fintech-process-automation-sub001/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The queue itself needs Redis; the client here only backs the snapshot cache.
	var snapshotCache *skumap.SnapshotCache
	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Warn("redis unavailable, sku cache disabled", slog.Any("error", err))
	} else {
		snapshotCache = skumap.NewSnapshotCache(redisClient, cfg.SKUCacheTTL)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	var registry *portal.Registry
	if cfg.PortalConfigPath != "" {
		registry, err = portal.LoadRegistry(cfg.PortalConfigPath)
	} else {
		registry, err = portal.DefaultRegistry()
	}
	if err != nil {
		logger.Error("load portal config", slog.Any("error", err))
		os.Exit(1)
	}

	resolver := skumap.NewResolver(
		skumap.NewRepository(pool),
		snapshotCache,
		skumap.ResolverOptions{CaseInsensitive: cfg.SKUCaseInsensitive, Logger: logger},
	)

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(nil)

	macrosService := macros.NewService(
		macros.NewPipeline(registry, resolver),
		macros.NewRepository(pool),
		logger,
		macros.ServiceOptions{
			Storage:    macros.NewDirStorage(cfg.StorageDir),
			Recorder:   metrics,
			StaleAfter: cfg.MacrosStaleAfter,
		},
	)
	macrosJob := macros.NewJob(macrosService, logger, jobMetrics)
	warmupJob := jobs.NewSKUWarmupJob(resolver, pool, logger, jobMetrics)

	warmupTask, err := jobs.NewSKUSnapshotWarmupTask("")
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	var cron []jobs.CronRegistration
	if cfg.SKUWarmupCron != "" {
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.SKUWarmupCron,
			Task:    warmupTask,
			Options: []asynq.Option{asynq.MaxRetry(3)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskMacrosGenerate, Handler: macrosJob.Handle},
			{Type: jobs.TaskSKUSnapshotWarmup, Handler: warmupJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
