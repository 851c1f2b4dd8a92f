package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/app"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/macros"
	macroshttp "github.com/Jayes-h/fintech-process-automation-sub001/internal/macros/http"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/mis"
	mishttp "github.com/Jayes-h/fintech-process-automation-sub001/internal/mis/http"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/observability"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/platform/cache"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/platform/db"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/portal"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/skumap"
	skumaphttp "github.com/Jayes-h/fintech-process-automation-sub001/internal/skumap/http"
	"github.com/Jayes-h/fintech-process-automation-sub001/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// The snapshot cache is optional: without Redis every run reads Postgres.
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

	registry, err := loadRegistry(cfg)
	if err != nil {
		logger.Error("load portal config", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	skuRepo := skumap.NewRepository(dbpool)
	resolver := skumap.NewResolver(skuRepo, snapshotCache, skumap.ResolverOptions{
		CaseInsensitive: cfg.SKUCaseInsensitive,
		Logger:          logger,
	})
	skuService := skumap.NewService(skuRepo, resolver, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	macrosService := macros.NewService(
		macros.NewPipeline(registry, resolver),
		macros.NewRepository(dbpool),
		logger,
		macros.ServiceOptions{
			Storage:    macros.NewDirStorage(cfg.StorageDir),
			Enqueuer:   jobClient,
			Recorder:   metrics,
			StaleAfter: cfg.MacrosStaleAfter,
		},
	)
	misService := mis.NewService(mis.NewRepository(dbpool), logger, mis.ServiceOptions{
		DefaultPolicy: cfg.MISPolicy(),
		Recorder:      metrics,
	})

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		MacrosHandler: macroshttp.NewHandler(logger, macrosService, cfg.MaxUploadBytes),
		SKUMapHandler: skumaphttp.NewHandler(logger, skuService, cfg.MaxUploadBytes),
		MISHandler:    mishttp.NewHandler(logger, misService, cfg.MaxUploadBytes),
		JobHandler:    jobs.NewHandler(inspector, logger),
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func loadRegistry(cfg *app.Config) (*portal.Registry, error) {
	if cfg.PortalConfigPath != "" {
		return portal.LoadRegistry(cfg.PortalConfigPath)
	}
	return portal.DefaultRegistry()
}
