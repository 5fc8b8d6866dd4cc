package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"itemwatch/internal/alert"
	"itemwatch/internal/analytics"
	"itemwatch/internal/cache"
	"itemwatch/internal/config"
	cronrunner "itemwatch/internal/cron"
	"itemwatch/internal/db"
	"itemwatch/internal/logger"
	"itemwatch/internal/notify"
	gormrepository "itemwatch/internal/repository/gorm"
	"itemwatch/internal/scheduler"
	"itemwatch/internal/service"
	"itemwatch/internal/source"
)

func main() {
	cfgPath := os.Getenv("IW_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("IW_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := gormrepository.New(dbConn.Gorm)
	priceCache := cache.New(ctx, cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, logger)
	defer priceCache.Close()

	sourceClient := source.NewClient(&http.Client{Timeout: cfg.Source.Timeout}, cfg.Source)
	connector := &source.Connector{
		Fetcher: sourceClient,
		Repo:    store,
		Logger:  logger,
		Config:  cfg.Source,
	}

	engine := &analytics.Engine{
		Store:  store,
		Cache:  priceCache,
		Logger: logger,
		Config: cfg.Analytics,
		TTL:    cfg.Cache,
	}

	queue := notify.NewQueue(cfg.Notify.QueueSize, &notify.LogNotifier{Logger: logger.Named("notify")}, logger)
	go queue.Run(ctx)

	evaluator := alert.NewEvaluator(store, queue, logger, cfg.Alerts)
	statsSvc := service.NewStatsService(store, engine, logger)

	if cfg.Scheduler.Enabled {
		sched := &scheduler.Scheduler{
			Runner:    cronrunner.New(logger, ctx),
			Repo:      store,
			Connector: connector,
			Stats:     statsSvc,
			Alerts:    evaluator,
			Analytics: engine,
			Queue:     queue,
			Logger:    logger,
			Config:    cfg.Scheduler,
		}
		if err := sched.Register(); err != nil {
			logger.Fatal("scheduler registration failed", zap.Error(err))
		}
		sched.Start()
		defer sched.Stop()
	}

	logger.Info("itemwatch started",
		zap.String("env", cfg.App.Env),
		zap.Int("ingest_period_min", cfg.Scheduler.IngestPeriodMin),
		zap.String("currency", source.CurrencyName(cfg.Source.Currency)),
	)

	<-ctx.Done()
	logger.Info("shutting down")
}
