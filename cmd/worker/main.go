package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/adminkit/adminkit/internal/app"
	"github.com/adminkit/adminkit/internal/email"
	jobmetrics "github.com/adminkit/adminkit/internal/jobs"
	"github.com/adminkit/adminkit/internal/observability"
	"github.com/adminkit/adminkit/internal/platform/cache"
	"github.com/adminkit/adminkit/internal/platform/db"
	"github.com/adminkit/adminkit/internal/tokens"
	"github.com/adminkit/adminkit/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	location, err := cfg.Location()
	if err != nil {
		logger.Error("jobs timezone", slog.Any("error", err))
		os.Exit(1)
	}

	registry := jobs.NewRegistry(jobs.NewPGStore(pool), jobs.DefaultDefinitions(cfg.TokenPurgeCron), logger)
	if err := registry.Sync(ctx); err != nil {
		logger.Error("sync job definitions", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	tokenStore := tokens.NewPGStore(pool)
	purgeJob := jobs.NewTokenPurgeJob(tokenStore, cache.NewLocker(redisClient), logger, jobMetrics)
	revokeJob := jobs.NewRevokeDisabledJob(tokenStore, logger, jobMetrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPurgeExpiredTokens, Handler: purgeJob.Handle},
			{Type: jobs.TaskRevokeDisabledTokens, Handler: revokeJob.Handle},
		},
		Schedules: registry,
		Location:  location,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	renderer, err := email.NewRenderer(cfg.AppName, cfg.FrontendURL)
	if err != nil {
		logger.Error("init email renderer", slog.Any("error", err))
		os.Exit(1)
	}
	consumer := email.NewConsumer(cfg.AMQPURL, renderer, email.NewSMTPSender(cfg.SMTP()), logger)

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
