package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adminkit/adminkit/cmd/adminkit/cli"
	"github.com/adminkit/adminkit/internal/app"
	"github.com/adminkit/adminkit/internal/auth"
	"github.com/adminkit/adminkit/internal/email"
	"github.com/adminkit/adminkit/internal/observability"
	"github.com/adminkit/adminkit/internal/platform/db"
	"github.com/adminkit/adminkit/internal/rbac"
	"github.com/adminkit/adminkit/internal/security"
	"github.com/adminkit/adminkit/internal/tokens"
	"github.com/adminkit/adminkit/internal/users"
	"github.com/adminkit/adminkit/jobs"
	"github.com/adminkit/adminkit/migrations"
)

const usage = `usage: adminkit [serve | migrate | jobs trigger <job> | jobs stats]`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"serve"}
	}
	switch args[0] {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger)
	case "jobs":
		err = jobsCommand(ctx, cfg, args[1:])
	default:
		err = errors.New(usage)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("adminkit", slog.String("command", args[0]), slog.Any("error", err))
		os.Exit(1)
	}
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	applied, err := db.Migrate(ctx, pool, migrations.FS)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", slog.Any("versions", applied))
	return nil
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	c := cli.NewJobsCLI(cfg.RedisAddr)
	defer c.Close()
	switch {
	case len(args) == 2 && args[0] == "trigger":
		info, err := c.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	case len(args) == 1 && args[0] == "stats":
		stats, err := c.InspectQueue()
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	default:
		return errors.New(usage)
	}
	return nil
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	codec, err := security.NewCodec(cfg.Security())
	if err != nil {
		return fmt.Errorf("init token codec: %w", err)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	if applied, err := db.Migrate(ctx, pool, migrations.FS); err != nil {
		return err
	} else if len(applied) > 0 {
		logger.Info("migrations applied", slog.Any("versions", applied))
	}

	metrics := observability.NewMetrics()

	tokenStore := tokens.NewPGStore(pool)
	userRepo := users.NewRepository(pool)
	userService := users.NewService(userRepo, logger)
	rbacService := rbac.NewService(rbac.NewRepository(pool), logger)

	publisher := email.NewPublisher(cfg.AMQPURL, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("amqp publisher close", slog.Any("error", err))
		}
	}()

	authService := auth.NewService(auth.Deps{
		Users:    userRepo,
		Loader:   userService,
		Tokens:   tokenStore,
		Codec:    codec,
		Mailer:   publisher,
		Logger:   logger,
		Observer: metrics,
	})
	// Runs before the publisher is closed.
	defer authService.Drain()

	guard := security.Authorizer{Logger: logger}.Guard()
	filter := security.NewFilter(codec, userService, tokenStore, logger, metrics)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	registry := jobs.NewRegistry(jobs.NewPGStore(pool), jobs.DefaultDefinitions(cfg.TokenPurgeCron), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		Filter:       filter,
		AuthHandler:  auth.NewHandler(logger, authService),
		UsersHandler: users.NewHandler(logger, userService, guard),
		RBACHandler:  rbac.NewHandler(logger, rbacService, guard),
		JobHandler:   jobs.NewHandler(registry, inspector, guard, logger),
		Metrics:      metrics,
		Ready:        pool.Ping,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
