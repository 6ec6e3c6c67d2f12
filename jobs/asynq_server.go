package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Worker wraps the Asynq server and the periodic task manager.
type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	manager *asynq.PeriodicTaskManager
	logger  *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Handlers    []TaskHandler
	Concurrency int
	// Schedules feeds the periodic task manager; nil disables scheduling.
	Schedules    asynq.PeriodicTaskConfigProvider
	SyncInterval time.Duration
	Location     *time.Location
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			cfg.Logger.Error("task failed", slog.String("type", task.Type()), slog.Any("error", err))
		}),
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var manager *asynq.PeriodicTaskManager
	if cfg.Schedules != nil {
		if cfg.SyncInterval <= 0 {
			cfg.SyncInterval = time.Minute
		}
		if cfg.Location == nil {
			cfg.Location = time.UTC
		}
		var err error
		manager, err = asynq.NewPeriodicTaskManager(asynq.PeriodicTaskManagerOpts{
			RedisConnOpt:               cfg.RedisOpts,
			PeriodicTaskConfigProvider: cfg.Schedules,
			SyncInterval:               cfg.SyncInterval,
			SchedulerOpts:              &asynq.SchedulerOpts{Location: cfg.Location},
		})
		if err != nil {
			return nil, err
		}
	}

	return &Worker{server: srv, mux: mux, manager: manager, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	if w.manager != nil {
		if err := w.manager.Start(); err != nil {
			w.server.Shutdown()
			return err
		}
	}
	w.logger.Info("worker started")
	<-ctx.Done()
	if w.manager != nil {
		w.manager.Shutdown()
	}
	w.server.Shutdown()
	return ctx.Err()
}
