package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adminkit/adminkit/internal/shared"
)

// Registry reconciles the known job definitions with the Store and serves
// the resulting schedule to the asynq periodic task manager.
type Registry struct {
	store   Store
	defs    []Definition
	logger  *slog.Logger
	timeout time.Duration
}

// NewRegistry builds a Registry for defs.
func NewRegistry(store Store, defs []Definition, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, defs: defs, logger: logger, timeout: 10 * time.Second}
}

// Sync writes the definitions to the store. Application-config jobs always
// take the configured cron; user-config jobs keep a cron already stored. Rows
// for jobs that no longer exist are removed. Any invalid cron fails the sync.
func (r *Registry) Sync(ctx context.Context) error {
	known := make(map[string]struct{}, len(r.defs))
	for _, def := range r.defs {
		if err := ValidateCron(def.Cron); err != nil {
			return fmt.Errorf("jobs: %s: %w", def.key(), err)
		}
		known[def.key()] = struct{}{}
		if def.Kind == KindUserConfig {
			stored, err := r.store.Get(ctx, def.Name, def.Group)
			switch {
			case err == nil:
				if ValidateCron(stored.Cron) == nil {
					def.Cron = stored.Cron
				} else {
					r.logger.Warn("stored cron invalid, resetting", slog.String("job", def.key()), slog.String("cron", stored.Cron))
				}
			case !errors.Is(err, shared.ErrNotFound):
				return err
			}
		}
		if err := r.store.Upsert(ctx, def); err != nil {
			return err
		}
	}

	stored, err := r.store.Load(ctx)
	if err != nil {
		return err
	}
	for _, def := range stored {
		if _, ok := known[def.key()]; ok {
			continue
		}
		if err := r.store.Delete(ctx, def.Name, def.Group); err != nil {
			return err
		}
		r.logger.Info("removed obsolete job", slog.String("job", def.key()))
	}
	return nil
}

// List returns the user-config jobs.
func (r *Registry) List(ctx context.Context) ([]Definition, error) {
	defs, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Definition, 0, len(defs))
	for _, def := range defs {
		if def.Kind == KindUserConfig {
			out = append(out, def)
		}
	}
	return out, nil
}

// Reschedule stores a new cron for a user-config job.
func (r *Registry) Reschedule(ctx context.Context, name, group, cronExpr string) (*Definition, error) {
	def, err := r.store.Get(ctx, name, group)
	if err != nil {
		return nil, err
	}
	if def.Kind != KindUserConfig {
		return nil, fmt.Errorf("%w: job %s is configured by the application", shared.ErrBadRequest, def.key())
	}
	if err := ValidateCron(cronExpr); err != nil {
		return nil, err
	}
	def.Cron = cronExpr
	if err := r.store.Upsert(ctx, *def); err != nil {
		return nil, err
	}
	r.logger.Info("job rescheduled", slog.String("job", def.key()), slog.String("cron", cronExpr))
	return def, nil
}

// GetConfigs implements asynq.PeriodicTaskConfigProvider.
func (r *Registry) GetConfigs() ([]*asynq.PeriodicTaskConfig, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	defs, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	configs := make([]*asynq.PeriodicTaskConfig, 0, len(defs))
	for _, def := range defs {
		if ValidateCron(def.Cron) != nil {
			r.logger.Warn("skipping job with invalid cron", slog.String("job", def.key()), slog.String("cron", def.Cron))
			continue
		}
		configs = append(configs, &asynq.PeriodicTaskConfig{Cronspec: def.Cron, Task: def.Task()})
	}
	return configs, nil
}

var _ asynq.PeriodicTaskConfigProvider = (*Registry)(nil)
