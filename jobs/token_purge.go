package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/adminkit/adminkit/internal/jobs"
	"github.com/adminkit/adminkit/internal/platform/cache"
	"github.com/adminkit/adminkit/internal/tokens"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Locker grants exclusive execution across workers.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// TokenPurgeJob deletes token rows whose expiration is older than the grace window.
type TokenPurgeJob struct {
	Tokens  tokens.Store
	Locker  Locker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	LockTTL time.Duration
	clock   func() time.Time
}

// NewTokenPurgeJob wires dependencies for the purge handler.
func NewTokenPurgeJob(store tokens.Store, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *TokenPurgeJob {
	return &TokenPurgeJob{
		Tokens:  store,
		Locker:  locker,
		Logger:  logger,
		Metrics: metrics,
		LockTTL: 10 * time.Minute,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes purge tasks. A run that finds the lock taken is skipped.
func (j *TokenPurgeJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Tokens == nil {
		return errors.New("token purge: handler not configured")
	}
	tracker := j.metrics().Track(TaskPurgeExpiredTokens)

	if j.Locker != nil {
		release, err := j.Locker.Acquire(ctx, TaskPurgeExpiredTokens, j.LockTTL)
		if errors.Is(err, cache.ErrLockHeld) {
			tracker.Skip()
			j.logger().Info("purge already running elsewhere")
			return nil
		}
		if err != nil {
			return tracker.End(err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				j.logger().Warn("release purge lock", slog.Any("error", err))
			}
		}()
	}

	cutoff := tokens.PurgeCutoff(j.now())
	purged, err := j.Tokens.PurgeExpiredBefore(ctx, cutoff)
	if err != nil {
		j.logger().Error("purge expired tokens", slog.Time("cutoff", cutoff), slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddTokens(TaskPurgeExpiredTokens, purged)
	j.logger().Info("purged expired tokens", slog.Int64("deleted", purged), slog.Time("cutoff", cutoff))
	return tracker.End(nil)
}

func (j *TokenPurgeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPurgeExpiredTokens))
	}
	return slog.Default().With(slog.String("job", TaskPurgeExpiredTokens))
}

func (j *TokenPurgeJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *TokenPurgeJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
