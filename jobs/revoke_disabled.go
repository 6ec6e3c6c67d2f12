package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/adminkit/adminkit/internal/jobs"
	"github.com/adminkit/adminkit/internal/tokens"
)

// RevokeDisabledJob revokes bearer tokens still active for disabled users.
// Disabling through the API already revokes them; this catches accounts
// disabled directly in the database.
type RevokeDisabledJob struct {
	Tokens  tokens.Store
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRevokeDisabledJob constructs the job handler.
func NewRevokeDisabledJob(store tokens.Store, logger *slog.Logger, metrics *jobmetrics.Metrics) *RevokeDisabledJob {
	return &RevokeDisabledJob{Tokens: store, Logger: logger, Metrics: metrics}
}

// Handle executes the revocation.
func (j *RevokeDisabledJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Tokens == nil {
		return errors.New("revoke disabled: handler not configured")
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskRevokeDisabledTokens))

	tracker := metrics.Track(TaskRevokeDisabledTokens)
	revoked, err := j.Tokens.RevokeAllOfDisabledUsers(ctx, tokens.TypeBearer)
	if err != nil {
		logger.Error("revoke tokens of disabled users", slog.Any("error", err))
		return tracker.End(err)
	}
	metrics.AddTokens(TaskRevokeDisabledTokens, revoked)
	if revoked > 0 {
		logger.Info("revoked tokens of disabled users", slog.Int64("revoked", revoked))
	}
	return tracker.End(nil)
}
