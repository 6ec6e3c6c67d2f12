package jobs

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"

	"github.com/adminkit/adminkit/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// GroupTokens groups the token maintenance jobs.
	GroupTokens = "tokens"

	// TaskPurgeExpiredTokens deletes tokens past their expiration grace window.
	TaskPurgeExpiredTokens = "token:purge-expired"
	// TaskRevokeDisabledTokens revokes bearer tokens still held by disabled users.
	TaskRevokeDisabledTokens = "token:revoke-disabled"
)

// Kind tells whether a job's cron comes from configuration or from the
// scheduled_jobs table.
type Kind string

const (
	// KindApplicationConfig jobs take their cron from config on every start.
	KindApplicationConfig Kind = "APPLICATION_CONFIG"
	// KindUserConfig jobs keep the stored cron, which can be rescheduled at runtime.
	KindUserConfig Kind = "USER_CONFIG"
)

// Definition describes a scheduled job.
type Definition struct {
	Name        string `json:"jobName"`
	Group       string `json:"jobGroup"`
	Kind        Kind   `json:"kind"`
	Cron        string `json:"cronExpression"`
	TaskType    string `json:"taskType"`
	Description string `json:"description"`
}

func (d Definition) key() string {
	return d.Group + "/" + d.Name
}

// Task builds the asynq task enqueued for each cron tick.
func (d Definition) Task() *asynq.Task {
	return asynq.NewTask(d.TaskType, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// ValidateCron parses a standard five-field cron expression or descriptor.
func ValidateCron(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("%w: invalid cron %q: %v", shared.ErrBadRequest, expr, err)
	}
	return nil
}

// DefaultDefinitions returns the token maintenance jobs. purgeCron is the
// configured schedule of the purge job.
func DefaultDefinitions(purgeCron string) []Definition {
	if purgeCron == "" {
		purgeCron = "0 3 * * *"
	}
	return []Definition{
		{
			Name:        "purge-expired-tokens",
			Group:       GroupTokens,
			Kind:        KindApplicationConfig,
			Cron:        purgeCron,
			TaskType:    TaskPurgeExpiredTokens,
			Description: "Delete tokens expired for more than a day",
		},
		{
			Name:        "revoke-disabled-tokens",
			Group:       GroupTokens,
			Kind:        KindUserConfig,
			Cron:        "*/15 * * * *",
			TaskType:    TaskRevokeDisabledTokens,
			Description: "Revoke bearer tokens of disabled users",
		},
	}
}
