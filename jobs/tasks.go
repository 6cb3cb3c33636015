package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGrantSweep revokes expired role grants.
	TaskGrantSweep = "authz:grant_sweep"
	// TaskAuditRetention purges audit records past the retention window.
	TaskAuditRetention = "audit:retention"
)

// GrantSweepPayload bounds one sweep run.
type GrantSweepPayload struct {
	BatchSize int32 `json:"batch_size"`
}

// NewGrantSweepTask constructs an Asynq task.
func NewGrantSweepTask(payload GrantSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGrantSweep, data), nil
}

// AuditRetentionPayload bounds one retention run.
type AuditRetentionPayload struct {
	BatchSize int32 `json:"batch_size"`
}

// NewAuditRetentionTask constructs an Asynq task.
func NewAuditRetentionTask(payload AuditRetentionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetention, data), nil
}

func decodePayload[T any](t *asynq.Task) (T, error) {
	var payload T
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, asynq.SkipRetry
	}
	return payload, nil
}
