package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/aegis-platform/aegis/internal/jobs"
)

// AuditPurger removes audit records past a cutoff.
type AuditPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time, batch int32) (int64, error)
}

// AuditRetentionHandler builds the handler for TaskAuditRetention.
func AuditRetentionHandler(purger AuditPurger, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if retention <= 0 {
			return nil
		}
		payload, err := decodePayload[AuditRetentionPayload](t)
		if err != nil {
			return err
		}
		tracker := metrics.Track("audit_retention")
		cutoff := time.Now().Add(-retention)
		purged, err := purger.PurgeOlderThan(ctx, cutoff, payload.BatchSize)
		if err != nil {
			return tracker.End(err)
		}
		metrics.AddSwept("audit_retention", purged)
		if logger != nil && purged > 0 {
			logger.InfoContext(ctx, "audit records purged",
				slog.Int64("count", purged), slog.Time("cutoff", cutoff))
		}
		return tracker.End(nil)
	}
}
