package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/aegis-platform/aegis/internal/jobs"
)

// GrantSweeper revokes grants whose timeout has passed.
type GrantSweeper interface {
	SweepExpiredGrants(ctx context.Context, limit int32) (int, error)
}

// GrantSweepHandler builds the handler for TaskGrantSweep. Each run loops in
// bounded batches until no expired grant remains.
func GrantSweepHandler(sweeper GrantSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		payload, err := decodePayload[GrantSweepPayload](t)
		if err != nil {
			return err
		}
		if payload.BatchSize <= 0 {
			payload.BatchSize = 100
		}
		tracker := metrics.Track("grant_sweep")
		total := 0
		for {
			n, err := sweeper.SweepExpiredGrants(ctx, payload.BatchSize)
			if err != nil {
				return tracker.End(err)
			}
			total += n
			if n < int(payload.BatchSize) {
				break
			}
		}
		metrics.AddSwept("grant_sweep", int64(total))
		if logger != nil && total > 0 {
			logger.InfoContext(ctx, "expired grants swept", slog.Int("count", total))
		}
		return tracker.End(nil)
	}
}
