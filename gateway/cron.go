package gateway

import (
	"context"

	"encore.dev/cron"

	"aceit.app/pkg/logging"
)

// SessionSweep drops sessions that have been idle longer than the configured timeout.
var _ = cron.NewJob("session-sweep", cron.JobConfig{
	Title:    "Idle Session Sweep",
	Schedule: "*/10 * * * *", // Every 10 minutes
	Endpoint: SweepSessions,
})

//encore:api private
func SweepSessions(ctx context.Context) error {
	if svc == nil {
		return nil
	}

	ctx, _ = logging.EnsureRequestID(ctx)
	svc.sweepIdle(ctx)
	return nil
}
