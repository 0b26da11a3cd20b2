package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/gokselkaptan/takas-app-sub004/pkg/logger"
)

// sweeper is the slice of the swap service the timeout jobs drive.
type sweeper interface {
	AutoCancelExpired(ctx context.Context, now time.Time) (int, error)
	RemindExpiring(ctx context.Context, now time.Time) (int, error)
	AutoCompleteDelivered(ctx context.Context, now time.Time) (int, error)
}

// SweepJobsParams configure the three swap timeout jobs.
type SweepJobsParams struct {
	Logger *logger.Logger
	Swaps  sweeper
}

// NewSweepJobs returns the auto-cancel, expiry-reminder and auto-complete
// jobs in the order they should run: reminders go out before the cancel
// sweep so a party is never cancelled without having been warned first.
func NewSweepJobs(params SweepJobsParams) ([]Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Swaps == nil {
		return nil, fmt.Errorf("swap service required")
	}
	return []Job{
		&sweepJob{name: "expiry-reminder", logg: params.Logger, run: params.Swaps.RemindExpiring, now: time.Now},
		&sweepJob{name: "auto-cancel", logg: params.Logger, run: params.Swaps.AutoCancelExpired, now: time.Now},
		&sweepJob{name: "auto-complete", logg: params.Logger, run: params.Swaps.AutoCompleteDelivered, now: time.Now},
	}, nil
}

type sweepJob struct {
	name string
	logg *logger.Logger
	run  func(ctx context.Context, now time.Time) (int, error)
	now  func() time.Time
}

func (j *sweepJob) Name() string { return j.name }

func (j *sweepJob) Run(ctx context.Context) error {
	count, err := j.run(ctx, j.now().UTC())
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"swaps_processed": count,
	})
	if err != nil {
		// partial progress still counts; the error carries the failed swaps
		j.logg.Error(logCtx, "sweep finished with errors", err)
		return fmt.Errorf("%s sweep: %w", j.name, err)
	}
	j.logg.Info(logCtx, "sweep complete")
	return nil
}
