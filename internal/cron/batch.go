package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/solarafrica/solarplanner/internal/alerting"
	"github.com/solarafrica/solarplanner/internal/metrics"
	"github.com/solarafrica/solarplanner/internal/plans"
	"github.com/solarafrica/solarplanner/internal/storage"
)

const (
	// JobName identifies the recalculation job in scheduled_jobs and metrics.
	JobName = "recalculate_plans"
	lockKey int64 = 7402
)

// Recalculator re-runs the engine over every stored plan.
type Recalculator interface {
	RecalculateAll(ctx context.Context) (plans.RecalcSummary, error)
}

// Alerter is told about every finished pass and decides whether it is worth
// reporting.
type Alerter interface {
	Send(ctx context.Context, alert alerting.JobAlert) error
}

// ErrLocked is returned by RunBatch when another instance holds the job lock.
var ErrLocked = fmt.Errorf("job %s is running on another instance", JobName)

// RunBatch performs one recalculation pass under the advisory lock so that
// replicas never run it concurrently, then records the outcome. alert may be
// nil.
func RunBatch(ctx context.Context, store storage.JobStore, recalc Recalculator, alert Alerter) (plans.RecalcSummary, error) {
	logger := zerolog.Ctx(ctx)
	started := time.Now()

	ok, err := store.AcquireAdvisoryLock(ctx, lockKey)
	if err != nil {
		metrics.UpdateJobMetrics(JobName, started, err)
		return plans.RecalcSummary{}, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !ok {
		return plans.RecalcSummary{}, ErrLocked
	}

	var (
		sum    plans.RecalcSummary
		runErr error
	)
	func() {
		defer func() {
			// The pass may have ended because ctx was cancelled; the lock
			// still has to be given back.
			if _, err := store.ReleaseAdvisoryLock(context.WithoutCancel(ctx), lockKey); err != nil {
				logger.Error().Err(err).Msg("release advisory lock failed")
			}
		}()
		sum, runErr = recalc.RecalculateAll(ctx)
	}()

	metrics.UpdateJobMetrics(JobName, started, runErr)
	dur := time.Since(started)
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := store.UpdateScheduledJob(context.WithoutCancel(ctx), JobName, started, dur, runErr == nil, errMsg); err != nil {
		logger.Error().Err(err).Msg("update scheduled_jobs failed")
	}

	event := logger.Info()
	if runErr != nil {
		event = logger.Error().Err(runErr)
	}
	event.Str("job", JobName).
		Int("total", sum.Total).
		Int("changed", sum.Changed).
		Int("failed", sum.Failed).
		Dur("duration", dur).
		Msg("recalculation finished")

	if alert != nil {
		if err := alert.Send(ctx, jobAlert(sum, started, dur, errMsg)); err != nil {
			logger.Warn().Err(err).Msg("job alert failed")
		}
	}
	return sum, runErr
}

// jobAlert converts a summary into an alert. A run error that only reports
// the first failed plan is already covered by the failure list.
func jobAlert(sum plans.RecalcSummary, started time.Time, dur time.Duration, errMsg string) alerting.JobAlert {
	if sum.Failed > 0 {
		errMsg = ""
	}
	failures := make([]alerting.PlanFailure, 0, len(sum.Failures))
	for _, f := range sum.Failures {
		failures = append(failures, alerting.PlanFailure{PlanID: f.PlanID, Error: f.Error})
	}
	return alerting.JobAlert{
		JobName:   JobName,
		Total:     sum.Total,
		Changed:   sum.Changed,
		Failed:    sum.Failed,
		Duration:  dur,
		Timestamp: started,
		Error:     errMsg,
		Failures:  failures,
	}
}
