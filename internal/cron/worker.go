// Package cron runs the periodic plan recalculation job.
package cron

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/solarafrica/solarplanner/internal/storage"
)

// ScheduleSetting is the settings key that overrides the configured schedule
// at runtime.
const ScheduleSetting = "recalc_schedule"

const defaultInterval = time.Hour

// NextRun returns the first run after last for a schedule given either as
// integer seconds or as a standard five-field cron expression. Anything else
// falls back to hourly.
func NextRun(schedule string, last time.Time) time.Time {
	if v, err := strconv.Atoi(schedule); err == nil && v > 0 {
		return last.Add(time.Duration(v) * time.Second)
	}
	if sched, err := cron.ParseStandard(schedule); err == nil {
		return sched.Next(last)
	}
	return last.Add(defaultInterval)
}

// ValidateSchedule rejects schedules NextRun would silently replace with
// the hourly fallback.
func ValidateSchedule(schedule string) error {
	if v, err := strconv.Atoi(schedule); err == nil {
		if v <= 0 {
			return fmt.Errorf("interval must be positive, got %d", v)
		}
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule, err)
	}
	return nil
}

type Worker struct {
	Store    storage.JobStore
	Recalc   Recalculator
	Schedule string
	Alerter  Alerter
	// Tick is how often the loop checks the setting and the clock.
	Tick time.Duration

	now      func() time.Time
	nextRun  time.Time
	schedule string
}

// Run recalculates immediately and then on the schedule until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	tick := w.Tick
	if tick <= 0 {
		tick = 10 * time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	w.init(ctx)
	zerolog.Ctx(ctx).Info().Str("schedule", w.schedule).Msg("recalculation worker starting")

	for {
		w.step(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}

func (w *Worker) init(ctx context.Context) {
	w.schedule = w.Schedule
	if w.schedule == "" {
		w.schedule = strconv.Itoa(int(defaultInterval.Seconds()))
	}
	if val, err := w.Store.GetSetting(ctx, ScheduleSetting); err == nil && val != "" {
		w.schedule = val
	}
	w.nextRun = w.clock()
}

// step applies any schedule change and runs the job if it is due. It
// reports whether a pass was attempted.
func (w *Worker) step(ctx context.Context) bool {
	logger := zerolog.Ctx(ctx)

	if val, err := w.Store.GetSetting(ctx, ScheduleSetting); err == nil && val != "" && val != w.schedule {
		logger.Info().Str("from", w.schedule).Str("to", val).Msg("recalculation schedule updated")
		w.schedule = val
		w.nextRun = NextRun(w.schedule, w.clock())
	}

	if w.clock().Before(w.nextRun) {
		return false
	}

	_, err := RunBatch(ctx, w.Store, w.Recalc, w.Alerter)
	switch {
	case errors.Is(err, ErrLocked):
		logger.Info().Msg("advisory lock held by another worker, skipping run")
	case err != nil && ctx.Err() == nil:
		logger.Warn().Err(err).Msg("recalculation pass failed")
	}
	w.nextRun = NextRun(w.schedule, w.clock())
	return true
}
