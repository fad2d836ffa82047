package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarafrica/solarplanner/internal/alerting"
	"github.com/solarafrica/solarplanner/internal/plans"
	"github.com/solarafrica/solarplanner/internal/storage"
)

type fakeRecalc struct {
	calls int
	sum   plans.RecalcSummary
	err   error
}

func (f *fakeRecalc) RecalculateAll(context.Context) (plans.RecalcSummary, error) {
	f.calls++
	return f.sum, f.err
}

type fakeAlerter struct {
	sent []alerting.JobAlert
	err  error
}

func (f *fakeAlerter) Send(_ context.Context, a alerting.JobAlert) error {
	f.sent = append(f.sent, a)
	return f.err
}

func TestNextRun(t *testing.T) {
	last := time.Date(2026, 3, 10, 14, 7, 0, 0, time.UTC)

	assert.Equal(t, last.Add(90*time.Second), NextRun("90", last))
	assert.Equal(t, time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC), NextRun("0 * * * *", last))
	assert.Equal(t, time.Date(2026, 3, 11, 2, 30, 0, 0, time.UTC), NextRun("30 2 * * *", last))
	assert.Equal(t, last.Add(time.Hour), NextRun("whenever", last))
	assert.Equal(t, last.Add(time.Hour), NextRun("-5", last))
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("900"))
	assert.NoError(t, ValidateSchedule("*/15 * * * *"))
	assert.Error(t, ValidateSchedule("0"))
	assert.Error(t, ValidateSchedule("every tuesday"))
	assert.Error(t, ValidateSchedule(""))
}

func TestRunBatch_RecordsJob(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	r := &fakeRecalc{sum: plans.RecalcSummary{Total: 4, Changed: 1}}

	sum, err := RunBatch(ctx, st, r, nil)
	require.NoError(t, err)
	assert.Equal(t, r.sum, sum)

	job, err := st.GetScheduledJob(ctx, JobName)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.LastSuccess)
	assert.Empty(t, job.LastError)

	// lock is released after the pass
	ok, err := st.AcquireAdvisoryLock(ctx, lockKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunBatch_Failure(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	r := &fakeRecalc{err: errors.New("boom")}

	_, err := RunBatch(ctx, st, r, nil)
	assert.EqualError(t, err, "boom")

	job, err := st.GetScheduledJob(ctx, JobName)
	require.NoError(t, err)
	assert.Equal(t, 0, job.LastSuccess)
	assert.Equal(t, "boom", job.LastError)
}

func TestRunBatch_Alerts(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	r := &fakeRecalc{sum: plans.RecalcSummary{
		Total:    3,
		Failed:   1,
		Failures: []plans.RecalcFailure{{PlanID: "p9", Error: "bad input"}},
	}}
	al := &fakeAlerter{err: errors.New("webhook down")}

	// a failing alert never fails the job
	_, err := RunBatch(ctx, st, r, al)
	require.NoError(t, err)
	require.Len(t, al.sent, 1)
	got := al.sent[0]
	assert.Equal(t, JobName, got.JobName)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, []alerting.PlanFailure{{PlanID: "p9", Error: "bad input"}}, got.Failures)
	assert.Empty(t, got.Error)

	r.sum = plans.RecalcSummary{}
	r.err = errors.New("list plans: closed")
	_, err = RunBatch(ctx, st, r, al)
	require.Error(t, err)
	require.Len(t, al.sent, 2)
	assert.Equal(t, "list plans: closed", al.sent[1].Error)
}

// releaseRecorder remembers the context state seen by the lock release.
type releaseRecorder struct {
	*storage.MemoryStorage
	releaseErr error
	released   bool
}

func (r *releaseRecorder) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	r.releaseErr = ctx.Err()
	r.released = true
	return r.MemoryStorage.ReleaseAdvisoryLock(ctx, key)
}

type cancellingRecalc struct{ cancel context.CancelFunc }

func (c cancellingRecalc) RecalculateAll(ctx context.Context) (plans.RecalcSummary, error) {
	c.cancel()
	return plans.RecalcSummary{}, ctx.Err()
}

func TestRunBatch_ReleasesLockAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := &releaseRecorder{MemoryStorage: storage.NewMemory()}

	_, err := RunBatch(ctx, st, cancellingRecalc{cancel: cancel}, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, st.released)
	assert.NoError(t, st.releaseErr, "release must not inherit the cancellation")

	job, err := st.GetScheduledJob(context.Background(), JobName)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 0, job.LastSuccess)

	// the next pass is not blocked
	_, err = RunBatch(context.Background(), st, &fakeRecalc{}, nil)
	assert.NoError(t, err)
}

func TestRunBatch_SkipsWhenLocked(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	ok, err := st.AcquireAdvisoryLock(ctx, lockKey)
	require.NoError(t, err)
	require.True(t, ok)

	r := &fakeRecalc{}
	_, err = RunBatch(ctx, st, r, nil)
	assert.ErrorIs(t, err, ErrLocked)
	assert.Zero(t, r.calls)
}

func TestWorker_Schedule(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	r := &fakeRecalc{}

	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	w := &Worker{Store: st, Recalc: r, Schedule: "600", now: func() time.Time { return now }}
	w.init(ctx)

	assert.True(t, w.step(ctx), "first step runs immediately")
	assert.Equal(t, 1, r.calls)

	now = now.Add(5 * time.Minute)
	assert.False(t, w.step(ctx))

	now = now.Add(5 * time.Minute)
	assert.True(t, w.step(ctx))
	assert.Equal(t, 2, r.calls)

	// a runtime override reschedules from now
	require.NoError(t, st.SetSetting(ctx, ScheduleSetting, "60"))
	assert.False(t, w.step(ctx))
	assert.Equal(t, "60", w.schedule)
	now = now.Add(time.Minute)
	assert.True(t, w.step(ctx))
	assert.Equal(t, 3, r.calls)
}

func TestWorker_SettingWinsAtStart(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	require.NoError(t, st.SetSetting(ctx, ScheduleSetting, "0 3 * * *"))

	w := &Worker{Store: st, Recalc: &fakeRecalc{}, Schedule: "600"}
	w.init(ctx)
	assert.Equal(t, "0 3 * * *", w.schedule)

	w = &Worker{Store: storage.NewMemory(), Recalc: &fakeRecalc{}}
	w.init(ctx)
	assert.Equal(t, "3600", w.schedule)
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &fakeRecalc{}
	w := &Worker{Store: storage.NewMemory(), Recalc: r, Tick: time.Millisecond}
	assert.ErrorIs(t, w.Run(ctx), context.Canceled)
	assert.Equal(t, 1, r.calls, "the first pass runs before the loop waits")
}
