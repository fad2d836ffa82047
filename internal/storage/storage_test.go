package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()
	ctx := context.Background()

	gs, err := Open(ctx, Config{
		Driver:      "sqlite",
		DSN:         filepath.Join(t.TempDir(), "solarplanner.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { gs.Close() })

	mem, err := Open(ctx, Config{Driver: "memory"})
	require.NoError(t, err)

	return map[string]Storage{"memory": mem, "sqlite": gs}
}

func samplePlan(id, user, name string, created time.Time) Plan {
	return Plan{
		ID:            id,
		UserID:        user,
		Name:          name,
		Category:      "HOME",
		Location:      "Ghana",
		SunlightHours: 5.4,
		Status:        "DRAFT",
		Devices: []PlanDevice{
			{Type: "Fan", Quantity: 2, HoursPerDay: 8, PowerConsumption: 75},
			{Type: "TV", Quantity: 1, HoursPerDay: 4, PowerConsumption: 100},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestStorage_PlanLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now().UTC().Truncate(time.Second)
			require.NoError(t, st.CreatePlan(ctx, samplePlan("p1", "u1", "Home", now)))

			got, err := st.GetPlan(ctx, "p1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "Home", got.Name)
			require.Len(t, got.Devices, 2)
			assert.Equal(t, "Fan", got.Devices[0].Type)
			assert.Equal(t, 1, got.Devices[1].Position)

			missing, err := st.GetPlan(ctx, "nope")
			require.NoError(t, err)
			assert.Nil(t, missing)

			got.Name = "Home v2"
			tok := "share-123"
			got.ShareToken = &tok
			got.IsPublic = true
			got.Devices = []PlanDevice{{Type: "Radio", Quantity: 1, HoursPerDay: 6, PowerConsumption: 15}}
			require.NoError(t, st.UpdatePlan(ctx, *got))

			updated, err := st.GetPlan(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, "Home v2", updated.Name)
			require.Len(t, updated.Devices, 1)
			assert.Equal(t, "Radio", updated.Devices[0].Type)

			shared, err := st.GetPlanByShareToken(ctx, "share-123")
			require.NoError(t, err)
			require.NotNil(t, shared)
			assert.Equal(t, "p1", shared.ID)

			require.NoError(t, st.SaveCalculation(ctx, Calculation{PlanID: "p1", Fingerprint: "a", Payload: []byte(`{"v":1}`)}))
			require.NoError(t, st.SaveCalculation(ctx, Calculation{PlanID: "p1", Fingerprint: "a", Payload: []byte(`{"v":2}`)}))
			calc, err := st.LatestCalculation(ctx, "p1")
			require.NoError(t, err)
			require.NotNil(t, calc)
			assert.JSONEq(t, `{"v":2}`, string(calc.Payload))

			require.NoError(t, st.DeletePlan(ctx, "p1"))
			gone, err := st.GetPlan(ctx, "p1")
			require.NoError(t, err)
			assert.Nil(t, gone)
			calc, err = st.LatestCalculation(ctx, "p1")
			require.NoError(t, err)
			assert.Nil(t, calc)
		})
	}
}

func TestStorage_ListPlans(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			for i, n := range []string{"Charlie", "alpha", "Bravo", "Delta"} {
				require.NoError(t, st.CreatePlan(ctx, samplePlan("p"+n, "u1", n, base.Add(time.Duration(i)*time.Hour))))
			}
			require.NoError(t, st.CreatePlan(ctx, samplePlan("other", "u2", "Other", base)))

			page, total, err := st.ListPlans(ctx, PlanQuery{UserID: "u1", Limit: 2, SortBy: "created_at", Desc: true})
			require.NoError(t, err)
			assert.EqualValues(t, 4, total)
			require.Len(t, page, 2)
			assert.Equal(t, "Delta", page[0].Name)
			assert.Equal(t, "Bravo", page[1].Name)
			assert.Len(t, page[0].Devices, 2)

			page, _, err = st.ListPlans(ctx, PlanQuery{UserID: "u1", Offset: 2, Limit: 2, SortBy: "created_at"})
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.Equal(t, "Bravo", page[0].Name)
			assert.Equal(t, "Delta", page[1].Name)

			page, _, err = st.ListPlans(ctx, PlanQuery{UserID: "u1", Offset: 10, Limit: 2, SortBy: "created_at"})
			require.NoError(t, err)
			assert.Empty(t, page)

			_, _, err = st.ListPlans(ctx, PlanQuery{UserID: "u1", Limit: 2, SortBy: "id; drop table plans"})
			assert.Error(t, err)

			ids, err := st.ListPlanIDs(ctx)
			require.NoError(t, err)
			assert.Len(t, ids, 5)
		})
	}
}

func TestStorage_UsersAndTokens(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			u := User{ID: "u1", Email: "ada@example.com", Name: "Ada", PasswordHash: "x", Role: "user", CreatedAt: time.Now()}
			require.NoError(t, st.CreateUser(ctx, u))
			assert.ErrorIs(t, st.CreateUser(ctx, User{ID: "u2", Email: "ada@example.com"}), ErrDuplicate)

			u.Name = "Ada L."
			u.Phone = "+27110000000"
			u.UpdatedAt = time.Now()
			require.NoError(t, st.UpdateUser(ctx, u))
			renamed, err := st.GetUser(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, "Ada L.", renamed.Name)
			assert.Equal(t, "+27110000000", renamed.Phone)
			assert.Equal(t, "ada@example.com", renamed.Email)
			assert.Error(t, st.UpdateUser(ctx, User{ID: "ghost", Name: "x"}))

			got, err := st.GetUserByEmail(ctx, "ada@example.com")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "u1", got.ID)

			none, err := st.GetUser(ctx, "ghost")
			require.NoError(t, err)
			assert.Nil(t, none)

			tok := Token{ID: "t1", UserID: "u1", Name: "login", TokenHash: "hash", Role: "user", CreatedAt: time.Now()}
			require.NoError(t, st.CreateToken(ctx, tok))
			byHash, err := st.GetTokenByHash(ctx, "hash")
			require.NoError(t, err)
			require.NotNil(t, byHash)
			assert.Nil(t, byHash.LastUsedAt)

			require.NoError(t, st.UpdateTokenLastUsed(ctx, "t1"))
			byHash, err = st.GetTokenByHash(ctx, "hash")
			require.NoError(t, err)
			assert.NotNil(t, byHash.LastUsedAt)

			list, err := st.ListTokens(ctx, "u1")
			require.NoError(t, err)
			assert.Len(t, list, 1)

			require.NoError(t, st.DeleteToken(ctx, "t1"))
			byHash, err = st.GetTokenByHash(ctx, "hash")
			require.NoError(t, err)
			assert.Nil(t, byHash)
		})
	}
}

func TestStorage_RulesSettingsJobs(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.AddCasbinRule(ctx, CasbinRule{PType: "p", V0: "user", V1: "plans", V2: "read"}))
			require.NoError(t, st.AddCasbinRule(ctx, CasbinRule{PType: "g", V0: "u1", V1: "admin"}))
			rules, err := st.LoadCasbinRules(ctx)
			require.NoError(t, err)
			assert.Len(t, rules, 2)

			require.NoError(t, st.RemoveCasbinRule(ctx, CasbinRule{PType: "g", V0: "u1", V1: "admin"}))
			rules, err = st.LoadCasbinRules(ctx)
			require.NoError(t, err)
			require.Len(t, rules, 1)
			assert.Equal(t, "plans", rules[0].V1)

			v, err := st.GetSetting(ctx, "recalc_schedule")
			require.NoError(t, err)
			assert.Empty(t, v)
			require.NoError(t, st.SetSetting(ctx, "recalc_schedule", "60"))
			require.NoError(t, st.SetSetting(ctx, "recalc_schedule", "120"))
			v, err = st.GetSetting(ctx, "recalc_schedule")
			require.NoError(t, err)
			assert.Equal(t, "120", v)

			ok, err := st.AcquireAdvisoryLock(ctx, 42)
			require.NoError(t, err)
			assert.True(t, ok)
			_, err = st.ReleaseAdvisoryLock(ctx, 42)
			require.NoError(t, err)

			started := time.Now().UTC().Truncate(time.Second)
			require.NoError(t, st.UpdateScheduledJob(ctx, "recalculate", started, 1500*time.Millisecond, false, "boom"))
			require.NoError(t, st.UpdateScheduledJob(ctx, "recalculate", started, 2*time.Second, true, ""))
			job, err := st.GetScheduledJob(ctx, "recalculate")
			require.NoError(t, err)
			require.NotNil(t, job)
			assert.EqualValues(t, 2000, job.LastDurationMs)
			assert.Equal(t, 1, job.LastSuccess)
			assert.Empty(t, job.LastError)
		})
	}
}

func TestStorage_AdvisoryLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := st.AcquireAdvisoryLock(ctx, 7)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = st.AcquireAdvisoryLock(ctx, 7)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, _ = st.AcquireAdvisoryLock(ctx, 8)
			assert.True(t, ok, "keys are independent")

			released, _ := st.ReleaseAdvisoryLock(ctx, 7)
			assert.True(t, released)
			released, _ = st.ReleaseAdvisoryLock(ctx, 7)
			assert.False(t, released)
			ok, _ = st.AcquireAdvisoryLock(ctx, 7)
			assert.True(t, ok)
		})
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql"})
	assert.Error(t, err)
}
