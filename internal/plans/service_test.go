package plans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarafrica/solarplanner/internal/notification"
	"github.com/solarafrica/solarplanner/internal/storage"
	"github.com/solarafrica/solarplanner/pkg/solar"
)

type recordingNotifier struct {
	to    []string
	share []notification.PlanShare
	err   error
}

func (r *recordingNotifier) SendPlanShared(_ context.Context, to string, share notification.PlanShare) error {
	r.to = append(r.to, to)
	r.share = append(r.share, share)
	return r.err
}

func newTestService(t *testing.T) (*Service, *storage.MemoryStorage, *recordingNotifier) {
	t.Helper()
	st := storage.NewMemory()
	n := &recordingNotifier{}
	svc := NewService(Options{
		Plans:       st,
		Users:       st,
		Notifier:    n,
		FrontendURL: "https://planner.example/",
	})
	return svc, st, n
}

func homeInput(name string) PlanInput {
	return PlanInput{
		Name:          name,
		Category:      solar.CategoryHome,
		Location:      "Nigeria",
		SunlightHours: 5.5,
		Devices: []solar.DeviceLoad{
			{Type: "LED Light Bulb", Quantity: 10, HoursPerDay: 5, PowerConsumption: 10},
			{Type: "Refrigerator", Quantity: 1, HoursPerDay: 24, PowerConsumption: 150},
		},
	}
}

func TestCreate_StoresPlanAndSnapshot(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	p, err := svc.Create(ctx, "u1", homeInput("  Family home "))
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Family home", p.Name)
	assert.Equal(t, StatusDraft, p.Status)
	assert.False(t, p.IsPublic)
	require.NotNil(t, p.Calculation)
	assert.Equal(t, solar.Calculate(homeInput("").calculationInput()), *p.Calculation)

	stored, err := st.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, stored.Devices, 2)
	assert.Equal(t, "Refrigerator", stored.Devices[1].Type)

	calc, err := st.LatestCalculation(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, calc)
	assert.Equal(t, svc.engine.Fingerprint(), calc.Fingerprint)
	var decoded solar.CalculationResult
	require.NoError(t, json.Unmarshal(calc.Payload, &decoded))
	assert.Equal(t, *p.Calculation, decoded)
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)

	in := homeInput("")
	in.SunlightHours = 0
	in.Devices[0].Quantity = 0

	_, err := svc.Create(context.Background(), "u1", in)
	var verr *solar.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{
		"Plan name is required",
		"Sunlight hours must be between 1 and 12",
		"Device 1: Quantity must be greater than 0",
	}, verr.Messages)
}

func TestGet_AccessRules(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	p, err := svc.Create(ctx, "owner", homeInput("Private"))
	require.NoError(t, err)

	got, err := svc.Get(ctx, p.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, p.Calculation, got.Calculation)

	_, err = svc.Get(ctx, p.ID, "stranger")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = svc.Get(ctx, p.ID, "")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = svc.Get(ctx, "missing", "owner")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Share(ctx, p.ID, "owner", "")
	require.NoError(t, err)
	got, err = svc.Get(ctx, p.ID, "")
	require.NoError(t, err)
	assert.True(t, got.IsPublic)
}

func TestGet_ComputesWhenNoSnapshot(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	in := homeInput("Imported")
	require.NoError(t, st.CreatePlan(ctx, storage.Plan{
		ID:            "imported",
		UserID:        "u1",
		Name:          in.Name,
		Category:      string(in.Category),
		Location:      in.Location,
		SunlightHours: in.SunlightHours,
		Status:        string(StatusDraft),
		Devices:       toDeviceRows(in.Devices),
	}))

	got, err := svc.Get(ctx, "imported", "u1")
	require.NoError(t, err)
	require.NotNil(t, got.Calculation)
	assert.Equal(t, solar.Calculate(in.calculationInput()), *got.Calculation)
}

func TestList_PagingAndSort(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"Charlie", "Alpha", "Echo", "Bravo", "Delta"} {
		at := base.Add(time.Duration(i) * time.Hour)
		svc.now = func() time.Time { return at }
		_, err := svc.Create(ctx, "u1", homeInput(name))
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, "u2", homeInput("Other user"))
	require.NoError(t, err)

	res, err := svc.List(ctx, "u1", ListParams{})
	require.NoError(t, err)
	require.Len(t, res.Plans, 5)
	assert.Equal(t, "Delta", res.Plans[0].Name, "newest first by default")
	assert.Equal(t, Pagination{Page: 1, Limit: 10, Total: 5, TotalPages: 1}, res.Pagination)

	res, err = svc.List(ctx, "u1", ListParams{Page: 2, Limit: 2, SortBy: "name", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, res.Plans, 2)
	assert.Equal(t, "Charlie", res.Plans[0].Name)
	assert.Equal(t, "Delta", res.Plans[1].Name)
	assert.Equal(t, Pagination{Page: 2, Limit: 2, Total: 5, TotalPages: 3, HasNext: true, HasPrev: true}, res.Pagination)
	for _, p := range res.Plans {
		assert.NotNil(t, p.Calculation)
	}

	res, err = svc.List(ctx, "nobody", ListParams{})
	require.NoError(t, err)
	assert.Empty(t, res.Plans)
	assert.Equal(t, 0, res.Pagination.TotalPages)
	assert.False(t, res.Pagination.HasNext)
}

func TestList_InvalidParams(t *testing.T) {
	svc, _, _ := newTestService(t)
	cases := []ListParams{
		{Page: -1},
		{Limit: MaxLimit + 1},
		{SortBy: "location"},
		{SortOrder: "sideways"},
	}
	for _, params := range cases {
		_, err := svc.List(context.Background(), "u1", params)
		var verr *solar.ValidationError
		assert.ErrorAs(t, err, &verr, "%+v", params)
	}
}

func TestUpdate_RecalculatesOnlyWhenNeeded(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	p, err := svc.Create(ctx, "u1", homeInput("Home"))
	require.NoError(t, err)
	first, err := st.LatestCalculation(ctx, p.ID)
	require.NoError(t, err)

	name := "Renamed"
	published := StatusPublished
	got, err := svc.Update(ctx, p.ID, "u1", PlanUpdate{Name: &name, Status: &published})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, StatusPublished, got.Status)
	same, err := st.LatestCalculation(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, same.ID)

	devices := []solar.DeviceLoad{{Type: "Water Pump", Quantity: 2, HoursPerDay: 6, PowerConsumption: 750}}
	got, err = svc.Update(ctx, p.ID, "u1", PlanUpdate{Devices: &devices})
	require.NoError(t, err)
	assert.Equal(t, devices, got.Devices)
	latest, err := st.LatestCalculation(ctx, p.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, latest.ID)
	assert.Greater(t, got.Calculation.EnergyDemand, p.Calculation.EnergyDemand)
}

func TestUpdate_Rejects(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	p, err := svc.Create(ctx, "u1", homeInput("Home"))
	require.NoError(t, err)

	name := "Hijacked"
	_, err = svc.Update(ctx, p.ID, "u2", PlanUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrAccessDenied)

	bogus := Status("DELETED")
	_, err = svc.Update(ctx, p.ID, "u1", PlanUpdate{Status: &bogus})
	var verr *solar.ValidationError
	assert.ErrorAs(t, err, &verr)

	hours := 13.0
	_, err = svc.Update(ctx, p.ID, "u1", PlanUpdate{SunlightHours: &hours})
	assert.ErrorAs(t, err, &verr)

	got, err := svc.Get(ctx, p.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Home", got.Name)
	assert.Equal(t, 5.5, got.SunlightHours)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	p, err := svc.Create(ctx, "u1", homeInput("Home"))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, p.ID, "u2"), ErrAccessDenied)
	require.NoError(t, svc.Delete(ctx, p.ID, "u1"))
	assert.ErrorIs(t, svc.Delete(ctx, p.ID, "u1"), ErrNotFound)

	calc, err := st.LatestCalculation(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, calc)
}

func TestDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	src, err := svc.Create(ctx, "u1", homeInput("Cabin"))
	require.NoError(t, err)

	cp, err := svc.Duplicate(ctx, src.ID, "u1", "")
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, cp.ID)
	assert.Equal(t, "Cabin (Copy)", cp.Name)
	assert.Equal(t, src.Devices, cp.Devices)
	assert.Equal(t, src.Calculation, cp.Calculation)

	_, err = svc.Duplicate(ctx, src.ID, "u2", "")
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = svc.Share(ctx, src.ID, "u1", "")
	require.NoError(t, err)
	theirs, err := svc.Duplicate(ctx, src.ID, "u2", "My cabin")
	require.NoError(t, err)
	assert.Equal(t, "u2", theirs.UserID)
	assert.Equal(t, "My cabin", theirs.Name)
	assert.False(t, theirs.IsPublic)
}

func TestShare(t *testing.T) {
	ctx := context.Background()
	svc, st, n := newTestService(t)
	require.NoError(t, st.CreateUser(ctx, storage.User{ID: "u1", Email: "ada@example.com", Name: "Ada"}))
	p, err := svc.Create(ctx, "u1", homeInput("Clinic"))
	require.NoError(t, err)

	res, err := svc.Share(ctx, p.ID, "u1", "friend@example.com")
	require.NoError(t, err)
	assert.True(t, res.EmailSent)
	assert.Equal(t, "https://planner.example/shared/"+res.ShareToken, res.ShareURL)
	require.Len(t, n.share, 1)
	assert.Equal(t, "friend@example.com", n.to[0])
	assert.Equal(t, "Ada", n.share[0].SharedBy)
	assert.Equal(t, p.Calculation.UpfrontCost, n.share[0].UpfrontCost)
	assert.Equal(t, res.ShareURL, n.share[0].URL)

	shared, err := svc.GetShared(ctx, res.ShareToken)
	require.NoError(t, err)
	assert.Equal(t, p.ID, shared.ID)

	again, err := svc.Share(ctx, p.ID, "u1", "")
	require.NoError(t, err)
	assert.NotEqual(t, res.ShareToken, again.ShareToken)
	assert.False(t, again.EmailSent)
	_, err = svc.GetShared(ctx, res.ShareToken)
	assert.ErrorIs(t, err, ErrNotFound, "old token is replaced")
}

func TestShare_Rejects(t *testing.T) {
	ctx := context.Background()
	svc, _, n := newTestService(t)
	p, err := svc.Create(ctx, "u1", homeInput("Clinic"))
	require.NoError(t, err)

	_, err = svc.Share(ctx, p.ID, "u2", "")
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = svc.Share(ctx, p.ID, "u1", "not an address")
	var verr *solar.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Empty(t, n.to)

	_, err = svc.GetShared(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.GetShared(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestShare_EmailFailureKeepsShare(t *testing.T) {
	ctx := context.Background()
	svc, _, n := newTestService(t)
	n.err = errors.New("smtp down")
	p, err := svc.Create(ctx, "u1", homeInput("Clinic"))
	require.NoError(t, err)

	res, err := svc.Share(ctx, p.ID, "u1", "friend@example.com")
	require.NoError(t, err)
	assert.False(t, res.EmailSent)

	_, err = svc.GetShared(ctx, res.ShareToken)
	assert.NoError(t, err)
}

func TestRecalculate(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	p, err := svc.Create(ctx, "u1", homeInput("Home"))
	require.NoError(t, err)

	changed, err := svc.Recalculate(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, changed, "same constants produce the same payload")

	c := solar.DefaultConstants()
	c.PanelCostPerKW *= 2
	svc.engine = solar.NewEngine(c)
	changed, err = svc.Recalculate(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	calc, err := st.LatestCalculation(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, svc.engine.Fingerprint(), calc.Fingerprint)

	_, err = svc.Recalculate(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecalculateAll(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, "u1", homeInput(fmt.Sprintf("Plan %d", i)))
		require.NoError(t, err)
	}

	sum, err := svc.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, RecalcSummary{Total: 3}, sum)

	c := solar.DefaultConstants()
	c.GovernmentIncentive = 0.2
	svc.engine = solar.NewEngine(c)
	sum, err = svc.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, RecalcSummary{Total: 3, Changed: 3}, sum)
}
