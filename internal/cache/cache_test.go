package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarafrica/solarplanner/pkg/solar"
)

func input() solar.CalculationInput {
	return solar.CalculationInput{
		Category:      solar.CategoryHome,
		Location:      "Rwanda",
		SunlightHours: 5.7,
		Devices: []solar.DeviceLoad{
			{Type: "Refrigerator", Quantity: 1, HoursPerDay: 24, PowerConsumption: 150},
			{Type: "TV", Quantity: 1, HoursPerDay: 5, PowerConsumption: 100},
		},
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCache()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, m.Set(ctx, "forever", []byte("x"), 0))

	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))

	now = now.Add(time.Minute)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	now = now.Add(24 * time.Hour)
	_, err = m.Get(ctx, "forever")
	assert.NoError(t, err)

	_, err = m.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCache_SweepsExpired(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCache()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	for i := 0; i < 500; i++ {
		require.NoError(t, m.Set(ctx, fmt.Sprintf("first-%d", i), []byte("v"), time.Minute))
	}
	require.Equal(t, 500, m.Len())

	now = now.Add(time.Hour)
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Set(ctx, fmt.Sprintf("second-%d", i), []byte("v"), time.Minute))
	}
	assert.Equal(t, 10, m.Len())
}

func TestMemoryCache_EvictsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCacheSize(3)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, m.Set(ctx, k, []byte(k), 0))
		now = now.Add(time.Second)
	}
	// overwriting an existing key never evicts
	require.NoError(t, m.Set(ctx, "b", []byte("b2"), 0))
	assert.Equal(t, 3, m.Len())

	require.NoError(t, m.Set(ctx, "d", []byte("d"), 0))
	assert.Equal(t, 3, m.Len())
	_, err := m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrMiss)
	v, err := m.Get(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, "d", string(v))
}

func TestCalculator_HitAfterMiss(t *testing.T) {
	ctx := context.Background()
	calc := NewCalculator(NewMemoryCache(), solar.NewEngine(solar.DefaultConstants()), time.Hour)

	first, hit, err := calc.Calculate(ctx, input())
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := calc.Calculate(ctx, input())
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, solar.Calculate(input()), second)
}

func TestCalculator_KeyIgnoresLocationButNotConstants(t *testing.T) {
	def := NewCalculator(NewMemoryCache(), solar.NewEngine(solar.DefaultConstants()), time.Hour)

	a := input()
	b := input()
	b.Location = "Uganda"
	ka, err := def.Key(a)
	require.NoError(t, err)
	kb, err := def.Key(b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)

	b.Devices[1].HoursPerDay = 6
	kc, _ := def.Key(b)
	assert.NotEqual(t, ka, kc)

	c := solar.DefaultConstants()
	c.GovernmentIncentive = 0.3
	other := NewCalculator(NewMemoryCache(), solar.NewEngine(c), time.Hour)
	kd, _ := other.Key(a)
	assert.NotEqual(t, ka, kd)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenCache) Close() error { return nil }

func TestCalculator_FallsThroughOnCacheErrors(t *testing.T) {
	calc := NewCalculator(brokenCache{}, solar.NewEngine(solar.DefaultConstants()), time.Hour)
	res, hit, err := calc.Calculate(context.Background(), input())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, solar.Calculate(input()), res)
}

func TestCalculator_CorruptEntryIsRecomputed(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryCache()
	calc := NewCalculator(mem, solar.NewEngine(solar.DefaultConstants()), time.Hour)
	key, err := calc.Key(input())
	require.NoError(t, err)
	require.NoError(t, mem.Set(ctx, key, []byte("{not json"), time.Hour))

	res, hit, err := calc.Calculate(ctx, input())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, solar.Calculate(input()), res)
}

// Runs only when a Redis server is available, e.g. REDIS_ADDR=localhost:6379.
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	r := NewRedisCache(addr)
	defer r.Close()
	require.NoError(t, r.Ping(ctx))

	require.NoError(t, r.Set(ctx, "solarplanner:test", []byte("v"), time.Minute))
	v, err := r.Get(ctx, "solarplanner:test")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))

	_, err = r.Get(ctx, "solarplanner:absent")
	assert.ErrorIs(t, err, ErrMiss)
}
