package solar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	list := Catalog()
	require.Len(t, list, 12)
	assert.Equal(t, "LED Light Bulb", list[0].Name)
	assert.Equal(t, 10, list[0].PowerConsumption)

	list[0].PowerConsumption = 9999
	assert.Equal(t, 10, Catalog()[0].PowerConsumption, "callers must not be able to mutate the table")
}

func TestLookupDevice(t *testing.T) {
	d, ok := LookupDevice(" air conditioner ")
	require.True(t, ok)
	assert.Equal(t, 1200, d.PowerConsumption)
	assert.Equal(t, "appliances", d.Category)

	_, ok = LookupDevice("Hoverboard")
	assert.False(t, ok)
}

func TestSunlightHours(t *testing.T) {
	h, ok := SunlightHours("Kenya")
	assert.True(t, ok)
	assert.Equal(t, 6.2, h)

	h, ok = SunlightHours("  burkina faso ")
	assert.True(t, ok)
	assert.Equal(t, 6.0, h)

	h, ok = SunlightHours("Atlantis")
	assert.False(t, ok)
	assert.Equal(t, DefaultSunlightHours, h)

	locs := SunlightLocations()
	assert.Len(t, locs, 14)
	assert.Equal(t, "Burkina Faso", locs[0])
}
