package api

import (
	"net/http"
	"strings"

	"github.com/solarafrica/solarplanner/internal/cache"
	"github.com/solarafrica/solarplanner/pkg/solar"
)

type calculatorHandler struct {
	calc *cache.Calculator
}

// SunlightResponse is the payload of the sunlight lookup.
type SunlightResponse struct {
	Location             string  `json:"location"`
	AverageSunlightHours float64 `json:"averageSunlightHours"`
	Known                bool    `json:"known"`
	Unit                 string  `json:"unit"`
}

// ValidateResponse lists every violation in a calculation request.
type ValidateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Calculate sizes a system for a load profile
// @Summary Calculate a solar system
// @Description Validates the load profile and returns sizing, costs, savings and financing
// @Tags calculator
// @Accept json
// @Produce json
// @Param input body solar.CalculationInput true "Load profile"
// @Success 200 {object} Envelope{data=solar.CalculationResult}
// @Failure 400 {object} Envelope
// @Router /api/calculator/calculate [post]
func (h *calculatorHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var in solar.CalculationInput
	if !decode(w, r, &in) {
		return
	}
	if err := solar.CheckInput(in); err != nil {
		writeError(w, r, err)
		return
	}

	res, hit, err := h.calc.Calculate(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	ok(w, r, http.StatusOK, "Solar system calculated successfully", res)
}

// Validate checks a load profile without calculating
// @Summary Validate a load profile
// @Tags calculator
// @Accept json
// @Produce json
// @Param input body solar.CalculationInput true "Load profile"
// @Success 200 {object} Envelope{data=ValidateResponse}
// @Router /api/calculator/validate [post]
func (h *calculatorHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var in solar.CalculationInput
	if !decode(w, r, &in) {
		return
	}
	msgs := solar.Validate(in)
	if msgs == nil {
		msgs = []string{}
	}
	ok(w, r, http.StatusOK, "Validation complete", ValidateResponse{Valid: len(msgs) == 0, Errors: msgs})
}

// Devices lists the appliance catalog
// @Summary Device catalog
// @Tags calculator
// @Produce json
// @Success 200 {object} Envelope{data=[]solar.CatalogDevice}
// @Router /api/calculator/devices [get]
func (h *calculatorHandler) Devices(w http.ResponseWriter, r *http.Request) {
	ok(w, r, http.StatusOK, "Device catalog retrieved successfully", solar.Catalog())
}

// Locations lists every location with known sunlight data
// @Summary Known sunlight locations
// @Tags calculator
// @Produce json
// @Success 200 {object} Envelope{data=[]SunlightResponse}
// @Router /api/calculator/locations [get]
func (h *calculatorHandler) Locations(w http.ResponseWriter, r *http.Request) {
	names := solar.SunlightLocations()
	out := make([]SunlightResponse, 0, len(names))
	for _, name := range names {
		hours, _ := solar.SunlightHours(name)
		out = append(out, SunlightResponse{Location: name, AverageSunlightHours: hours, Known: true, Unit: "hours/day"})
	}
	ok(w, r, http.StatusOK, "Locations retrieved successfully", out)
}

// Sunlight looks up average peak-sun-hours for a location
// @Summary Sunlight hours by location
// @Tags calculator
// @Produce json
// @Param location query string true "Country name"
// @Success 200 {object} Envelope{data=SunlightResponse}
// @Failure 400 {object} Envelope
// @Router /api/calculator/sunlight [get]
func (h *calculatorHandler) Sunlight(w http.ResponseWriter, r *http.Request) {
	location := strings.TrimSpace(r.URL.Query().Get("location"))
	if location == "" {
		fail(w, r, http.StatusBadRequest, "Location parameter is required")
		return
	}
	hours, known := solar.SunlightHours(location)
	ok(w, r, http.StatusOK, "Sunlight data retrieved successfully", SunlightResponse{
		Location:             location,
		AverageSunlightHours: hours,
		Known:                known,
		Unit:                 "hours/day",
	})
}
