package solar

import (
	"fmt"
	"strings"
)

const (
	MaxSunlightHours = 12
	MaxHoursPerDay   = 24
)

// Validate checks in against the documented input bounds and returns one
// message per violation, in input order. An empty result means in is safe
// to pass to Calculate.
func Validate(in CalculationInput) []string {
	var errs []string

	if !in.Category.Valid() {
		errs = append(errs, "Valid category is required (HOME, BUSINESS, or FARM)")
	}
	if strings.TrimSpace(in.Location) == "" {
		errs = append(errs, "Location is required")
	}
	if !(in.SunlightHours > 0 && in.SunlightHours <= MaxSunlightHours) {
		errs = append(errs, "Sunlight hours must be between 1 and 12")
	}
	if len(in.Devices) == 0 {
		errs = append(errs, "At least one device is required")
	}

	for i, d := range in.Devices {
		n := i + 1
		if strings.TrimSpace(d.Type) == "" {
			errs = append(errs, fmt.Sprintf("Device %d: Type is required", n))
		}
		if d.Quantity <= 0 {
			errs = append(errs, fmt.Sprintf("Device %d: Quantity must be greater than 0", n))
		}
		if !(d.HoursPerDay > 0 && d.HoursPerDay <= MaxHoursPerDay) {
			errs = append(errs, fmt.Sprintf("Device %d: Hours per day must be between 1 and 24", n))
		}
		if d.PowerConsumption <= 0 {
			errs = append(errs, fmt.Sprintf("Device %d: Power consumption must be greater than 0", n))
		}
	}
	return errs
}

// ValidationError reports every violation found in a request.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// CheckInput returns a *ValidationError when in has violations, nil otherwise.
func CheckInput(in CalculationInput) error {
	if msgs := Validate(in); len(msgs) > 0 {
		return &ValidationError{Messages: msgs}
	}
	return nil
}
