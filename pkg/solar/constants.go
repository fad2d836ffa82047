package solar

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v2"
)

// Tariff is a two-band monthly electricity schedule. Consumption up to
// TierThreshold kWh is billed at BaseRate, the remainder at TierRate.
type Tariff struct {
	BaseRate      float64 `json:"baseRate" yaml:"base_rate"`
	TierRate      float64 `json:"tierRate" yaml:"tier_rate"`
	TierThreshold float64 `json:"tierThreshold" yaml:"tier_threshold"`
}

// MonthlyBill prices kwh of monthly consumption under t.
func (t Tariff) MonthlyBill(kwh float64) float64 {
	if kwh <= t.TierThreshold {
		return kwh * t.BaseRate
	}
	return t.TierThreshold*t.BaseRate + (kwh-t.TierThreshold)*t.TierRate
}

// Constants is the pricing and sizing table the engine computes with.
// Every number the formulas use lives here so that alternate markets can be
// modelled by swapping the table.
type Constants struct {
	PanelCostPerKW             float64 `json:"panelCostPerKw" yaml:"panel_cost_per_kw"`
	BatteryCostPerKWh          float64 `json:"batteryCostPerKwh" yaml:"battery_cost_per_kwh"`
	InverterCostPerKW          float64 `json:"inverterCostPerKw" yaml:"inverter_cost_per_kw"`
	InstallationCostPercentage float64 `json:"installationCostPercentage" yaml:"installation_cost_percentage"`
	MaintenanceCostPercentage  float64 `json:"maintenanceCostPercentage" yaml:"maintenance_cost_percentage"`
	SystemEfficiency           float64 `json:"systemEfficiency" yaml:"system_efficiency"`
	BatteryDays                int     `json:"batteryDays" yaml:"battery_days"`
	SystemLifespan             int     `json:"systemLifespan" yaml:"system_lifespan"`
	BatteryReplacementYears    int     `json:"batteryReplacementYears" yaml:"battery_replacement_years"`
	GovernmentIncentive        float64 `json:"governmentIncentive" yaml:"government_incentive"`
	FinancingInterestRate      float64 `json:"financingInterestRate" yaml:"financing_interest_rate"`
	CO2Factor                  float64 `json:"co2Factor" yaml:"co2_factor"`

	ElectricityRates map[Category]Tariff `json:"electricityRates" yaml:"electricity_rates"`

	PanelSafetyMargin             float64 `json:"panelSafetyMargin" yaml:"panel_safety_margin"`
	DepthOfDischargeMargin        float64 `json:"depthOfDischargeMargin" yaml:"depth_of_discharge_margin"`
	InverterOversize              float64 `json:"inverterOversize" yaml:"inverter_oversize"`
	BatteryReplacementPriceFactor float64 `json:"batteryReplacementPriceFactor" yaml:"battery_replacement_price_factor"`
	DaysPerMonth                  float64 `json:"daysPerMonth" yaml:"days_per_month"`
	ShortLoanYears                int     `json:"shortLoanYears" yaml:"short_loan_years"`
	LongLoanYears                 int     `json:"longLoanYears" yaml:"long_loan_years"`
}

// DefaultConstants returns the reference table for African markets.
func DefaultConstants() Constants {
	return Constants{
		PanelCostPerKW:             1200,
		BatteryCostPerKWh:          450,
		InverterCostPerKW:          350,
		InstallationCostPercentage: 0.35,
		MaintenanceCostPercentage:  0.02,
		SystemEfficiency:           0.78,
		BatteryDays:                3,
		SystemLifespan:             20,
		BatteryReplacementYears:    8,
		GovernmentIncentive:        0.15,
		FinancingInterestRate:      0.12,
		CO2Factor:                  0.6,
		ElectricityRates: map[Category]Tariff{
			CategoryHome:     {BaseRate: 0.08, TierRate: 0.18, TierThreshold: 200},
			CategoryBusiness: {BaseRate: 0.12, TierRate: 0.22, TierThreshold: 500},
			CategoryFarm:     {BaseRate: 0.06, TierRate: 0.15, TierThreshold: 1000},
		},
		PanelSafetyMargin:             1.2,
		DepthOfDischargeMargin:        1.25,
		InverterOversize:              1.2,
		BatteryReplacementPriceFactor: 0.7,
		DaysPerMonth:                  30,
		ShortLoanYears:                5,
		LongLoanYears:                 10,
	}
}

// LoadConstants reads a YAML market profile and layers it over the default
// table. Keys missing from the file keep their default values; a tariff
// entry that is present replaces the default entry for that category.
func LoadConstants(path string) (Constants, error) {
	c := DefaultConstants()
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Constants{}, fmt.Errorf("read constants file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Constants{}, fmt.Errorf("parse constants file %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Constants{}, fmt.Errorf("constants file %s: %w", path, err)
	}
	return c, nil
}

// Validate checks that the table can drive the formulas without producing
// nonsense (negative prices, zero efficiency, missing tariffs).
func (c Constants) Validate() error {
	var errs []error
	positive := map[string]float64{
		"panel_cost_per_kw":         c.PanelCostPerKW,
		"battery_cost_per_kwh":      c.BatteryCostPerKWh,
		"inverter_cost_per_kw":      c.InverterCostPerKW,
		"panel_safety_margin":       c.PanelSafetyMargin,
		"depth_of_discharge_margin": c.DepthOfDischargeMargin,
		"inverter_oversize":         c.InverterOversize,
		"days_per_month":            c.DaysPerMonth,
	}
	for name, v := range positive {
		if !(v > 0) {
			errs = append(errs, fmt.Errorf("%s must be greater than 0", name))
		}
	}
	fractions := map[string]float64{
		"installation_cost_percentage":     c.InstallationCostPercentage,
		"maintenance_cost_percentage":      c.MaintenanceCostPercentage,
		"government_incentive":             c.GovernmentIncentive,
		"battery_replacement_price_factor": c.BatteryReplacementPriceFactor,
	}
	for name, v := range fractions {
		if !(v >= 0 && v <= 1) {
			errs = append(errs, fmt.Errorf("%s must be between 0 and 1", name))
		}
	}
	if !(c.SystemEfficiency > 0 && c.SystemEfficiency <= 1) {
		errs = append(errs, errors.New("system_efficiency must be in (0, 1]"))
	}
	if !(c.FinancingInterestRate >= 0) {
		errs = append(errs, errors.New("financing_interest_rate must not be negative"))
	}
	if !(c.CO2Factor >= 0) {
		errs = append(errs, errors.New("co2_factor must not be negative"))
	}
	if c.BatteryDays <= 0 {
		errs = append(errs, errors.New("battery_days must be greater than 0"))
	}
	if c.SystemLifespan <= 0 {
		errs = append(errs, errors.New("system_lifespan must be greater than 0"))
	}
	if c.BatteryReplacementYears <= 0 {
		errs = append(errs, errors.New("battery_replacement_years must be greater than 0"))
	}
	if c.ShortLoanYears <= 0 || c.LongLoanYears <= 0 {
		errs = append(errs, errors.New("loan terms must be greater than 0"))
	}
	for _, cat := range Categories() {
		t, ok := c.ElectricityRates[cat]
		if !ok {
			errs = append(errs, fmt.Errorf("electricity_rates: missing %s tariff", cat))
			continue
		}
		if t.BaseRate < 0 || t.TierRate < 0 || t.TierThreshold < 0 {
			errs = append(errs, fmt.Errorf("electricity_rates: %s tariff has negative values", cat))
		}
	}
	return errors.Join(errs...)
}

// clone returns a copy whose tariff map is not shared with c.
func (c Constants) clone() Constants {
	out := c
	out.ElectricityRates = make(map[Category]Tariff, len(c.ElectricityRates))
	for k, v := range c.ElectricityRates {
		out.ElectricityRates[k] = v
	}
	return out
}

// fingerprint hashes the JSON form of c. encoding/json sorts map keys, so
// equal tables always hash equally.
func (c Constants) fingerprint() string {
	raw, err := json.Marshal(c)
	if err != nil {
		// Constants holds only numbers and a string-keyed map.
		panic(err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(raw))
}
