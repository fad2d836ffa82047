// Package solar sizes off-grid and hybrid solar installations and projects
// their costs, savings and financing from a household or business load
// profile. Everything in it is pure computation.
package solar

import "math"

// Engine sizes a solar installation and models its finances from a fixed
// constants table. An Engine holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	c           Constants
	fingerprint string
}

// NewEngine returns an Engine bound to a private copy of c.
func NewEngine(c Constants) *Engine {
	cp := c.clone()
	return &Engine{c: cp, fingerprint: cp.fingerprint()}
}

var defaultEngine = NewEngine(DefaultConstants())

// Calculate runs the default engine. See Engine.Calculate.
func Calculate(in CalculationInput) CalculationResult {
	return defaultEngine.Calculate(in)
}

// Constants returns a copy of the table the engine was built with.
func (e *Engine) Constants() Constants {
	return e.c.clone()
}

// Fingerprint identifies the constants table. Two engines with equal
// tables produce equal fingerprints and therefore equal results.
func (e *Engine) Fingerprint() string {
	return e.fingerprint
}

// Sizing holds the unrounded component sizes for a load profile.
type Sizing struct {
	EnergyDemand    float64 // kWh/day
	PanelSize       float64 // kW
	BatteryCapacity float64 // kWh
	InverterSize    float64 // kW
}

// Costs holds the unrounded cost lines for a Sizing.
type Costs struct {
	Panels       float64
	Battery      float64
	Inverter     float64
	Installation float64
}

// Total is the gross upfront cost before incentives.
func (c Costs) Total() float64 {
	return c.Panels + c.Battery + c.Inverter + c.Installation
}

// DailyConsumptionWh sums watts x quantity x hours over all devices.
func DailyConsumptionWh(devices []DeviceLoad) float64 {
	var total float64
	for _, d := range devices {
		total += float64(d.PowerConsumption) * float64(d.Quantity) * d.HoursPerDay
	}
	return total
}

// Size derives panel, battery and inverter ratings for a daily demand in kWh.
func (e *Engine) Size(energyDemand, sunlightHours float64) Sizing {
	panel := (energyDemand / sunlightHours) / e.c.SystemEfficiency * e.c.PanelSafetyMargin
	return Sizing{
		EnergyDemand:    energyDemand,
		PanelSize:       panel,
		BatteryCapacity: energyDemand * float64(e.c.BatteryDays) * e.c.DepthOfDischargeMargin,
		InverterSize:    panel * e.c.InverterOversize,
	}
}

// Price turns a Sizing into cost lines.
func (e *Engine) Price(s Sizing) Costs {
	panels := s.PanelSize * e.c.PanelCostPerKW
	battery := s.BatteryCapacity * e.c.BatteryCostPerKWh
	inverter := s.InverterSize * e.c.InverterCostPerKW
	return Costs{
		Panels:       panels,
		Battery:      battery,
		Inverter:     inverter,
		Installation: (panels + battery + inverter) * e.c.InstallationCostPercentage,
	}
}

// MonthlyBill prices a monthly consumption under the category's tariff.
// Unknown categories bill nothing.
func (e *Engine) MonthlyBill(category Category, monthlyKWh float64) float64 {
	t, ok := e.c.ElectricityRates[category]
	if !ok {
		return 0
	}
	return t.MonthlyBill(monthlyKWh)
}

// replacementEvents is the number of battery cycles that fit in the
// system lifetime, as a fraction. The reserve is spread evenly over it.
func (e *Engine) replacementEvents() float64 {
	return float64(e.c.SystemLifespan) / float64(e.c.BatteryReplacementYears)
}

// BatteryReplacementCost is the lifetime reserve for swapping out a battery
// whose original cost was batteryCost.
func (e *Engine) BatteryReplacementCost(batteryCost float64) float64 {
	replacements := math.Floor(e.replacementEvents())
	return replacements * batteryCost * e.c.BatteryReplacementPriceFactor
}

// PaybackYears simulates cumulative savings year by year and returns the
// first year in which they cover netUpfrontCost. Each battery replacement
// year before the end of life deducts an equal share of the replacement
// reserve. The result is capped at the system lifespan.
func (e *Engine) PaybackYears(netUpfrontCost, netAnnualSavings, replacementCost float64) int {
	perEvent := replacementCost / e.replacementEvents()
	var cumulative float64
	year := 0
	for cumulative < netUpfrontCost && year < e.c.SystemLifespan {
		year++
		cumulative += netAnnualSavings
		if year%e.c.BatteryReplacementYears == 0 && year < e.c.SystemLifespan {
			cumulative -= perEvent
		}
	}
	return year
}

// MonthlyLoanPayment is the level payment that amortizes principal over
// months at annualRate. A zero rate splits the principal evenly.
func MonthlyLoanPayment(principal, annualRate float64, months int) float64 {
	if months <= 0 {
		return 0
	}
	if annualRate == 0 {
		return principal / float64(months)
	}
	r := annualRate / 12
	growth := math.Pow(1+r, float64(months))
	return principal * r * growth / (growth - 1)
}

func (e *Engine) loan(principal float64, years int) LoanOption {
	months := years * 12
	payment := MonthlyLoanPayment(principal, e.c.FinancingInterestRate, months)
	return LoanOption{
		Term:           years,
		MonthlyPayment: roundInt(payment),
		TotalPayment:   roundInt(payment * float64(months)),
		InterestRate:   e.c.FinancingInterestRate,
	}
}

// Calculate sizes the system for in and projects its costs and returns.
// Intermediate values stay in floating point; rounding happens only here,
// at the output boundary. Callers are expected to have run Validate first;
// the result for invalid input is not meaningful.
func (e *Engine) Calculate(in CalculationInput) CalculationResult {
	energyDemand := DailyConsumptionWh(in.Devices) / 1000

	size := e.Size(energyDemand, in.SunlightHours)
	costs := e.Price(size)
	upfront := costs.Total()
	netUpfront := upfront * (1 - e.c.GovernmentIncentive)

	bill := e.MonthlyBill(in.Category, energyDemand*e.c.DaysPerMonth)
	annualSavings := bill * 12
	maintenance := upfront * e.c.MaintenanceCostPercentage
	netAnnualSavings := annualSavings - maintenance

	replacement := e.BatteryReplacementCost(costs.Battery)
	payback := e.PaybackYears(netUpfront, netAnnualSavings, replacement)

	totalSavings := netAnnualSavings * float64(e.c.SystemLifespan)
	totalCosts := netUpfront + replacement
	var roi *int
	if totalCosts > 0 {
		roi = finiteInt((totalSavings - totalCosts) / totalCosts * 100)
	}

	var cashPayback *int
	if annualSavings > 0 {
		cashPayback = finiteInt(netUpfront / (annualSavings / 12))
	}

	return CalculationResult{
		EnergyDemand:    roundTenth(energyDemand),
		PanelSize:       ceilInt(size.PanelSize),
		BatteryCapacity: ceilInt(size.BatteryCapacity),
		InverterSize:    ceilInt(size.InverterSize),

		UpfrontCost:    roundInt(upfront),
		NetUpfrontCost: roundInt(netUpfront),
		CostBreakdown: CostBreakdown{
			Panels:       roundInt(costs.Panels),
			Battery:      roundInt(costs.Battery),
			Inverter:     roundInt(costs.Inverter),
			Installation: roundInt(costs.Installation),
		},
		CurrentElectricityBill: roundInt(bill),
		AnnualSavings:          roundInt(annualSavings),
		NetAnnualSavings:       roundInt(netAnnualSavings),
		MaintenanceCost:        roundInt(maintenance),
		BatteryReplacementCost: roundInt(replacement),

		PaybackPeriod: roundTenth(float64(payback)),
		ROI:           roi,
		CO2Reduction:  roundInt(energyDemand * 365 * e.c.CO2Factor),

		FinancingOptions: FinancingOptions{
			Loan5Year:   e.loan(netUpfront, e.c.ShortLoanYears),
			Loan10Year:  e.loan(netUpfront, e.c.LongLoanYears),
			CashPayback: cashPayback,
		},
		GovernmentIncentive: e.c.GovernmentIncentive,
	}
}

// roundInt rounds half up, so -2.5 becomes -2 and 2.5 becomes 3.
func roundInt(v float64) int {
	return int(math.Floor(v + 0.5))
}

func roundTenth(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}

func ceilInt(v float64) int {
	return int(math.Ceil(v))
}

func finiteInt(v float64) *int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	n := roundInt(v)
	return &n
}
