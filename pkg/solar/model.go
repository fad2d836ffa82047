package solar

// Category selects the electricity tariff schedule a plan is billed under.
type Category string

const (
	CategoryHome     Category = "HOME"
	CategoryBusiness Category = "BUSINESS"
	CategoryFarm     Category = "FARM"
)

// Categories lists every supported category in display order.
func Categories() []Category {
	return []Category{CategoryHome, CategoryBusiness, CategoryFarm}
}

// Valid reports whether c is one of the supported categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryHome, CategoryBusiness, CategoryFarm:
		return true
	}
	return false
}

// DeviceLoad is one appliance line in a consumption profile.
type DeviceLoad struct {
	Type             string  `json:"type"`
	Quantity         int     `json:"quantity"`
	HoursPerDay      float64 `json:"hoursPerDay"`
	PowerConsumption int     `json:"powerConsumption"` // watts
}

// CalculationInput is a single sizing request. Location is carried through
// for callers; only Category, SunlightHours and Devices feed the arithmetic.
type CalculationInput struct {
	Category      Category     `json:"category"`
	Location      string       `json:"location"`
	SunlightHours float64      `json:"sunlightHours"`
	Devices       []DeviceLoad `json:"devices"`
}

type CostBreakdown struct {
	Panels       int `json:"panels"`
	Battery      int `json:"battery"`
	Inverter     int `json:"inverter"`
	Installation int `json:"installation"`
}

// LoanOption is one amortized financing schedule on the net upfront cost.
type LoanOption struct {
	Term           int     `json:"term"` // years
	MonthlyPayment int     `json:"monthlyPayment"`
	TotalPayment   int     `json:"totalPayment"`
	InterestRate   float64 `json:"interestRate"`
}

type FinancingOptions struct {
	Loan5Year  LoanOption `json:"loan5Year"`
	Loan10Year LoanOption `json:"loan10Year"`
	// CashPayback is the number of months of gross bill savings needed to
	// cover the net upfront cost. Nil when there are no savings to divide by.
	CashPayback *int `json:"cashPayback"`
}

// CalculationResult is the display-ready output of Engine.Calculate.
// Money and counts are whole currency units; EnergyDemand and PaybackPeriod
// carry one decimal place.
type CalculationResult struct {
	EnergyDemand    float64 `json:"energyDemand"`    // kWh/day
	PanelSize       int     `json:"panelSize"`       // kW
	BatteryCapacity int     `json:"batteryCapacity"` // kWh
	InverterSize    int     `json:"inverterSize"`    // kW

	UpfrontCost            int           `json:"upfrontCost"`
	NetUpfrontCost         int           `json:"netUpfrontCost"`
	CostBreakdown          CostBreakdown `json:"costBreakdown"`
	CurrentElectricityBill int           `json:"currentElectricityBill"` // monthly
	AnnualSavings          int           `json:"annualSavings"`
	NetAnnualSavings       int           `json:"netAnnualSavings"`
	MaintenanceCost        int           `json:"maintenanceCost"` // annual
	BatteryReplacementCost int           `json:"batteryReplacementCost"`

	PaybackPeriod float64 `json:"paybackPeriod"` // years
	// ROI is the lifetime return in percent. Nil when total costs are zero.
	ROI          *int `json:"roi"`
	CO2Reduction int  `json:"co2Reduction"` // kg/year

	FinancingOptions    FinancingOptions `json:"financingOptions"`
	GovernmentIncentive float64          `json:"governmentIncentive"`
}
