package solar

import "strings"

// CatalogDevice is a reference appliance used to pre-fill device choices.
type CatalogDevice struct {
	Name             string `json:"name"`
	Category         string `json:"category"`
	PowerConsumption int    `json:"powerConsumption"` // watts
	Icon             string `json:"icon"`
	Description      string `json:"description"`
}

var catalog = []CatalogDevice{
	{Name: "LED Light Bulb", Category: "lighting", PowerConsumption: 10, Icon: "💡", Description: "Energy efficient LED bulb"},
	{Name: "Phone Charger", Category: "electronics", PowerConsumption: 5, Icon: "📱", Description: "Mobile phone charger"},
	{Name: "Radio", Category: "electronics", PowerConsumption: 15, Icon: "📻", Description: "AM/FM radio receiver"},
	{Name: "TV", Category: "electronics", PowerConsumption: 100, Icon: "📺", Description: "LCD/LED television"},
	{Name: "Laptop", Category: "electronics", PowerConsumption: 65, Icon: "💻", Description: "Laptop computer"},
	{Name: "Refrigerator", Category: "appliances", PowerConsumption: 150, Icon: "🧊", Description: "Energy efficient refrigerator"},
	{Name: "Fan", Category: "appliances", PowerConsumption: 75, Icon: "🌀", Description: "Ceiling or table fan"},
	{Name: "Water Pump", Category: "industrial", PowerConsumption: 500, Icon: "💧", Description: "Water pumping system"},
	{Name: "Washing Machine", Category: "appliances", PowerConsumption: 400, Icon: "👕", Description: "Automatic washing machine"},
	{Name: "Air Conditioner", Category: "appliances", PowerConsumption: 1200, Icon: "❄️", Description: "Split AC unit"},
	{Name: "Microwave", Category: "appliances", PowerConsumption: 800, Icon: "📦", Description: "Microwave oven"},
	{Name: "Electric Iron", Category: "appliances", PowerConsumption: 1000, Icon: "👔", Description: "Electric clothes iron"},
}

// Catalog returns a copy of the reference device list.
func Catalog() []CatalogDevice {
	out := make([]CatalogDevice, len(catalog))
	copy(out, catalog)
	return out
}

// LookupDevice finds a catalog entry by name, ignoring case.
func LookupDevice(name string) (CatalogDevice, bool) {
	for _, d := range catalog {
		if strings.EqualFold(d.Name, strings.TrimSpace(name)) {
			return d, true
		}
	}
	return CatalogDevice{}, false
}
