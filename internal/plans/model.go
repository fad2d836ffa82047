package plans

import (
	"time"

	"github.com/solarafrica/solarplanner/internal/storage"
	"github.com/solarafrica/solarplanner/pkg/solar"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPublished Status = "PUBLISHED"
	StatusArchived  Status = "ARCHIVED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// PlanInput is the payload for creating a plan.
type PlanInput struct {
	Name          string             `json:"name"`
	Description   string             `json:"description,omitempty"`
	Category      solar.Category     `json:"category"`
	Location      string             `json:"location"`
	SunlightHours float64            `json:"sunlightHours"`
	Devices       []solar.DeviceLoad `json:"devices"`
}

func (in PlanInput) calculationInput() solar.CalculationInput {
	return solar.CalculationInput{
		Category:      in.Category,
		Location:      in.Location,
		SunlightHours: in.SunlightHours,
		Devices:       in.Devices,
	}
}

// PlanUpdate carries a partial update. Nil fields are left unchanged.
type PlanUpdate struct {
	Name          *string             `json:"name,omitempty"`
	Description   *string             `json:"description,omitempty"`
	Category      *solar.Category     `json:"category,omitempty"`
	Location      *string             `json:"location,omitempty"`
	SunlightHours *float64            `json:"sunlightHours,omitempty"`
	Devices       *[]solar.DeviceLoad `json:"devices,omitempty"`
	Status        *Status             `json:"status,omitempty"`
}

// affectsCalculation reports whether applying u can change the engine result.
func (u PlanUpdate) affectsCalculation() bool {
	return u.Category != nil || u.Location != nil || u.SunlightHours != nil || u.Devices != nil
}

// Plan is the API view of a stored plan with its latest calculation.
type Plan struct {
	ID            string                   `json:"id"`
	UserID        string                   `json:"userId"`
	Name          string                   `json:"name"`
	Description   string                   `json:"description,omitempty"`
	Category      solar.Category           `json:"category"`
	Location      string                   `json:"location"`
	SunlightHours float64                  `json:"sunlightHours"`
	Status        Status                   `json:"status"`
	IsPublic      bool                     `json:"isPublic"`
	ShareToken    string                   `json:"shareToken,omitempty"`
	Devices       []solar.DeviceLoad       `json:"devices"`
	Calculation   *solar.CalculationResult `json:"calculation,omitempty"`
	CreatedAt     time.Time                `json:"createdAt"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

// ListParams selects a page of plans. Zero values take the defaults.
type ListParams struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// sortBy API names to storage columns
var sortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"name":      "name",
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

type ListResult struct {
	Plans      []Plan     `json:"plans"`
	Pagination Pagination `json:"pagination"`
}

type ShareResult struct {
	ShareToken string `json:"shareToken"`
	ShareURL   string `json:"shareUrl"`
	EmailSent  bool   `json:"emailSent"`
}

// RecalcSummary reports one pass over every stored plan.
type RecalcSummary struct {
	Total    int             `json:"total"`
	Changed  int             `json:"changed"`
	Failed   int             `json:"failed"`
	Failures []RecalcFailure `json:"failures,omitempty"`
}

type RecalcFailure struct {
	PlanID string `json:"planId"`
	Error  string `json:"error"`
}

func toDeviceRows(devices []solar.DeviceLoad) []storage.PlanDevice {
	rows := make([]storage.PlanDevice, len(devices))
	for i, d := range devices {
		rows[i] = storage.PlanDevice{
			Position:         i,
			Type:             d.Type,
			Quantity:         d.Quantity,
			HoursPerDay:      d.HoursPerDay,
			PowerConsumption: d.PowerConsumption,
		}
	}
	return rows
}

func fromDeviceRows(rows []storage.PlanDevice) []solar.DeviceLoad {
	devices := make([]solar.DeviceLoad, len(rows))
	for i, r := range rows {
		devices[i] = solar.DeviceLoad{
			Type:             r.Type,
			Quantity:         r.Quantity,
			HoursPerDay:      r.HoursPerDay,
			PowerConsumption: r.PowerConsumption,
		}
	}
	return devices
}

func calculationInputOf(p *storage.Plan) solar.CalculationInput {
	return solar.CalculationInput{
		Category:      solar.Category(p.Category),
		Location:      p.Location,
		SunlightHours: p.SunlightHours,
		Devices:       fromDeviceRows(p.Devices),
	}
}

func toView(p *storage.Plan, calc *solar.CalculationResult) Plan {
	v := Plan{
		ID:            p.ID,
		UserID:        p.UserID,
		Name:          p.Name,
		Description:   p.Description,
		Category:      solar.Category(p.Category),
		Location:      p.Location,
		SunlightHours: p.SunlightHours,
		Status:        Status(p.Status),
		IsPublic:      p.IsPublic,
		Devices:       fromDeviceRows(p.Devices),
		Calculation:   calc,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.ShareToken != nil {
		v.ShareToken = *p.ShareToken
	}
	return v
}
