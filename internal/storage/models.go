package storage

import "time"

// Plan is a saved load profile owned by a user.
type Plan struct {
	ID            string       `json:"id" gorm:"primaryKey;column:id"`
	UserID        string       `json:"user_id" gorm:"index;column:user_id"`
	Name          string       `json:"name" gorm:"column:name"`
	Description   string       `json:"description" gorm:"column:description"`
	Category      string       `json:"category" gorm:"column:category"`
	Location      string       `json:"location" gorm:"column:location"`
	SunlightHours float64      `json:"sunlight_hours" gorm:"column:sunlight_hours"`
	Status        string       `json:"status" gorm:"column:status"`
	IsPublic      bool         `json:"is_public" gorm:"column:is_public"`
	ShareToken    *string      `json:"share_token,omitempty" gorm:"uniqueIndex;column:share_token"`
	Devices       []PlanDevice `json:"devices" gorm:"foreignKey:PlanID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time    `json:"created_at" gorm:"column:created_at"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"column:updated_at"`
}

// PlanDevice is one appliance line of a plan. Position keeps input order.
type PlanDevice struct {
	ID               uint    `json:"-" gorm:"primaryKey;column:id"`
	PlanID           string  `json:"-" gorm:"index;column:plan_id"`
	Position         int     `json:"position" gorm:"column:position"`
	Type             string  `json:"type" gorm:"column:type"`
	Quantity         int     `json:"quantity" gorm:"column:quantity"`
	HoursPerDay      float64 `json:"hours_per_day" gorm:"column:hours_per_day"`
	PowerConsumption int     `json:"power_consumption" gorm:"column:power_consumption"`
}

// Calculation stores an engine result for a plan as JSON. Fingerprint
// identifies the constants table the result was produced with.
type Calculation struct {
	ID          uint      `json:"-" gorm:"primaryKey;column:id"`
	PlanID      string    `json:"plan_id" gorm:"index;column:plan_id"`
	Fingerprint string    `json:"fingerprint" gorm:"column:fingerprint"`
	Payload     []byte    `json:"payload" gorm:"column:payload"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at"`
}

// PlanQuery selects one page of a user's plans. SortBy is a column name
// from SortColumns.
type PlanQuery struct {
	UserID string
	Offset int
	Limit  int
	SortBy string
	Desc   bool
}

// SortColumns lists the plan columns that may be used for ordering.
var SortColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"name":       true,
}

// User represents a registered user in the system.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;column:id"`
	Email        string    `json:"email" gorm:"uniqueIndex;column:email"`
	Name         string    `json:"name" gorm:"column:name"`
	Phone        string    `json:"phone,omitempty" gorm:"column:phone"`
	PasswordHash string    `json:"-" gorm:"column:password_hash"`
	Role         string    `json:"role" gorm:"column:role"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// Token represents an API access token.
type Token struct {
	ID         string     `json:"id" gorm:"primaryKey;column:id"`
	UserID     string     `json:"user_id" gorm:"index;column:user_id"`
	Name       string     `json:"name" gorm:"column:name"`
	TokenHash  string     `json:"-" gorm:"uniqueIndex;column:token_hash"`
	Role       string     `json:"role" gorm:"column:role"`
	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" gorm:"column:expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" gorm:"column:last_used_at"`
}

// CasbinRule represents a policy rule for RBAC.
type CasbinRule struct {
	ID    uint   `gorm:"primaryKey"`
	PType string `json:"ptype" gorm:"column:ptype"`
	V0    string `json:"v0" gorm:"column:v0"`
	V1    string `json:"v1" gorm:"column:v1"`
	V2    string `json:"v2" gorm:"column:v2"`
	V3    string `json:"v3" gorm:"column:v3"`
	V4    string `json:"v4" gorm:"column:v4"`
	V5    string `json:"v5" gorm:"column:v5"`
}

type Setting struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

type ScheduledJob struct {
	Name           string    `gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `gorm:"column:last_run_at"`
	LastDurationMs int64     `gorm:"column:last_duration_ms"`
	LastSuccess    int       `gorm:"column:last_success"`
	LastError      string    `gorm:"column:last_error"`
}
