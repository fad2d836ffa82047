package storage

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicate is returned when a write violates a unique key, such as a
// second account with the same email.
var ErrDuplicate = errors.New("duplicate key")

// PlanStore persists plans, their device rows and calculation snapshots.
type PlanStore interface {
	CreatePlan(ctx context.Context, p Plan) error
	GetPlan(ctx context.Context, id string) (*Plan, error)
	GetPlanByShareToken(ctx context.Context, token string) (*Plan, error)
	ListPlans(ctx context.Context, q PlanQuery) ([]Plan, int64, error)
	ListPlanIDs(ctx context.Context) ([]string, error)
	// UpdatePlan rewrites the plan row and replaces its device rows.
	UpdatePlan(ctx context.Context, p Plan) error
	DeletePlan(ctx context.Context, id string) error

	SaveCalculation(ctx context.Context, c Calculation) error
	LatestCalculation(ctx context.Context, planID string) (*Calculation, error)
}

// UserStore persists accounts and API tokens.
type UserStore interface {
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// UpdateUser rewrites the profile fields of an existing account.
	UpdateUser(ctx context.Context, u User) error

	CreateToken(ctx context.Context, t Token) error
	GetTokenByHash(ctx context.Context, hash string) (*Token, error)
	ListTokens(ctx context.Context, userID string) ([]Token, error)
	DeleteToken(ctx context.Context, id string) error
	UpdateTokenLastUsed(ctx context.Context, id string) error
}

// RuleStore persists casbin policy lines.
type RuleStore interface {
	LoadCasbinRules(ctx context.Context) ([]CasbinRule, error)
	AddCasbinRule(ctx context.Context, rule CasbinRule) error
	RemoveCasbinRule(ctx context.Context, rule CasbinRule) error
}

// JobStore backs the scheduled worker: runtime settings, cross-instance
// locking and run bookkeeping.
type JobStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error)

	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error
	GetScheduledJob(ctx context.Context, name string) (*ScheduledJob, error)
}

// Storage abstracts every persistence concern of the service. Lookups that
// find nothing return (nil, nil).
type Storage interface {
	PlanStore
	UserStore
	RuleStore
	JobStore

	Ping(ctx context.Context) error
	// Close releases any resources (no-op for in-memory).
	Close() error
}
