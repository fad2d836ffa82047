package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage implementation, useful for tests and
// simple single-process deployments.
type MemoryStorage struct {
	mu       sync.RWMutex
	plans    map[string]Plan
	calcs    map[string][]Calculation
	calcSeq  uint
	users    map[string]User
	tokens   map[string]Token
	rules    []CasbinRule
	ruleSeq  uint
	settings map[string]string
	jobs     map[string]ScheduledJob
	locks    localLocks
}

// NewMemory returns an empty MemoryStorage.
func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		plans:    make(map[string]Plan),
		calcs:    make(map[string][]Calculation),
		users:    make(map[string]User),
		tokens:   make(map[string]Token),
		settings: make(map[string]string),
		jobs:     make(map[string]ScheduledJob),
	}
}

func (m *MemoryStorage) Close() error { return nil }

func (m *MemoryStorage) Ping(ctx context.Context) error { return nil }

// positioned returns a copy of devices stamped with their plan and order.
func positioned(planID string, devices []PlanDevice) []PlanDevice {
	out := make([]PlanDevice, len(devices))
	for i, d := range devices {
		d.ID = 0
		d.PlanID = planID
		d.Position = i
		out[i] = d
	}
	return out
}

func clonePlan(p Plan) Plan {
	p.Devices = append([]PlanDevice(nil), p.Devices...)
	if p.ShareToken != nil {
		tok := *p.ShareToken
		p.ShareToken = &tok
	}
	return p
}

// Plans

func (m *MemoryStorage) CreatePlan(ctx context.Context, p Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[p.ID]; ok {
		return fmt.Errorf("plan %s already exists", p.ID)
	}
	p = clonePlan(p)
	p.Devices = positioned(p.ID, p.Devices)
	m.plans[p.ID] = p
	return nil
}

func (m *MemoryStorage) GetPlan(ctx context.Context, id string) (*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, nil
	}
	cp := clonePlan(p)
	return &cp, nil
}

func (m *MemoryStorage) GetPlanByShareToken(ctx context.Context, token string) (*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.plans {
		if p.ShareToken != nil && *p.ShareToken == token {
			cp := clonePlan(p)
			return &cp, nil
		}
	}
	return nil, nil
}

func planLess(a, b Plan, column string) int {
	switch column {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func (m *MemoryStorage) ListPlans(ctx context.Context, q PlanQuery) ([]Plan, int64, error) {
	if !SortColumns[q.SortBy] {
		return nil, 0, fmt.Errorf("unsupported sort column %q", q.SortBy)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var owned []Plan
	for _, p := range m.plans {
		if p.UserID == q.UserID {
			owned = append(owned, p)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		c := planLess(owned[i], owned[j], q.SortBy)
		if q.Desc {
			c = -c
		}
		if c == 0 {
			return owned[i].ID < owned[j].ID
		}
		return c < 0
	})

	total := int64(len(owned))
	start := min(q.Offset, len(owned))
	end := len(owned)
	if q.Limit > 0 {
		end = min(start+q.Limit, len(owned))
	}
	out := make([]Plan, 0, end-start)
	for _, p := range owned[start:end] {
		out = append(out, clonePlan(p))
	}
	return out, total, nil
}

func (m *MemoryStorage) ListPlanIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.plans))
	for id := range m.plans {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStorage) UpdatePlan(ctx context.Context, p Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[p.ID]; !ok {
		return fmt.Errorf("plan %s not found", p.ID)
	}
	p = clonePlan(p)
	p.Devices = positioned(p.ID, p.Devices)
	m.plans[p.ID] = p
	return nil
}

func (m *MemoryStorage) DeletePlan(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.plans, id)
	delete(m.calcs, id)
	return nil
}

func (m *MemoryStorage) SaveCalculation(ctx context.Context, c Calculation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calcSeq++
	c.ID = m.calcSeq
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.Payload = append([]byte(nil), c.Payload...)
	m.calcs[c.PlanID] = append(m.calcs[c.PlanID], c)
	return nil
}

func (m *MemoryStorage) LatestCalculation(ctx context.Context, planID string) (*Calculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.calcs[planID]
	if len(list) == 0 {
		return nil, nil
	}
	cp := list[len(list)-1]
	cp.Payload = append([]byte(nil), cp.Payload...)
	return &cp, nil
}

// Users

func (m *MemoryStorage) CreateUser(ctx context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("%w: email %s already registered", ErrDuplicate, user.Email)
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *MemoryStorage) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MemoryStorage) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) UpdateUser(ctx context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[user.ID]
	if !ok {
		return fmt.Errorf("user %s not found", user.ID)
	}
	existing.Name = user.Name
	existing.Phone = user.Phone
	existing.UpdatedAt = user.UpdatedAt
	m.users[user.ID] = existing
	return nil
}

// Tokens

func (m *MemoryStorage) CreateToken(ctx context.Context, token Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.ID] = token
	return nil
}

func (m *MemoryStorage) GetTokenByHash(ctx context.Context, hash string) (*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tokens {
		if t.TokenHash == hash {
			cp := t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) ListTokens(ctx context.Context, userID string) ([]Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Token
	for _, t := range m.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStorage) DeleteToken(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, id)
	return nil
}

func (m *MemoryStorage) UpdateTokenLastUsed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[id]; ok {
		now := time.Now()
		t.LastUsedAt = &now
		m.tokens[id] = t
	}
	return nil
}

// Casbin Rules

func (m *MemoryStorage) LoadCasbinRules(ctx context.Context) ([]CasbinRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]CasbinRule(nil), m.rules...), nil
}

func (m *MemoryStorage) AddCasbinRule(ctx context.Context, rule CasbinRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ruleSeq++
	rule.ID = m.ruleSeq
	m.rules = append(m.rules, rule)
	return nil
}

func (m *MemoryStorage) RemoveCasbinRule(ctx context.Context, rule CasbinRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule.ID = 0
	kept := m.rules[:0]
	for _, r := range m.rules {
		r2 := r
		r2.ID = 0
		if r2 != rule {
			kept = append(kept, r)
		}
	}
	m.rules = kept
	return nil
}

// Settings

func (m *MemoryStorage) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings[key], nil
}

func (m *MemoryStorage) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

// Scheduled Jobs & Locking

func (m *MemoryStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return m.locks.tryLock(key), nil
}

func (m *MemoryStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return m.locks.unlock(key), nil
}

func (m *MemoryStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := 0
	if success {
		status = 1
	}
	m.jobs[name] = ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
	return nil
}

func (m *MemoryStorage) GetScheduledJob(ctx context.Context, name string) (*ScheduledJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[name]
	if !ok {
		return nil, nil
	}
	return &j, nil
}
