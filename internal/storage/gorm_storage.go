package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type GormStorage struct {
	db     *gorm.DB
	locker *pgLocker
	// local serves sqlite, which has no advisory locks.
	local localLocks
}

func NewGormStorage(ctx context.Context, driver, dsn string) (*GormStorage, error) {
	var gormDialector gorm.Dialector
	switch driver {
	case "postgres":
		gormDialector = postgres.Open(dsn)
	case "sqlite":
		gormDialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := gorm.Open(gormDialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	st := &GormStorage{db: db}
	if driver == "postgres" {
		st.locker, err = newPgLocker(ctx, dsn)
		if err != nil {
			st.Close()
			return nil, err
		}
	}
	return st, nil
}

// Migrate brings the schema up to date with the models. Production
// deployments run the goose migrations instead.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&Plan{},
		&PlanDevice{},
		&Calculation{},
		&User{},
		&Token{},
		&CasbinRule{},
		&Setting{},
		&ScheduledJob{},
	)
}

func notFound[T any](v *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func orderedDevices(db *gorm.DB) *gorm.DB {
	return db.Order("position asc")
}

// Plans

func (s *GormStorage) CreatePlan(ctx context.Context, p Plan) error {
	p.Devices = positioned(p.ID, p.Devices)
	return s.db.WithContext(ctx).Create(&p).Error
}

func (s *GormStorage) GetPlan(ctx context.Context, id string) (*Plan, error) {
	var p Plan
	err := s.db.WithContext(ctx).Preload("Devices", orderedDevices).First(&p, "id = ?", id).Error
	return notFound(&p, err)
}

func (s *GormStorage) GetPlanByShareToken(ctx context.Context, token string) (*Plan, error) {
	var p Plan
	err := s.db.WithContext(ctx).Preload("Devices", orderedDevices).First(&p, "share_token = ?", token).Error
	return notFound(&p, err)
}

func (s *GormStorage) ListPlans(ctx context.Context, q PlanQuery) ([]Plan, int64, error) {
	if !SortColumns[q.SortBy] {
		return nil, 0, fmt.Errorf("unsupported sort column %q", q.SortBy)
	}
	base := s.db.WithContext(ctx).Model(&Plan{}).Where("user_id = ?", q.UserID).Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var plans []Plan
	err := base.Preload("Devices", orderedDevices).
		Order(clause.OrderByColumn{Column: clause.Column{Name: q.SortBy}, Desc: q.Desc}).
		Order("id").
		Offset(q.Offset).
		Limit(q.Limit).
		Find(&plans).Error
	return plans, total, err
}

func (s *GormStorage) ListPlanIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&Plan{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

func (s *GormStorage) UpdatePlan(ctx context.Context, p Plan) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Omit(clause.Associations).Save(&p)
		if res.Error != nil {
			return res.Error
		}
		if err := tx.Where("plan_id = ?", p.ID).Delete(&PlanDevice{}).Error; err != nil {
			return err
		}
		if len(p.Devices) == 0 {
			return nil
		}
		devices := positioned(p.ID, p.Devices)
		return tx.Create(&devices).Error
	})
}

func (s *GormStorage) DeletePlan(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("plan_id = ?", id).Delete(&Calculation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("plan_id = ?", id).Delete(&PlanDevice{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Plan{}, "id = ?", id).Error
	})
}

func (s *GormStorage) SaveCalculation(ctx context.Context, c Calculation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(&c).Error
}

func (s *GormStorage) LatestCalculation(ctx context.Context, planID string) (*Calculation, error) {
	var c Calculation
	err := s.db.WithContext(ctx).Order("id desc").First(&c, "plan_id = ?", planID).Error
	return notFound(&c, err)
}

// Users

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// dialects without error translation
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

func (s *GormStorage) CreateUser(ctx context.Context, user User) error {
	err := s.db.WithContext(ctx).Create(&user).Error
	if err != nil && isDuplicate(err) {
		return fmt.Errorf("%w: email %s already registered", ErrDuplicate, user.Email)
	}
	return err
}

func (s *GormStorage) UpdateUser(ctx context.Context, user User) error {
	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"name":       user.Name,
		"phone":      user.Phone,
		"updated_at": user.UpdatedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s not found", user.ID)
	}
	return nil
}

func (s *GormStorage) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	return notFound(&user, err)
}

func (s *GormStorage) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error
	return notFound(&user, err)
}

// Tokens

func (s *GormStorage) CreateToken(ctx context.Context, token Token) error {
	return s.db.WithContext(ctx).Create(&token).Error
}

func (s *GormStorage) GetTokenByHash(ctx context.Context, hash string) (*Token, error) {
	var token Token
	err := s.db.WithContext(ctx).First(&token, "token_hash = ?", hash).Error
	return notFound(&token, err)
}

func (s *GormStorage) ListTokens(ctx context.Context, userID string) ([]Token, error) {
	var tokens []Token
	result := s.db.WithContext(ctx).Find(&tokens, "user_id = ?", userID)
	return tokens, result.Error
}

func (s *GormStorage) DeleteToken(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&Token{}, "id = ?", id).Error
}

func (s *GormStorage) UpdateTokenLastUsed(ctx context.Context, id string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&Token{}).Where("id = ?", id).Update("last_used_at", now).Error
}

// Casbin Rules

func (s *GormStorage) LoadCasbinRules(ctx context.Context) ([]CasbinRule, error) {
	var rules []CasbinRule
	result := s.db.WithContext(ctx).Order("id").Find(&rules)
	return rules, result.Error
}

func (s *GormStorage) AddCasbinRule(ctx context.Context, rule CasbinRule) error {
	return s.db.WithContext(ctx).Create(&rule).Error
}

func (s *GormStorage) RemoveCasbinRule(ctx context.Context, rule CasbinRule) error {
	// Match on every field so empty trailing values are compared too.
	return s.db.WithContext(ctx).
		Where("ptype = ? AND v0 = ? AND v1 = ? AND v2 = ? AND v3 = ? AND v4 = ? AND v5 = ?",
			rule.PType, rule.V0, rule.V1, rule.V2, rule.V3, rule.V4, rule.V5).
		Delete(&CasbinRule{}).Error
}

// Settings

func (s *GormStorage) GetSetting(ctx context.Context, key string) (string, error) {
	var setting Setting
	result := s.db.WithContext(ctx).First(&setting, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", result.Error
	}
	return setting.Value, nil
}

func (s *GormStorage) SetSetting(ctx context.Context, key, value string) error {
	setting := Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&setting).Error
}

// Close & Ping

func (s *GormStorage) Close() error {
	if s.locker != nil {
		s.locker.Close()
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Scheduled Jobs & Locking

func (s *GormStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	if s.locker != nil {
		return s.locker.TryLock(ctx, key)
	}
	return s.local.tryLock(key), nil
}

func (s *GormStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	if s.locker != nil {
		return s.locker.Unlock(ctx, key)
	}
	return s.local.unlock(key), nil
}

func (s *GormStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	status := 0
	if success {
		status = 1
	}
	job := ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(&job).Error
}

func (s *GormStorage) GetScheduledJob(ctx context.Context, name string) (*ScheduledJob, error) {
	var job ScheduledJob
	err := s.db.WithContext(ctx).First(&job, "name = ?", name).Error
	return notFound(&job, err)
}
