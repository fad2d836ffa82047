// Package plans manages saved solar plans: their device lists, sharing, and
// the calculation snapshots the engine produces for them.
package plans

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/solarafrica/solarplanner/internal/metrics"
	"github.com/solarafrica/solarplanner/internal/notification"
	"github.com/solarafrica/solarplanner/internal/storage"
	"github.com/solarafrica/solarplanner/pkg/solar"
)

var (
	ErrNotFound     = errors.New("plan not found")
	ErrAccessDenied = errors.New("access denied")
)

// Notifier delivers share emails.
type Notifier interface {
	SendPlanShared(ctx context.Context, to string, share notification.PlanShare) error
}

type Service struct {
	plans       storage.PlanStore
	users       storage.UserStore
	engine      *solar.Engine
	notifier    Notifier
	frontendURL string
	now         func() time.Time
}

type Options struct {
	Plans       storage.PlanStore
	Users       storage.UserStore
	Engine      *solar.Engine
	Notifier    Notifier
	FrontendURL string
}

func NewService(opts Options) *Service {
	engine := opts.Engine
	if engine == nil {
		engine = solar.NewEngine(solar.DefaultConstants())
	}
	return &Service{
		plans:       opts.Plans,
		users:       opts.Users,
		engine:      engine,
		notifier:    opts.Notifier,
		frontendURL: strings.TrimRight(opts.FrontendURL, "/"),
		now:         time.Now,
	}
}

func validatePlan(name string, in solar.CalculationInput) error {
	var msgs []string
	if strings.TrimSpace(name) == "" {
		msgs = append(msgs, "Plan name is required")
	}
	msgs = append(msgs, solar.Validate(in)...)
	if len(msgs) > 0 {
		return &solar.ValidationError{Messages: msgs}
	}
	return nil
}

func invalid(msg string) error {
	return &solar.ValidationError{Messages: []string{msg}}
}

// calculate runs the engine for p and stores the snapshot.
func (s *Service) calculate(ctx context.Context, p *storage.Plan) (*solar.CalculationResult, error) {
	in := calculationInputOf(p)
	started := time.Now()
	res := s.engine.Calculate(in)
	metrics.ObserveCalculation(string(in.Category), started)

	payload, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode calculation: %w", err)
	}
	if err := s.plans.SaveCalculation(ctx, storage.Calculation{
		PlanID:      p.ID,
		Fingerprint: s.engine.Fingerprint(),
		Payload:     payload,
		CreatedAt:   s.now(),
	}); err != nil {
		return nil, fmt.Errorf("save calculation: %w", err)
	}
	return &res, nil
}

// latest returns the stored result for p, computing one without storing it
// when the plan has never been calculated.
func (s *Service) latest(ctx context.Context, p *storage.Plan) (*solar.CalculationResult, error) {
	c, err := s.plans.LatestCalculation(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		res := s.engine.Calculate(calculationInputOf(p))
		return &res, nil
	}
	var res solar.CalculationResult
	if err := json.Unmarshal(c.Payload, &res); err != nil {
		return nil, fmt.Errorf("decode calculation for plan %s: %w", p.ID, err)
	}
	return &res, nil
}

func (s *Service) Create(ctx context.Context, userID string, in PlanInput) (*Plan, error) {
	calcIn := in.calculationInput()
	if err := validatePlan(in.Name, calcIn); err != nil {
		return nil, err
	}

	now := s.now()
	p := storage.Plan{
		ID:            uuid.New().String(),
		UserID:        userID,
		Name:          strings.TrimSpace(in.Name),
		Description:   strings.TrimSpace(in.Description),
		Category:      string(in.Category),
		Location:      strings.TrimSpace(in.Location),
		SunlightHours: in.SunlightHours,
		Status:        string(StatusDraft),
		Devices:       toDeviceRows(in.Devices),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.plans.CreatePlan(ctx, p); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}

	res, err := s.calculate(ctx, &p)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("plan_id", p.ID).Str("category", p.Category).Msg("plan created")
	v := toView(&p, res)
	return &v, nil
}

func (s *Service) List(ctx context.Context, userID string, params ListParams) (*ListResult, error) {
	if params.Page == 0 {
		params.Page = 1
	}
	if params.Limit == 0 {
		params.Limit = DefaultLimit
	}
	if params.SortBy == "" {
		params.SortBy = "createdAt"
	}
	if params.SortOrder == "" {
		params.SortOrder = "desc"
	}

	var msgs []string
	if params.Page < 1 {
		msgs = append(msgs, "Page must be a positive integer")
	}
	if params.Limit < 1 || params.Limit > MaxLimit {
		msgs = append(msgs, fmt.Sprintf("Limit must be between 1 and %d", MaxLimit))
	}
	column, ok := sortColumns[params.SortBy]
	if !ok {
		msgs = append(msgs, "Sort field must be createdAt, updatedAt or name")
	}
	if params.SortOrder != "asc" && params.SortOrder != "desc" {
		msgs = append(msgs, "Sort order must be asc or desc")
	}
	if len(msgs) > 0 {
		return nil, &solar.ValidationError{Messages: msgs}
	}

	rows, total, err := s.plans.ListPlans(ctx, storage.PlanQuery{
		UserID: userID,
		Offset: (params.Page - 1) * params.Limit,
		Limit:  params.Limit,
		SortBy: column,
		Desc:   params.SortOrder == "desc",
	})
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}

	out := make([]Plan, 0, len(rows))
	for i := range rows {
		res, err := s.latest(ctx, &rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, toView(&rows[i], res))
	}

	totalPages := int(math.Ceil(float64(total) / float64(params.Limit)))
	return &ListResult{
		Plans: out,
		Pagination: Pagination{
			Page:       params.Page,
			Limit:      params.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    params.Page < totalPages,
			HasPrev:    params.Page > 1,
		},
	}, nil
}

// load fetches a plan the caller may read: their own or a public one.
func (s *Service) load(ctx context.Context, id, userID string) (*storage.Plan, error) {
	p, err := s.plans.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	if !p.IsPublic && (userID == "" || p.UserID != userID) {
		return nil, ErrAccessDenied
	}
	return p, nil
}

// loadOwned fetches a plan the caller owns.
func (s *Service) loadOwned(ctx context.Context, id, userID string) (*storage.Plan, error) {
	p, err := s.plans.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	if userID == "" || p.UserID != userID {
		return nil, ErrAccessDenied
	}
	return p, nil
}

// Get returns a plan owned by userID or any public plan. userID may be
// empty for anonymous callers.
func (s *Service) Get(ctx context.Context, id, userID string) (*Plan, error) {
	p, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	res, err := s.latest(ctx, p)
	if err != nil {
		return nil, err
	}
	v := toView(p, res)
	return &v, nil
}

func (s *Service) Update(ctx context.Context, id, userID string, u PlanUpdate) (*Plan, error) {
	p, err := s.loadOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if u.Name != nil {
		p.Name = strings.TrimSpace(*u.Name)
	}
	if u.Description != nil {
		p.Description = strings.TrimSpace(*u.Description)
	}
	if u.Category != nil {
		p.Category = string(*u.Category)
	}
	if u.Location != nil {
		p.Location = strings.TrimSpace(*u.Location)
	}
	if u.SunlightHours != nil {
		p.SunlightHours = *u.SunlightHours
	}
	if u.Devices != nil {
		p.Devices = toDeviceRows(*u.Devices)
	}
	if u.Status != nil {
		if !u.Status.Valid() {
			return nil, invalid("Status must be DRAFT, PUBLISHED or ARCHIVED")
		}
		p.Status = string(*u.Status)
	}

	if err := validatePlan(p.Name, calculationInputOf(p)); err != nil {
		return nil, err
	}

	p.UpdatedAt = s.now()
	if err := s.plans.UpdatePlan(ctx, *p); err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}

	var res *solar.CalculationResult
	if u.affectsCalculation() {
		res, err = s.calculate(ctx, p)
	} else {
		res, err = s.latest(ctx, p)
	}
	if err != nil {
		return nil, err
	}
	v := toView(p, res)
	return &v, nil
}

func (s *Service) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.loadOwned(ctx, id, userID); err != nil {
		return err
	}
	if err := s.plans.DeletePlan(ctx, id); err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	zerolog.Ctx(ctx).Info().Str("plan_id", id).Msg("plan deleted")
	return nil
}

// Duplicate copies a readable plan into a new draft owned by userID. An
// empty newName yields "<name> (Copy)".
func (s *Service) Duplicate(ctx context.Context, id, userID, newName string) (*Plan, error) {
	src, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(newName)
	if name == "" {
		name = src.Name + " (Copy)"
	}
	return s.Create(ctx, userID, PlanInput{
		Name:          name,
		Description:   src.Description,
		Category:      solar.Category(src.Category),
		Location:      src.Location,
		SunlightHours: src.SunlightHours,
		Devices:       fromDeviceRows(src.Devices),
	})
}

// Share makes the plan public under a fresh share token and, when recipient
// is set, emails the link. A failed email does not undo the share.
func (s *Service) Share(ctx context.Context, id, userID, recipient string) (*ShareResult, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient != "" {
		if _, err := mail.ParseAddress(recipient); err != nil {
			return nil, invalid("Recipient must be a valid email address")
		}
	}

	p, err := s.loadOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	token := uuid.New().String()
	p.ShareToken = &token
	p.IsPublic = true
	p.UpdatedAt = s.now()
	if err := s.plans.UpdatePlan(ctx, *p); err != nil {
		return nil, fmt.Errorf("share plan: %w", err)
	}

	out := &ShareResult{
		ShareToken: token,
		ShareURL:   s.frontendURL + "/shared/" + token,
	}
	if recipient == "" || s.notifier == nil {
		return out, nil
	}

	res, err := s.latest(ctx, p)
	if err != nil {
		return nil, err
	}
	share := notification.PlanShare{
		PlanName:        p.Name,
		Category:        p.Category,
		Location:        p.Location,
		PanelSize:       res.PanelSize,
		BatteryCapacity: res.BatteryCapacity,
		UpfrontCost:     res.UpfrontCost,
		PaybackPeriod:   res.PaybackPeriod,
		URL:             out.ShareURL,
	}
	if s.users != nil {
		if u, err := s.users.GetUser(ctx, userID); err == nil && u != nil {
			share.SharedBy = u.Name
		}
	}
	if err := s.notifier.SendPlanShared(ctx, recipient, share); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("plan_id", p.ID).Msg("failed to send share email")
		return out, nil
	}
	out.EmailSent = true
	return out, nil
}

func (s *Service) GetShared(ctx context.Context, token string) (*Plan, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNotFound
	}
	p, err := s.plans.GetPlanByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.IsPublic {
		return nil, ErrNotFound
	}
	res, err := s.latest(ctx, p)
	if err != nil {
		return nil, err
	}
	v := toView(p, res)
	return &v, nil
}

// Recalculate re-runs the engine for a stored plan and saves a new snapshot
// only when the result differs from the latest one.
func (s *Service) Recalculate(ctx context.Context, id string) (bool, error) {
	p, err := s.plans.GetPlan(ctx, id)
	if err != nil {
		return false, err
	}
	if p == nil {
		return false, ErrNotFound
	}

	payload, err := json.Marshal(s.engine.Calculate(calculationInputOf(p)))
	if err != nil {
		return false, err
	}
	prev, err := s.plans.LatestCalculation(ctx, id)
	if err != nil {
		return false, err
	}
	if prev != nil && bytes.Equal(prev.Payload, payload) {
		return false, nil
	}

	if err := s.plans.SaveCalculation(ctx, storage.Calculation{
		PlanID:      id,
		Fingerprint: s.engine.Fingerprint(),
		Payload:     payload,
		CreatedAt:   s.now(),
	}); err != nil {
		return false, fmt.Errorf("save calculation: %w", err)
	}
	return true, nil
}

// RecalculateAll runs Recalculate over every stored plan. Individual
// failures are counted and logged; the first one is returned after the
// pass completes.
func (s *Service) RecalculateAll(ctx context.Context) (RecalcSummary, error) {
	logger := zerolog.Ctx(ctx)
	var sum RecalcSummary

	ids, err := s.plans.ListPlanIDs(ctx)
	if err != nil {
		return sum, fmt.Errorf("list plans: %w", err)
	}

	var firstErr error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Total++
		changed, err := s.Recalculate(ctx, id)
		if err != nil {
			sum.Failed++
			sum.Failures = append(sum.Failures, RecalcFailure{PlanID: id, Error: err.Error()})
			logger.Error().Err(err).Str("plan_id", id).Msg("recalculate plan failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if changed {
			sum.Changed++
		}
		metrics.PlansRecalculatedTotal.WithLabelValues(fmt.Sprint(changed)).Inc()
	}
	return sum, firstErr
}
