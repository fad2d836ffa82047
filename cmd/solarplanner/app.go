package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/solarafrica/solarplanner/internal/alerting"
	"github.com/solarafrica/solarplanner/internal/auth"
	"github.com/solarafrica/solarplanner/internal/cache"
	"github.com/solarafrica/solarplanner/internal/config"
	"github.com/solarafrica/solarplanner/internal/cron"
	"github.com/solarafrica/solarplanner/internal/migrate"
	"github.com/solarafrica/solarplanner/internal/notification"
	"github.com/solarafrica/solarplanner/internal/plans"
	"github.com/solarafrica/solarplanner/internal/storage"
	"github.com/solarafrica/solarplanner/pkg/solar"
)

// app holds the services shared by the long-running commands.
type app struct {
	cfg        config.Config
	store      storage.Storage
	cache      cache.Cache
	engine     *solar.Engine
	calculator *cache.Calculator
	auth       *auth.Service
	plans      *plans.Service
	alerter    *alerting.Alerter
}

func loadEngine(cfg config.Config) (*solar.Engine, error) {
	if cfg.ConstantsFile == "" {
		return solar.NewEngine(solar.DefaultConstants()), nil
	}
	c, err := solar.LoadConstants(cfg.ConstantsFile)
	if err != nil {
		return nil, fmt.Errorf("load constants: %w", err)
	}
	return solar.NewEngine(c), nil
}

func openCache(ctx context.Context, addr string) cache.Cache {
	logger := zerolog.Ctx(ctx)
	if addr == "" {
		return cache.NewMemoryCache()
	}
	rc := cache.NewRedisCache(addr)
	if err := rc.Ping(ctx); err != nil {
		logger.Warn().Err(err).Str("addr", addr).Msg("redis unreachable, using in-process cache")
		rc.Close()
		return cache.NewMemoryCache()
	}
	logger.Info().Str("addr", addr).Msg("calculation cache: redis")
	return rc
}

// openStore runs the goose migrations when auto_migrate is set and opens
// the configured backend.
func openStore(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	if cfg.AutoMigrate && cfg.DBDriver != "memory" {
		if err := migrate.Up(ctx, cfg.DBDriver, cfg.DBDSN); err != nil {
			return nil, fmt.Errorf("auto-migration failed: %w", err)
		}
	}
	st, err := storage.Open(ctx, storage.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return st, nil
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	engine, err := loadEngine(cfg)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	authSvc, err := auth.NewService(ctx, st, cfg.TokenTTL)
	if err != nil {
		st.Close()
		return nil, err
	}

	c := openCache(ctx, cfg.RedisAddr)
	notifier := notification.NewService(notification.Config{
		SendGridAPIKey: cfg.SendGridAPIKey,
		FromAddress:    cfg.MailFrom,
		FromName:       cfg.MailFromName,
	})

	return &app{
		cfg:        cfg,
		store:      st,
		cache:      c,
		engine:     engine,
		calculator: cache.NewCalculator(c, engine, cfg.CacheTTL),
		auth:       authSvc,
		alerter: alerting.NewAlerter(alerting.Config{
			WebhookURL:  cfg.AlertWebhookURL,
			WebhookType: cfg.AlertWebhookType,
			MinFailures: cfg.AlertMinFailures,
		}),
		plans: plans.NewService(plans.Options{
			Plans:       st,
			Users:       st,
			Engine:      engine,
			Notifier:    notifier,
			FrontendURL: cfg.FrontendURL,
		}),
	}, nil
}

func (a *app) worker() *cron.Worker {
	return &cron.Worker{
		Store:    a.store,
		Recalc:   a.plans,
		Schedule: a.cfg.RecalcSchedule,
		Alerter:  a.alerter,
	}
}

func (a *app) Close() error {
	return errors.Join(a.cache.Close(), a.store.Close())
}
