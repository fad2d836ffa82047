package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Config controls how the storage backend is opened.
type Config struct {
	Driver string
	DSN    string
	// AutoMigrate runs GORM AutoMigrate on open. Disable it when the schema
	// is managed by the goose migrations.
	AutoMigrate bool
}

// Open constructs a Storage based on the given configuration.
func Open(ctx context.Context, cfg Config) (Storage, error) {
	logger := zerolog.Ctx(ctx)
	drv := cfg.Driver
	if drv == "" {
		drv = "memory"
	}
	switch drv {
	case "memory":
		logger.Info().Msg("storage: using in-memory backend")
		return NewMemory(), nil

	case "sqlite", "postgres":
		logger.Info().Str("driver", drv).Msg("storage: using gorm backend")
		st, err := NewGormStorage(ctx, drv, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := st.Migrate(ctx); err != nil {
				st.Close()
				return nil, fmt.Errorf("storage migrate: %w", err)
			}
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", drv)
	}
}
