package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations
var embedMigrations embed.FS

// gooseLogger routes goose output through the context logger.
type gooseLogger struct {
	logger *zerolog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info().Msgf(format, v...)
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal().Msgf(format, v...)
}

func configureGoose(ctx context.Context, driver string) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetTableName("schema_migrations")
	goose.SetLogger(gooseLogger{logger: zerolog.Ctx(ctx)})

	switch driver {
	case "sqlite", "sqlite3":
		return goose.SetDialect("sqlite3")
	case "postgres", "pgx":
		return goose.SetDialect("postgres")
	}
	return fmt.Errorf("unsupported driver for goose: %s", driver)
}

func getMigrationDir(driver string) string {
	if driver == "postgres" || driver == "pgx" {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}

func openDB(driver, dsn string) (*sql.DB, error) {
	if driver == "" {
		driver = "sqlite"
	}
	if dsn == "" {
		dsn = "solarplanner.db"
	}

	// Map config driver names to database/sql driver names.
	switch driver {
	case "postgres":
		driver = "pgx"
	case "sqlite3":
		driver = "sqlite"
	}

	return sql.Open(driver, dsn)
}

func withDB(ctx context.Context, driver, dsn string, fn func(db *sql.DB, dir string) error) error {
	if err := configureGoose(ctx, driver); err != nil {
		return err
	}
	db, err := openDB(driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db, getMigrationDir(driver))
}

func Up(ctx context.Context, driver, dsn string) error {
	return withDB(ctx, driver, dsn, func(db *sql.DB, dir string) error {
		return goose.UpContext(ctx, db, dir)
	})
}

func Down(ctx context.Context, driver, dsn string) error {
	return withDB(ctx, driver, dsn, func(db *sql.DB, dir string) error {
		return goose.DownContext(ctx, db, dir)
	})
}

func Status(ctx context.Context, driver, dsn string) error {
	return withDB(ctx, driver, dsn, func(db *sql.DB, dir string) error {
		return goose.StatusContext(ctx, db, dir)
	})
}

// Version reports the schema version currently applied.
func Version(ctx context.Context, driver, dsn string) (int64, error) {
	var v int64
	err := withDB(ctx, driver, dsn, func(db *sql.DB, _ string) error {
		var err error
		v, err = goose.GetDBVersionContext(ctx, db)
		return err
	})
	return v, err
}
