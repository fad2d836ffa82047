package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable the service reads,
// e.g. SOLARPLANNER_DB_DRIVER.
const EnvPrefix = "SOLARPLANNER"

type Config struct {
	Port string `mapstructure:"port"`

	DBDriver    string `mapstructure:"db_driver"`
	DBDSN       string `mapstructure:"db_dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`

	// ConstantsFile is an optional YAML market profile layered over the
	// default engine constants.
	ConstantsFile string `mapstructure:"constants_file"`

	RedisAddr string        `mapstructure:"redis_addr"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`

	RecalcSchedule string `mapstructure:"recalc_schedule"`

	AlertWebhookURL  string `mapstructure:"alert_webhook_url"`
	AlertWebhookType string `mapstructure:"alert_webhook_type"`
	AlertMinFailures int    `mapstructure:"alert_min_failures"`

	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	MailFrom       string `mapstructure:"mail_from"`
	MailFromName   string `mapstructure:"mail_from_name"`
	FrontendURL    string `mapstructure:"frontend_url"`

	TokenTTL string `mapstructure:"token_ttl"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

var defaults = map[string]any{
	"port":               "8080",
	"db_driver":          "sqlite",
	"db_dsn":             "solarplanner.db",
	"auto_migrate":       true,
	"constants_file":     "",
	"redis_addr":         "",
	"cache_ttl":          "15m",
	"recalc_schedule":    "3600",
	"alert_webhook_url":  "",
	"alert_webhook_type": "",
	"alert_min_failures": 1,
	"sendgrid_api_key":   "",
	"mail_from":          "noreply@solarplanner.africa",
	"mail_from_name":     "Solar Planner",
	"frontend_url":       "http://localhost:3000",
	"token_ttl":          "30d",
	"log_level":          "info",
	"log_format":         "json",
}

// Load builds a Config from defaults, an optional config file and
// SOLARPLANNER_* environment variables, in increasing precedence.
// An empty path skips the file.
func Load(path string) (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.DBDriver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported db_driver %q (want memory, sqlite or postgres)", c.DBDriver)
	}
	if c.DBDriver != "memory" && c.DBDSN == "" {
		return fmt.Errorf("db_dsn is required for db_driver %q", c.DBDriver)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must not be negative")
	}
	switch c.AlertWebhookType {
	case "", "slack", "discord", "generic":
	default:
		return fmt.Errorf("unsupported alert_webhook_type %q", c.AlertWebhookType)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log_format %q", c.LogFormat)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
