// Package config loads service settings from config.yaml and CONCILIACION_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	App            AppConfig
	Log            LogConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Upload         UploadConfig
	Reconciliation ReconciliationConfig
}

// AppConfig identifies the running service.
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// LogConfig selects level, encoder and sink.
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// DatabaseConfig picks the dataset store backend.
type DatabaseConfig struct {
	Driver string // sqlite or postgres
	DSN    string
}

// RedisConfig configures the result cache.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// UploadConfig limits spreadsheet uploads.
type UploadConfig struct {
	MaxBytes int64
}

// ReconciliationConfig holds the matching tolerance and timing thresholds.
type ReconciliationConfig struct {
	AmountTolerance float64
	EarlyDays       int
	GraceDays       int
}

// Load reads the configuration. Priority, highest first:
// environment variables with CONCILIACION_ prefix, config.yaml, defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	return load(v)
}

// LoadFile reads the configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("CONCILIACION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(v.GetString("database.driver")),
			DSN:    v.GetString("database.dsn"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			TTL:      v.GetDuration("redis.ttl"),
		},
		Upload: UploadConfig{
			MaxBytes: v.GetInt64("upload.max_bytes"),
		},
		Reconciliation: ReconciliationConfig{
			AmountTolerance: v.GetFloat64("reconciliation.amount_tolerance"),
			EarlyDays:       v.GetInt("reconciliation.early_days"),
			GraceDays:       v.GetInt("reconciliation.grace_days"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "conciliacion-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8084")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "conciliacion.db")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)
	v.SetDefault("upload.max_bytes", 10<<20)
	v.SetDefault("reconciliation.amount_tolerance", 0.01)
	v.SetDefault("reconciliation.early_days", 15)
	v.SetDefault("reconciliation.grace_days", 2)
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database.driver %q: must be sqlite or postgres", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.Upload.MaxBytes <= 0 {
		return errors.New("upload.max_bytes must be positive")
	}
	if c.Reconciliation.AmountTolerance < 0 {
		return errors.New("reconciliation.amount_tolerance must not be negative")
	}
	if c.Reconciliation.EarlyDays <= 0 || c.Reconciliation.GraceDays < 0 {
		return errors.New("reconciliation.early_days must be positive and grace_days not negative")
	}
	return nil
}

// IsProduction reports whether the service runs with app.env=production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
