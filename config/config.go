// Package config loads and validates the hubscout configuration from
// file and environment (HUBSCOUT_* variables override file values).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hubscout/hubscout/internal/policy"
)

// Config holds all configuration for the planning service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Policy    policy.Config   `mapstructure:"policy"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
}

// GeneralConfig contains process-wide settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

func (s ServerConfig) Validate() error {
	if s.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	return nil
}

// PlannerConfig tunes the cooperative host and plan fusion.
type PlannerConfig struct {
	BudgetMS  int64   `mapstructure:"budget_ms"`
	MaxRounds int     `mapstructure:"max_rounds"`
	Floor     float64 `mapstructure:"floor"`
	MaxSeeds  int     `mapstructure:"max_seeds"`
}

func (p PlannerConfig) Validate() error {
	if p.BudgetMS < 0 {
		return fmt.Errorf("planner.budget_ms cannot be negative")
	}
	if p.MaxRounds < 0 {
		return fmt.Errorf("planner.max_rounds cannot be negative")
	}
	if p.Floor < 0 || p.Floor > 1 {
		return fmt.Errorf("planner.floor must be within [0,1]")
	}
	if p.MaxSeeds < 0 {
		return fmt.Errorf("planner.max_seeds cannot be negative")
	}
	return nil
}

// Budget converts the configured millisecond budget to a duration, or
// nil when unset so the host default applies.
func (p PlannerConfig) Budget() *time.Duration {
	if p.BudgetMS == 0 {
		return nil
	}
	d := time.Duration(p.BudgetMS) * time.Millisecond
	return &d
}

// StorageConfig groups the persistence backends.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig configures the history and audit store.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN assembles a connection string, preferring the explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig configures the scheduler lock backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Validate() error {
	if r.DB < 0 {
		return fmt.Errorf("storage.redis.db cannot be negative")
	}
	return nil
}

// TelemetryConfig controls the metrics surface.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ScheduleConfig drives recurring planning runs.
type ScheduleConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Targets []ScheduleTarget `mapstructure:"targets"`
}

// ScheduleTarget is one site planned on a cadence. Cron accepts
// standard 5-field expressions plus @hourly and @daily.
type ScheduleTarget struct {
	SiteURL string `mapstructure:"site_url"`
	Cron    string `mapstructure:"cron"`
}

func (s ScheduleConfig) Validate() error {
	if !s.Enabled {
		return nil
	}
	for i, t := range s.Targets {
		if t.SiteURL == "" {
			return fmt.Errorf("schedule.targets[%d].site_url is required", i)
		}
	}
	return nil
}

// LoadConfig reads configuration from path (or the default search
// locations when empty) and panics on invalid configuration, matching
// the fail-fast behavior expected at process start.
func LoadConfig(path string) *Config {
	if path == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("HUBSCOUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	if err := config.Validate(); err != nil {
		panic(err)
	}
	return &config
}

// Validate runs every section's validation.
func (c Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Planner.Validate(); err != nil {
		return err
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Redis.Validate(); err != nil {
		return err
	}
	return c.Schedule.Validate()
}
