// Package config loads the daemon's configuration via viper: environment
// variables (REPLENISHER_ prefix), an optional config file, and the
// defaults from spec §6.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved daemon configuration.
type Config struct {
	// Server
	HTTPAddr string `mapstructure:"http_addr"`

	// Database
	DatabaseDSN string `mapstructure:"database_dsn"` // empty => in-memory store
	RedisAddr   string `mapstructure:"redis_addr"`   // empty => in-memory job store

	// Auth
	JWTSigningKey   string        `mapstructure:"jwt_signing_key"`
	AdminUsername   string        `mapstructure:"admin_username"`
	AdminPasswordHash string      `mapstructure:"admin_password_hash"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`

	// External collaborators
	EstimatorURL     string  `mapstructure:"estimator_url"`
	EstimatorRateRPS float64 `mapstructure:"estimator_rate_rps"`
	DialogueURL      string  `mapstructure:"dialogue_url"`

	// Scheduler
	CycleIntervalSeconds int   `mapstructure:"cycle_interval_seconds"`
	MaxConcurrentJobs    int64 `mapstructure:"max_concurrent_jobs"`

	// Forecast (spec §4.3/§6)
	MaxExternalCalls      int     `mapstructure:"max_external_calls"`
	ExternalTimeoutSeconds int    `mapstructure:"external_timeout_seconds"`

	// Optimize (spec §4.4)
	ServiceLevel  float64 `mapstructure:"service_level"`
	MinConfidence float64 `mapstructure:"min_confidence"`

	// Finance (spec §4.5/§6)
	DefaultBudget              float64 `mapstructure:"default_budget"`
	RevenueReinvestmentRate    float64 `mapstructure:"revenue_reinvestment_rate"`
	CriticalStockROIMultiplier float64 `mapstructure:"critical_stock_roi_multiplier"`

	// Action / policy (spec §4.7/§6)
	AutoApprovalThreshold float64 `mapstructure:"auto_approval_threshold"`
	DailySpendCap         float64 `mapstructure:"daily_spend_cap"`
	SimulationMode        bool    `mapstructure:"simulation_mode"`

	MaxNegotiationRounds int `mapstructure:"max_negotiation_rounds"`
}

// Load reads configuration from (in ascending priority) defaults, an
// optional config file at configPath, and REPLENISHER_-prefixed
// environment variables.
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("replenisher")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("database_dsn", "")
	v.SetDefault("redis_addr", "")

	v.SetDefault("jwt_signing_key", "dev-signing-key-change-me")
	v.SetDefault("admin_username", "admin")
	v.SetDefault("admin_password_hash", "")
	v.SetDefault("token_ttl", time.Hour)

	v.SetDefault("estimator_url", "")
	v.SetDefault("estimator_rate_rps", 2.0)
	v.SetDefault("dialogue_url", "")

	v.SetDefault("cycle_interval_seconds", 3600)
	v.SetDefault("max_concurrent_jobs", 4)

	v.SetDefault("max_external_calls", 10)
	v.SetDefault("external_timeout_seconds", 30)

	v.SetDefault("service_level", 0.95)
	v.SetDefault("min_confidence", 0.3)

	v.SetDefault("default_budget", 600.0)
	v.SetDefault("revenue_reinvestment_rate", 0.1)
	v.SetDefault("critical_stock_roi_multiplier", 1.5)

	v.SetDefault("auto_approval_threshold", 1000.0)
	v.SetDefault("daily_spend_cap", 5000.0)
	v.SetDefault("simulation_mode", false)

	v.SetDefault("max_negotiation_rounds", 1)
}
