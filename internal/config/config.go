package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	State      StateConfig      `yaml:"state" mapstructure:"state"`
	Limits     LimitsConfig     `yaml:"limits" mapstructure:"limits"`
	Abuse      AbuseConfig      `yaml:"abuse" mapstructure:"abuse"`
	Budget     BudgetConfig     `yaml:"budget" mapstructure:"budget"`
	KillSwitch KillSwitchConfig `yaml:"killswitch" mapstructure:"killswitch"`
	Jobs       JobsConfig       `yaml:"jobs" mapstructure:"jobs"`
	Poll       PollConfig       `yaml:"poll" mapstructure:"poll"`
	Refine     RefineConfig     `yaml:"refine" mapstructure:"refine"`
	Admin      AdminConfig      `yaml:"admin" mapstructure:"admin"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StateConfig configures the shared state store backend.
// Driver is one of "memory", "sqlite", "postgres".
type StateConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LimitsConfig holds per-identity rate limits across the three tiers.
type LimitsConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	RequestsPerHour   int `yaml:"requests_per_hour" mapstructure:"requests_per_hour"`
	RequestsPerDay    int `yaml:"requests_per_day" mapstructure:"requests_per_day"`
}

// AbuseConfig configures rapid-resubmission detection.
type AbuseConfig struct {
	ResubmissionThreshold int `yaml:"resubmission_threshold" mapstructure:"resubmission_threshold"`
	ResubmissionWindowSec int `yaml:"resubmission_window_secs" mapstructure:"resubmission_window_secs"`
}

// ResubmissionWindow returns the abuse window as a duration.
func (c AbuseConfig) ResubmissionWindow() time.Duration {
	return time.Duration(c.ResubmissionWindowSec) * time.Second
}

// BudgetConfig holds the daily refinement token and spend ceilings.
type BudgetConfig struct {
	DailyTokenLimit int     `yaml:"daily_token_limit" mapstructure:"daily_token_limit"`
	DailySpendUSD   float64 `yaml:"daily_spend_usd" mapstructure:"daily_spend_usd"`
	EstimatedTokens int     `yaml:"estimated_tokens_per_scan" mapstructure:"estimated_tokens_per_scan"`
}

// KillSwitchConfig holds process-start defaults for the kill switch. Runtime
// state lives in the shared state store; these apply when the store has no
// recorded value.
type KillSwitchConfig struct {
	ScansEnabled       bool   `yaml:"scans_enabled" mapstructure:"scans_enabled"`
	ReadEnabled        bool   `yaml:"read_enabled" mapstructure:"read_enabled"`
	MaintenanceMessage string `yaml:"maintenance_message" mapstructure:"maintenance_message"`
}

// JobsConfig configures the job registry and background worker.
type JobsConfig struct {
	TTLHours            int `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	CleanupIntervalMins int `yaml:"cleanup_interval_mins" mapstructure:"cleanup_interval_mins"`
	MaxConcurrent       int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// TTL returns the terminal-job retention period.
func (c JobsConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// CleanupInterval returns the registry sweep period.
func (c JobsConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMins) * time.Minute
}

// PollConfig bounds the client-side polling loop.
type PollConfig struct {
	MaxAttempts        int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialIntervalSec float64 `yaml:"initial_interval_secs" mapstructure:"initial_interval_secs"`
	MaxIntervalSec     float64 `yaml:"max_interval_secs" mapstructure:"max_interval_secs"`
}

// RefineConfig configures the advisory-language refinement collaborator.
type RefineConfig struct {
	AnthropicKey string  `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	Model        string  `yaml:"model" mapstructure:"model"`
	CostPer1K    float64 `yaml:"cost_per_1k" mapstructure:"cost_per_1k"`
	PacePerSec   float64 `yaml:"pace_per_sec" mapstructure:"pace_per_sec"`
}

// AdminConfig guards the administrative governance endpoints.
type AdminConfig struct {
	Token string `yaml:"token" mapstructure:"token"`
}

// MonitoringConfig configures governance alerting. With no webhook URL,
// alerts are logged only.
type MonitoringConfig struct {
	WebhookURL          string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	BudgetAlertPct      float64 `yaml:"budget_alert_pct" mapstructure:"budget_alert_pct"`
	FailedJobsThreshold int     `yaml:"failed_jobs_threshold" mapstructure:"failed_jobs_threshold"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("state.driver", "memory")
	v.SetDefault("state.sqlite_path", "scope-state.db")
	v.SetDefault("limits.requests_per_minute", 60)
	v.SetDefault("limits.requests_per_hour", 1000)
	v.SetDefault("limits.requests_per_day", 10000)
	v.SetDefault("abuse.resubmission_threshold", 5)
	v.SetDefault("abuse.resubmission_window_secs", 60)
	v.SetDefault("budget.daily_token_limit", 1_000_000)
	v.SetDefault("budget.daily_spend_usd", 100.0)
	v.SetDefault("budget.estimated_tokens_per_scan", 5000)
	v.SetDefault("killswitch.scans_enabled", true)
	v.SetDefault("killswitch.read_enabled", true)
	v.SetDefault("killswitch.maintenance_message", "SponsorScope is currently undergoing scheduled maintenance.")
	v.SetDefault("jobs.ttl_hours", 24)
	v.SetDefault("jobs.cleanup_interval_mins", 5)
	v.SetDefault("jobs.max_concurrent", 3)
	v.SetDefault("poll.max_attempts", 30)
	v.SetDefault("poll.initial_interval_secs", 1.0)
	v.SetDefault("poll.max_interval_secs", 15.0)
	v.SetDefault("state.database_url", "")
	v.SetDefault("refine.anthropic_key", "")
	v.SetDefault("refine.model", "claude-haiku-4-5-20251001")
	v.SetDefault("refine.cost_per_1k", 0.01)
	v.SetDefault("refine.pace_per_sec", 1.0)
	v.SetDefault("monitoring.budget_alert_pct", 80.0)
	v.SetDefault("monitoring.failed_jobs_threshold", 5)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("admin.token", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
